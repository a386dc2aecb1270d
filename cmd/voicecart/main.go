// Command voicecart runs the voice sales-assistant backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweetpotato0/voicecart/config"
	"github.com/sweetpotato0/voicecart/pkg/logging"
	"github.com/sweetpotato0/voicecart/pkg/telemetry"
	"github.com/sweetpotato0/voicecart/prompt"
	"github.com/sweetpotato0/voicecart/provider"
	anthropicprovider "github.com/sweetpotato0/voicecart/provider/anthropic"
	geminiprovider "github.com/sweetpotato0/voicecart/provider/gemini"
	openaiprovider "github.com/sweetpotato0/voicecart/provider/openai"
	"github.com/sweetpotato0/voicecart/server"
	"github.com/sweetpotato0/voicecart/session"
	"github.com/sweetpotato0/voicecart/session/store"
	"github.com/sweetpotato0/voicecart/shopify"
	"github.com/sweetpotato0/voicecart/tool"
	"github.com/sweetpotato0/voicecart/tool/catalog"
	"github.com/sweetpotato0/voicecart/tts"
	"github.com/sweetpotato0/voicecart/tts/cartesia"
	openaitts "github.com/sweetpotato0/voicecart/tts/openai"
	"github.com/sweetpotato0/voicecart/voice"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "voicecart:", err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.WithComponent("main")

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "voicecart",
	})
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
	} else {
		defer shutdownTelemetry(context.Background())
	}

	// Shopify catalog behind the tool registry
	shopClient := shopify.NewClient(shopify.Config{
		StoreURL:    settings.ShopifyStoreURL,
		AccessToken: settings.ShopifyAccessToken,
		APIVersion:  settings.ShopifyAPIVersion,
	})
	registry := tool.NewRegistry()
	if err := catalog.Register(registry, shopClient); err != nil {
		return fmt.Errorf("register catalog tools: %w", err)
	}
	schemas := registry.ToJSONSchemas()

	llm, err := buildProvider(settings)
	if err != nil {
		return err
	}
	synth, err := buildSynthesizer(settings)
	if err != nil {
		return err
	}

	sessionStore, err := buildStore(settings)
	if err != nil {
		return err
	}
	defer sessionStore.Close()
	manager := session.NewManager(sessionStore)

	prompts := prompt.NewBuilder(prompt.Config{
		AssistantName: settings.AssistantName,
		StoreName:     settings.StoreName,
	})

	factory := func(sess *session.Session) *voice.Coordinator {
		engine := voice.NewEngine(llm, registry, voice.EngineConfig{})
		dispatcher := voice.NewDispatcher(synth, voice.DefaultDispatcherConfig())
		return voice.NewCoordinator(sess, engine, dispatcher, prompts, manager, schemas, voice.CoordinatorConfig{
			TurnTimeout: settings.TurnTimeout,
			QueueSize:   settings.TurnQueueSize,
		})
	}

	srv := server.New(manager, factory, server.Config{AllowedOrigins: settings.AllowedOrigins})
	httpServer := &http.Server{
		Addr:              settings.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", settings.Addr, "provider", settings.Provider, "tts", settings.TTSProvider)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func buildProvider(settings *config.Settings) (provider.Client, error) {
	switch settings.Provider {
	case "openai":
		return openaiprovider.New(&openaiprovider.Config{
			APIKey: settings.OpenAIAPIKey,
			Model:  settings.OpenAIModel,
		}), nil
	case "anthropic":
		return anthropicprovider.New(&anthropicprovider.Config{
			APIKey: settings.AnthropicKey,
			Model:  settings.AnthropicModel,
		}), nil
	case "gemini":
		return geminiprovider.New(&geminiprovider.Config{
			APIKey: settings.GeminiAPIKey,
			Model:  settings.GeminiModel,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", settings.Provider)
	}
}

func buildSynthesizer(settings *config.Settings) (tts.Synthesizer, error) {
	switch settings.TTSProvider {
	case "cartesia":
		return cartesia.New(&cartesia.Config{
			APIKey:  settings.CartesiaAPIKey,
			VoiceID: settings.CartesiaVoiceID,
		}), nil
	case "openai":
		return openaitts.New(&openaitts.Config{
			APIKey: settings.OpenAIAPIKey,
			Voice:  settings.OpenAIVoice,
		}), nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", settings.TTSProvider)
	}
}

func buildStore(settings *config.Settings) (session.Store, error) {
	switch settings.SessionStore {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return store.NewRedisStore(&store.RedisConfig{
			Addr:     settings.RedisAddr,
			Password: settings.RedisPassword,
			DB:       settings.RedisDB,
		}), nil
	case "postgres":
		return store.NewPostgresStore(&store.PostgresConfig{
			Host:     settings.PostgresHost,
			Port:     settings.PostgresPort,
			User:     settings.PostgresUser,
			Password: settings.PostgresPass,
			DBName:   settings.PostgresDB,
			SSLMode:  "disable",
		})
	case "mongo":
		return store.NewMongoStore(&store.MongoConfig{
			URI:      settings.MongoURI,
			Database: settings.MongoDatabase,
		})
	default:
		return nil, fmt.Errorf("unknown session store %q", settings.SessionStore)
	}
}
