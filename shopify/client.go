package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/sweetpotato0/voicecart/errors"
	"github.com/sweetpotato0/voicecart/pkg/logging"
)

const defaultAPIVersion = "2024-01"

// ErrProductNotFound indicates that the store has no product with the
// requested identifier.
var ErrProductNotFound = fmt.Errorf("product %w", apperrors.ErrNotFound)

// Config holds Shopify Admin API client configuration.
type Config struct {
	StoreURL    string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
	MaxRetries  int
}

// Client is a thin client for the Shopify Admin REST API. All operations are
// read-only; the voice assistant never mutates remote state.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
}

// NewClient creates a Shopify client from the given configuration.
func NewClient(cfg Config) *Client {
	storeURL := strings.TrimSuffix(cfg.StoreURL, "/")
	if !strings.HasPrefix(storeURL, "http://") && !strings.HasPrefix(storeURL, "https://") {
		storeURL = "https://" + storeURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}

	return &Client{
		baseURL:    fmt.Sprintf("%s/admin/api/%s", storeURL, version),
		token:      cfg.AccessToken,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: retries,
		logger:     logging.WithComponent("shopify"),
	}
}

// ListOptions controls product listing. PageInfo is the opaque pagination
// cursor from a previous page's Link header; when set it must not be combined
// with other filters.
type ListOptions struct {
	Limit    int
	Status   string
	PageInfo string
}

// ListProducts fetches one page of products and returns the cursor for the
// next page, empty when the listing is exhausted.
func (c *Client) ListProducts(ctx context.Context, opts ListOptions) ([]Product, string, error) {
	params := url.Values{}
	limit := opts.Limit
	if limit <= 0 || limit > 250 {
		limit = 250
	}
	params.Set("limit", strconv.Itoa(limit))
	if opts.PageInfo != "" {
		params.Set("page_info", opts.PageInfo)
	} else if opts.Status != "" {
		params.Set("status", opts.Status)
	}

	body, header, err := c.get(ctx, "/products.json", params)
	if err != nil {
		return nil, "", err
	}

	var envelope productsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "", fmt.Errorf("shopify: decode products: %w", err)
	}

	return envelope.Products, nextPageInfo(header.Get("Link")), nil
}

// GetProduct fetches a single product by ID. Returns ErrProductNotFound when
// the store has no such product.
func (c *Client) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	body, _, err := c.get(ctx, fmt.Sprintf("/products/%d.json", productID), nil)
	if err != nil {
		return nil, err
	}

	var envelope productEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("shopify: decode product: %w", err)
	}
	if envelope.Product == nil {
		return nil, ErrProductNotFound
	}
	return envelope.Product, nil
}

// InventoryLevel reports stock for one variant.
type InventoryLevel struct {
	VariantID int64  `json:"variant_id"`
	Title     string `json:"title"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
}

// GetInventory returns per-variant stock counts for a product. With a
// non-zero variantID only that variant is returned; an unknown variant is
// ErrProductNotFound.
func (c *Client) GetInventory(ctx context.Context, productID, variantID int64) ([]InventoryLevel, error) {
	product, err := c.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	levels := make([]InventoryLevel, 0, len(product.Variants))
	for _, v := range product.Variants {
		if variantID != 0 && v.ID != variantID {
			continue
		}
		levels = append(levels, InventoryLevel{
			VariantID: v.ID,
			Title:     v.Title,
			SKU:       v.SKU,
			Quantity:  v.InventoryQuantity,
		})
	}
	if len(levels) == 0 {
		return nil, ErrProductNotFound
	}
	return levels, nil
}

// get performs a GET request with rate-limit aware retries. Shopify signals
// throttling with 429 plus a Retry-After header in seconds.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, http.Header, error) {
	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("shopify: create request: %w", err)
		}
		req.Header.Set("X-Shopify-Access-Token", c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, nil, fmt.Errorf("shopify: request failed: %w", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, nil, fmt.Errorf("shopify: read response: %w", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, nil, ErrProductNotFound
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header)
			c.logger.Warn("shopify rate limited", "endpoint", endpoint, "retry_after", wait)
			lastErr = fmt.Errorf("shopify: %w (attempt %d)", apperrors.ErrRateLimited, attempt+1)
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		case resp.StatusCode >= 500:
			c.logger.Warn("shopify server error", "endpoint", endpoint, "status", resp.StatusCode)
			lastErr = fmt.Errorf("shopify: server error (status %d)", resp.StatusCode)
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
			continue
		case resp.StatusCode >= 400:
			return nil, nil, fmt.Errorf("shopify: API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		return body, resp.Header, nil
	}

	return nil, nil, fmt.Errorf("shopify: retries exhausted: %w", lastErr)
}

func retryAfter(header http.Header) time.Duration {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 2 * time.Second
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 2 * time.Second
}

var linkNextRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextPageInfo extracts the page_info cursor for the next page from a Link
// response header.
func nextPageInfo(link string) string {
	if link == "" {
		return ""
	}
	match := linkNextRe.FindStringSubmatch(link)
	if match == nil {
		return ""
	}
	parsed, err := url.Parse(match[1])
	if err != nil {
		return ""
	}
	return parsed.Query().Get("page_info")
}
