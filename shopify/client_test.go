package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(Config{
		StoreURL:    server.URL,
		AccessToken: "test-token",
		Timeout:     5 * time.Second,
	})
	return client, server
}

func TestListProductsPagination(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/admin/api/2024-01/products.json", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Shopify-Access-Token"); got != "test-token" {
			t.Errorf("missing access token header, got %q", got)
		}
		if r.URL.Query().Get("page_info") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/admin/api/2024-01/products.json?limit=250&page_info=cursor2>; rel="next"`, r.Host))
			fmt.Fprint(w, `{"products":[{"id":1,"title":"Cloud Hoodie"}]}`)
			return
		}
		fmt.Fprint(w, `{"products":[{"id":2,"title":"Mountain Hoodie"}]}`)
	})

	client, _ := newTestClient(t, &mux)

	first, cursor, err := client.ListProducts(context.Background(), ListOptions{Limit: 250})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 1 || first[0].ID != 1 {
		t.Fatalf("unexpected first page: %+v", first)
	}
	if cursor != "cursor2" {
		t.Fatalf("expected cursor2, got %q", cursor)
	}

	second, cursor, err := client.ListProducts(context.Background(), ListOptions{Limit: 250, PageInfo: cursor})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second) != 1 || second[0].ID != 2 {
		t.Fatalf("unexpected second page: %+v", second)
	}
	if cursor != "" {
		t.Fatalf("expected exhausted cursor, got %q", cursor)
	}
}

func TestRateLimitRetry(t *testing.T) {
	attempts := 0
	var mux http.ServeMux
	mux.HandleFunc("/admin/api/2024-01/products.json", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"products":[{"id":7,"title":"Trail Shoe"}]}`)
	})

	client, _ := newTestClient(t, &mux)

	products, _, err := client.ListProducts(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if len(products) != 1 {
		t.Errorf("expected one product, got %d", len(products))
	}
}

func TestGetProductNotFound(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/admin/api/2024-01/products/99.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client, _ := newTestClient(t, &mux)

	_, err := client.GetProduct(context.Background(), 99)
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestGetInventoryVariantFilter(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/admin/api/2024-01/products/5.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"product":{"id":5,"title":"Runner","variants":[
			{"id":51,"title":"US 9","inventory_quantity":3},
			{"id":52,"title":"US 10","inventory_quantity":0}]}}`)
	})

	client, _ := newTestClient(t, &mux)

	levels, err := client.GetInventory(context.Background(), 5, 52)
	if err != nil {
		t.Fatalf("GetInventory: %v", err)
	}
	if len(levels) != 1 || levels[0].VariantID != 52 || levels[0].Quantity != 0 {
		t.Fatalf("unexpected levels: %+v", levels)
	}

	if _, err := client.GetInventory(context.Background(), 5, 999); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound for unknown variant, got %v", err)
	}
}

func TestDescriptionText(t *testing.T) {
	html := `<div><h2>Cloud Hoodie</h2><p>Soft fleece  interior.</p><img src="x.png"/><li>Machine washable</li></div>`
	got := DescriptionText(html)
	want := "Cloud Hoodie. Soft fleece interior. Machine washable."
	if got != want {
		t.Errorf("DescriptionText = %q, want %q", got, want)
	}

	if DescriptionText("") != "" {
		t.Error("empty body should stay empty")
	}
}
