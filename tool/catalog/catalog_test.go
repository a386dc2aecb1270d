package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sweetpotato0/voicecart/shopify"
	"github.com/sweetpotato0/voicecart/tool"
)

const productsPage = `{"products":[
	{"id":1,"title":"Cloud Running Shoes","product_type":"shoes","tags":"running, light",
	 "variants":[{"id":11,"title":"US 9","price":"89.00","inventory_quantity":4}],
	 "image":{"id":100,"src":"https://cdn/shoe.png"}},
	{"id":2,"title":"Mountain Running Shoes","product_type":"shoes","tags":"running, trail",
	 "variants":[{"id":21,"title":"US 9","price":"120.00","inventory_quantity":2}]},
	{"id":3,"title":"Cloud Hoodie","product_type":"apparel","tags":"cozy",
	 "variants":[{"id":31,"title":"M","price":"95.00","inventory_quantity":0}]}
]}`

func newCatalogServer(t *testing.T) *shopify.Client {
	t.Helper()
	var mux http.ServeMux
	mux.HandleFunc("/admin/api/2024-01/products.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, productsPage)
	})
	mux.HandleFunc("/admin/api/2024-01/products/1.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"product":{"id":1,"title":"Cloud Running Shoes","body_html":"<p>Feather light.</p>",
			"product_type":"shoes","tags":"running, light",
			"variants":[{"id":11,"title":"US 9","price":"89.00","sku":"CRS-9","inventory_quantity":4}]}}`)
	})
	mux.HandleFunc("/admin/api/2024-01/products/99.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(&mux)
	t.Cleanup(server.Close)
	return shopify.NewClient(shopify.Config{StoreURL: server.URL, AccessToken: "t"})
}

type searchResult struct {
	Success bool             `json:"success"`
	Data    []ProductSummary `json:"data"`
}

func newRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	registry := tool.NewRegistry()
	if err := Register(registry, newCatalogServer(t)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return registry
}

func TestSearchProductsPriceFilter(t *testing.T) {
	registry := newRegistry(t)

	raw, err := registry.Invoke(context.Background(), "search_products", map[string]any{
		"query":     "running shoes",
		"price_max": 100.0,
		"limit":     10.0,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	var result searchResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if len(result.Data) != 1 {
		t.Fatalf("expected 1 match under $100, got %d: %+v", len(result.Data), result.Data)
	}
	got := result.Data[0]
	if got.ID != 1 || got.Price != 89 || !got.Available {
		t.Errorf("unexpected match: %+v", got)
	}
	if got.ThumbnailURL != "https://cdn/shoe.png" {
		t.Errorf("missing thumbnail: %+v", got)
	}
}

func TestSearchProductsLimit(t *testing.T) {
	registry := newRegistry(t)

	raw, err := registry.Invoke(context.Background(), "search_products", map[string]any{
		"query": "running",
		"limit": 1.0,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	var result searchResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Data) != 1 {
		t.Fatalf("expected limit to cap results, got %d", len(result.Data))
	}
}

func TestSearchProductsValidation(t *testing.T) {
	registry := newRegistry(t)

	_, err := registry.Invoke(context.Background(), "search_products", map[string]any{
		"query": "shoes",
		"limit": "not-a-number",
	})
	var verr *tool.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestGetProductDetails(t *testing.T) {
	registry := newRegistry(t)

	raw, err := registry.Invoke(context.Background(), "get_product_details", map[string]any{
		"product_id": "1",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	var result struct {
		Data ProductDetail `json:"data"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Data.Description != "Feather light." {
		t.Errorf("expected stripped description, got %q", result.Data.Description)
	}
	if len(result.Data.Variants) != 1 || result.Data.Variants[0].SKU != "CRS-9" {
		t.Errorf("unexpected variants: %+v", result.Data.Variants)
	}
	if len(result.Data.Tags) != 2 {
		t.Errorf("expected split tags, got %v", result.Data.Tags)
	}
}

func TestGetProductDetailsNotFound(t *testing.T) {
	registry := newRegistry(t)

	_, err := registry.Invoke(context.Background(), "get_product_details", map[string]any{
		"product_id": "99",
	})
	if !errors.Is(err, shopify.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCheckInventory(t *testing.T) {
	registry := newRegistry(t)

	raw, err := registry.Invoke(context.Background(), "check_inventory", map[string]any{
		"product_id": "1",
		"variant_id": "11",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	var result struct {
		Data InventoryReport `json:"data"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Data.Total != 4 || len(result.Data.Levels) != 1 {
		t.Errorf("unexpected report: %+v", result.Data)
	}
}
