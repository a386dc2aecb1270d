// Package catalog exposes the Shopify product catalog to the voice agent as
// LLM-callable tools. All tools are read-only.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sweetpotato0/voicecart/pkg/logging"
	"github.com/sweetpotato0/voicecart/shopify"
	"github.com/sweetpotato0/voicecart/tool"
)

// catalogCap bounds how many products a paginated catalog walk will pull
// before giving up, so one tool call cannot hammer the Shopify API.
const catalogCap = 250

const defaultSearchLimit = 10

// ProductSummary is the normalized search result row handed to the LLM.
type ProductSummary struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Price        float64 `json:"price"`
	Available    bool    `json:"available"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
}

// VariantDetail describes one purchasable variant.
type VariantDetail struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	SKU      string  `json:"sku,omitempty"`
	InStock  bool    `json:"in_stock"`
	Quantity int     `json:"quantity"`
}

// ProductDetail is the full product view returned by get_product_details.
type ProductDetail struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Vendor      string          `json:"vendor,omitempty"`
	ProductType string          `json:"product_type,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Available   bool            `json:"available"`
	Variants    []VariantDetail `json:"variants"`
}

// InventoryReport is the result of check_inventory.
type InventoryReport struct {
	ProductID int64                    `json:"product_id"`
	Levels    []shopify.InventoryLevel `json:"levels"`
	Total     int                      `json:"total_quantity"`
}

// Tools builds the catalog tool set backed by the given Shopify client.
func Tools(client *shopify.Client) []*tool.Tool {
	t := &catalogTools{
		client: client,
		logger: logging.WithComponent("catalog_tools"),
	}
	return []*tool.Tool{
		t.searchProducts(),
		t.getProductDetails(),
		t.checkInventory(),
	}
}

// Register registers the catalog tool set on a registry.
func Register(registry *tool.Registry, client *shopify.Client) error {
	for _, t := range Tools(client) {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

type catalogTools struct {
	client *shopify.Client
	logger *slog.Logger
}

func (c *catalogTools) searchProducts() *tool.Tool {
	return &tool.Tool{
		Name:        "search_products",
		Description: "Search the store catalog by free-text query with optional category and price range filters",
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Description: "Search terms, e.g. 'running shoes'", Required: true},
			{Name: "category", Type: "string", Description: "Product category/type filter"},
			{Name: "price_min", Type: "number", Description: "Minimum price in store currency"},
			{Name: "price_max", Type: "number", Description: "Maximum price in store currency"},
			{Name: "limit", Type: "integer", Description: "Maximum number of results", Default: defaultSearchLimit},
		},
		Handler: c.handleSearch,
	}
}

func (c *catalogTools) handleSearch(ctx context.Context, args map[string]any) (string, error) {
	query := strings.ToLower(stringArg(args, "query"))
	category := strings.ToLower(stringArg(args, "category"))
	priceMin, hasMin := numberArg(args, "price_min")
	priceMax, hasMax := numberArg(args, "price_max")
	limit := intArg(args, "limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	products, err := c.fetchCatalog(ctx)
	if err != nil {
		return "", err
	}

	matches := make([]ProductSummary, 0, limit)
	for _, p := range products {
		if !matchesQuery(&p, query) {
			continue
		}
		if category != "" && !strings.Contains(strings.ToLower(p.ProductType), category) {
			continue
		}
		price := firstVariantPrice(&p)
		if hasMin && price < priceMin {
			continue
		}
		if hasMax && price > priceMax {
			continue
		}
		matches = append(matches, ProductSummary{
			ID:           p.ID,
			Title:        p.Title,
			Price:        price,
			Available:    p.Available(),
			ThumbnailURL: p.ThumbnailURL(),
		})
		if len(matches) >= limit {
			break
		}
	}

	c.logger.Info("product search", "query", query, "matches", len(matches))
	return marshalResult(matches)
}

// fetchCatalog walks the paginated product listing up to catalogCap items so
// a store larger than one page is still searched, not silently truncated.
func (c *catalogTools) fetchCatalog(ctx context.Context) ([]shopify.Product, error) {
	var all []shopify.Product
	cursor := ""
	for len(all) < catalogCap {
		page, next, err := c.client.ListProducts(ctx, shopify.ListOptions{
			Limit:    250,
			Status:   "active",
			PageInfo: cursor,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		cursor = next
	}
	if len(all) > catalogCap {
		all = all[:catalogCap]
	}
	return all, nil
}

func (c *catalogTools) getProductDetails() *tool.Tool {
	return &tool.Tool{
		Name:        "get_product_details",
		Description: "Get detailed information about a specific product including its variants",
		Parameters: []tool.Parameter{
			{Name: "product_id", Type: "string", Description: "The product ID", Required: true},
		},
		Handler: c.handleDetails,
	}
}

func (c *catalogTools) handleDetails(ctx context.Context, args map[string]any) (string, error) {
	id, err := productIDArg(args)
	if err != nil {
		return "", err
	}

	product, err := c.client.GetProduct(ctx, id)
	if err != nil {
		return "", err
	}

	detail := ProductDetail{
		ID:          product.ID,
		Title:       product.Title,
		Description: shopify.DescriptionText(product.BodyHTML),
		Vendor:      product.Vendor,
		ProductType: product.ProductType,
		Tags:        splitTags(product.Tags),
		Available:   product.Available(),
		Variants:    make([]VariantDetail, 0, len(product.Variants)),
	}
	for _, v := range product.Variants {
		detail.Variants = append(detail.Variants, VariantDetail{
			ID:       v.ID,
			Title:    v.Title,
			Price:    parsePrice(v.Price),
			SKU:      v.SKU,
			InStock:  v.InventoryQuantity > 0,
			Quantity: v.InventoryQuantity,
		})
	}

	return marshalResult(detail)
}

func (c *catalogTools) checkInventory() *tool.Tool {
	return &tool.Tool{
		Name:        "check_inventory",
		Description: "Check stock levels for a product, optionally narrowed to a single variant",
		Parameters: []tool.Parameter{
			{Name: "product_id", Type: "string", Description: "The product ID", Required: true},
			{Name: "variant_id", Type: "string", Description: "Optional variant ID"},
		},
		Handler: c.handleInventory,
	}
}

func (c *catalogTools) handleInventory(ctx context.Context, args map[string]any) (string, error) {
	productID, err := productIDArg(args)
	if err != nil {
		return "", err
	}
	var variantID int64
	if raw := stringArg(args, "variant_id"); raw != "" {
		variantID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", fmt.Errorf("variant_id %q is not numeric", raw)
		}
	}

	levels, err := c.client.GetInventory(ctx, productID, variantID)
	if err != nil {
		return "", err
	}

	report := InventoryReport{ProductID: productID, Levels: levels}
	for _, l := range levels {
		report.Total += l.Quantity
	}
	return marshalResult(report)
}

func matchesQuery(p *shopify.Product, query string) bool {
	if query == "" {
		return true
	}
	haystack := strings.ToLower(strings.Join([]string{
		p.Title, p.Vendor, p.ProductType, p.Tags, shopify.DescriptionText(p.BodyHTML),
	}, " "))
	for _, term := range strings.Fields(query) {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func firstVariantPrice(p *shopify.Product) float64 {
	if len(p.Variants) == 0 {
		return 0
	}
	return parsePrice(p.Variants[0].Price)
}

func parsePrice(raw string) float64 {
	price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return price
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if tag := strings.TrimSpace(p); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func marshalResult(data any) (string, error) {
	payload, err := json.Marshal(map[string]any{"success": true, "data": data})
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(payload), nil
}

func productIDArg(args map[string]any) (int64, error) {
	raw := stringArg(args, "product_id")
	if raw == "" {
		return 0, fmt.Errorf("product_id cannot be empty")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("product_id %q is not numeric", raw)
	}
	return id, nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func numberArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}
