package shopify

// Product is a product resource from the Shopify Admin REST API.
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	BodyHTML    string    `json:"body_html"`
	Vendor      string    `json:"vendor"`
	ProductType string    `json:"product_type"`
	Tags        string    `json:"tags"`
	Status      string    `json:"status"`
	Variants    []Variant `json:"variants"`
	Images      []Image   `json:"images"`
	Image       *Image    `json:"image,omitempty"`
}

// Variant is a purchasable variation of a product.
type Variant struct {
	ID                int64  `json:"id"`
	ProductID         int64  `json:"product_id"`
	Title             string `json:"title"`
	Price             string `json:"price"`
	SKU               string `json:"sku"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

// Image is a product image.
type Image struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
}

// Available reports whether any variant has stock.
func (p *Product) Available() bool {
	for _, v := range p.Variants {
		if v.InventoryQuantity > 0 {
			return true
		}
	}
	return false
}

// ThumbnailURL returns the primary image URL, if any.
func (p *Product) ThumbnailURL() string {
	if p.Image != nil {
		return p.Image.Src
	}
	if len(p.Images) > 0 {
		return p.Images[0].Src
	}
	return ""
}

type productsEnvelope struct {
	Products []Product `json:"products"`
}

type productEnvelope struct {
	Product *Product `json:"product"`
}
