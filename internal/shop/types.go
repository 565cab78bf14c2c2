package shop

import (
	"fmt"
	"strings"
)

// ProcessingStatus is the server-owned state of a product's image pipeline.
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected. An empty
// status means nothing was ever queued, which is terminal as well.
func (s ProcessingStatus) IsTerminal() bool {
	return normalizeStatus(s) != StatusPending
}

func normalizeStatus(s ProcessingStatus) ProcessingStatus {
	return ProcessingStatus(strings.ToLower(strings.TrimSpace(string(s))))
}

// Kind names a customer-held collection.
type Kind string

const (
	KindCart     Kind = "cart"
	KindWishlist Kind = "wishlist"
)

// Product mirrors the payload returned by /api/products/{id}.
type Product struct {
	ID                    string           `json:"id"`
	Name                  string           `json:"name"`
	Description           string           `json:"description,omitempty"`
	Price                 int64            `json:"price"`
	Currency              string           `json:"currency,omitempty"`
	ImageURL              string           `json:"imageUrl,omitempty"`
	ImageProcessingStatus ProcessingStatus `json:"imageProcessingStatus,omitempty"`
	Variants              []Variant        `json:"variants"`
}

// Variant returns the variant with the given id.
func (p Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Variant is a purchasable option of a product.
type Variant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}

// ProductListResponse mirrors /api/products.
type ProductListResponse struct {
	Items []Product `json:"items"`
}

// Item is one line of a cart or wishlist with denormalized product fields.
type Item struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	VariantID   string `json:"variantId"`
	Quantity    int    `json:"quantity"`
	Name        string `json:"name"`
	VariantName string `json:"variantName,omitempty"`
	Price       int64  `json:"price"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// Collection is the authoritative post-mutation state of a cart or wishlist.
// A missing "items" key decodes to a nil slice and is rejected as malformed.
type Collection struct {
	Items []Item `json:"items"`
}

// Mutation request bodies.
type addItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity,omitempty"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// ErrorResponse is the body the API returns with status >= 400.
type ErrorResponse struct {
	Message string `json:"message"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Path    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %s returned status %d: %s", e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("api %s returned status %d", e.Path, e.Status)
}

// UserMessage is the server-provided human readable message, if any.
func (e *APIError) UserMessage() string {
	return strings.TrimSpace(e.Message)
}

// FormatPrice renders minor units as a decimal amount.
func FormatPrice(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	amount := fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
	if currency = strings.TrimSpace(currency); currency != "" {
		return amount + " " + strings.ToUpper(currency)
	}
	return amount
}
