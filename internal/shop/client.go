package shop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the requested resource does not exist.
var ErrNotFound = errors.New("shop: not found")

// ErrMalformed is returned when a 2xx response is missing required fields.
var ErrMalformed = errors.New("shop: malformed response")

// ProductFetcher is the resource-fetch capability used by the poller and the UI.
type ProductFetcher interface {
	FetchProducts(ctx context.Context) ([]Product, error)
	FetchProduct(ctx context.Context, id string) (*Product, error)
}

// CollectionClient is the mutation-submit capability for carts and wishlists.
type CollectionClient interface {
	FetchCollection(ctx context.Context, kind Kind) (Collection, error)
	AddItem(ctx context.Context, kind Kind, productID, variantID string, quantity int) (Collection, error)
	UpdateItem(ctx context.Context, kind Kind, itemID string, quantity int) (Collection, error)
	RemoveItem(ctx context.Context, kind Kind, itemID string) (Collection, error)
	ClearCollection(ctx context.Context, kind Kind) (Collection, error)
}

// Ensure Client implements both capabilities at compile time.
var (
	_ ProductFetcher   = (*Client)(nil)
	_ CollectionClient = (*Client)(nil)
)

// Client talks to the storefront HTTP API on behalf of one tenant and customer.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	tenant    string
	customer  string
}

const (
	defaultAPIURL    = "127.0.0.1:8088"
	defaultUserAgent = "kiosk/0.1"
	requestTimeout   = 10 * time.Second

	headerTenant   = "X-Tenant-ID"
	headerCustomer = "X-Customer-ID"
)

// Options configure a Client.
type Options struct {
	APIURL     string
	Tenant     string
	Customer   string
	HTTPClient *http.Client
}

// NewClient builds a Client for the given API address.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.APIURL)
	if err != nil {
		return nil, err
	}
	tenant := strings.TrimSpace(opts.Tenant)
	if tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		baseURL:   base,
		http:      httpClient,
		userAgent: defaultUserAgent,
		tenant:    tenant,
		customer:  strings.TrimSpace(opts.Customer),
	}, nil
}

// FetchProducts retrieves the tenant's catalog.
func (c *Client) FetchProducts(ctx context.Context) ([]Product, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload ProductListResponse
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// FetchProduct retrieves a single product. A missing product yields ErrNotFound.
func (c *Client) FetchProduct(ctx context.Context, id string) (*Product, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("product id required")
	}
	var payload Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+url.PathEscape(id), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// UploadImage tells the API a new image is available for the product. The
// returned product normally reports a pending processing status.
func (c *Client) UploadImage(ctx context.Context, productID, imageURL string) (*Product, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(productID) == "" {
		return nil, fmt.Errorf("product id required")
	}
	body := map[string]string{"imageUrl": imageURL}
	var payload Product
	if err := c.do(ctx, http.MethodPost, "/api/products/"+url.PathEscape(productID)+"/images", body, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchCollection retrieves the customer's cart or wishlist.
func (c *Client) FetchCollection(ctx context.Context, kind Kind) (Collection, error) {
	return c.collectionCall(ctx, http.MethodGet, kindPath(kind), nil)
}

// AddItem adds a product variant. Quantity zero lets the server pick its default.
func (c *Client) AddItem(ctx context.Context, kind Kind, productID, variantID string, quantity int) (Collection, error) {
	if strings.TrimSpace(productID) == "" {
		return Collection{}, fmt.Errorf("product id required")
	}
	body := addItemRequest{ProductID: productID, VariantID: variantID, Quantity: quantity}
	return c.collectionCall(ctx, http.MethodPost, kindPath(kind)+"/items", body)
}

// UpdateItem sets the quantity of an existing line.
func (c *Client) UpdateItem(ctx context.Context, kind Kind, itemID string, quantity int) (Collection, error) {
	if strings.TrimSpace(itemID) == "" {
		return Collection{}, fmt.Errorf("item id required")
	}
	return c.collectionCall(ctx, http.MethodPatch, kindPath(kind)+"/items/"+url.PathEscape(itemID), updateItemRequest{Quantity: quantity})
}

// RemoveItem deletes a line.
func (c *Client) RemoveItem(ctx context.Context, kind Kind, itemID string) (Collection, error) {
	if strings.TrimSpace(itemID) == "" {
		return Collection{}, fmt.Errorf("item id required")
	}
	return c.collectionCall(ctx, http.MethodDelete, kindPath(kind)+"/items/"+url.PathEscape(itemID), nil)
}

// ClearCollection removes every line in one call.
func (c *Client) ClearCollection(ctx context.Context, kind Kind) (Collection, error) {
	return c.collectionCall(ctx, http.MethodDelete, kindPath(kind), nil)
}

func (c *Client) collectionCall(ctx context.Context, method, path string, body any) (Collection, error) {
	if c == nil {
		return Collection{}, fmt.Errorf("client is nil")
	}
	var payload Collection
	if err := c.do(ctx, method, path, body, &payload); err != nil {
		return Collection{}, err
	}
	if payload.Items == nil {
		return Collection{}, fmt.Errorf("%s %s: %w: items missing", method, path, ErrMalformed)
	}
	return payload, nil
}

func kindPath(kind Kind) string {
	if kind == KindWishlist {
		return "/api/wishlist"
	}
	return "/api/cart"
}

func (c *Client) do(ctx context.Context, method, path string, body any, dest any) error {
	rel := &url.URL{Path: path}
	reqURL := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(headerTenant, c.tenant)
	if c.customer != "" {
		req.Header.Set(headerCustomer, c.customer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return fmt.Errorf("api %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Path: path}
		var payload ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload); err == nil {
			apiErr.Message = payload.Message
		}
		return apiErr
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(apiURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiURL)
	if trimmed == "" {
		trimmed = defaultAPIURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_url %q: %w", apiURL, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
