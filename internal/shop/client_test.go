package shop

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" {
		t.Fatalf("scheme = %q, want http", u.Scheme)
	}
	if u.Host != defaultAPIURL {
		t.Fatalf("host = %q, want %q", u.Host, defaultAPIURL)
	}

	u, err = parseBaseURL("https://shop.example.com:1234/path?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}
}

func TestNewClient_RequiresTenant(t *testing.T) {
	if _, err := NewClient(Options{APIURL: "127.0.0.1:1"}); err == nil {
		t.Fatalf("NewClient without tenant should fail")
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(Options{APIURL: server.URL, Tenant: "acme", Customer: "cust-1"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClient_FetchesProductsWithTenantHeaders(t *testing.T) {
	t.Parallel()

	var gotTenant, gotCustomer, gotUserAgent string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotTenant = r.Header.Get(headerTenant)
		gotCustomer = r.Header.Get(headerCustomer)
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api/products":
			_ = json.NewEncoder(w).Encode(ProductListResponse{Items: []Product{{ID: "p-1", Name: "Mug"}}})
		case "/api/products/p-1":
			_ = json.NewEncoder(w).Encode(Product{ID: "p-1", Name: "Mug", ImageProcessingStatus: StatusPending})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Message: "product not found"})
		}
	})
	ctx := testContext(t)

	products, err := c.FetchProducts(ctx)
	if err != nil {
		t.Fatalf("FetchProducts returned error: %v", err)
	}
	if len(products) != 1 || products[0].ID != "p-1" {
		t.Fatalf("FetchProducts = %#v, want one product p-1", products)
	}

	product, err := c.FetchProduct(ctx, "p-1")
	if err != nil {
		t.Fatalf("FetchProduct returned error: %v", err)
	}
	if product.ImageProcessingStatus != StatusPending {
		t.Fatalf("status = %q, want pending", product.ImageProcessingStatus)
	}

	if _, err := c.FetchProduct(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FetchProduct(gone) error = %v, want ErrNotFound", err)
	}

	if gotTenant != "acme" || gotCustomer != "cust-1" {
		t.Fatalf("headers tenant=%q customer=%q", gotTenant, gotCustomer)
	}
	if gotUserAgent != defaultUserAgent {
		t.Fatalf("User-Agent = %q, want %q", gotUserAgent, defaultUserAgent)
	}
}

func TestClient_CollectionMutations(t *testing.T) {
	t.Parallel()

	type call struct {
		method string
		path   string
		body   map[string]any
	}
	var calls []call
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		calls = append(calls, call{method: r.Method, path: r.URL.Path, body: body})
		_ = json.NewEncoder(w).Encode(Collection{Items: []Item{{ID: "i-1", ProductID: "p-1", VariantID: "v-1", Quantity: 2}}})
	})
	ctx := testContext(t)

	if _, err := c.AddItem(ctx, KindCart, "p-1", "v-1", 2); err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	if _, err := c.UpdateItem(ctx, KindCart, "i-1", 3); err != nil {
		t.Fatalf("UpdateItem returned error: %v", err)
	}
	if _, err := c.RemoveItem(ctx, KindWishlist, "i-1"); err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	coll, err := c.ClearCollection(ctx, KindWishlist)
	if err != nil {
		t.Fatalf("ClearCollection returned error: %v", err)
	}
	if len(coll.Items) != 1 || coll.Items[0].Quantity != 2 {
		t.Fatalf("collection = %#v", coll)
	}

	want := []call{
		{method: http.MethodPost, path: "/api/cart/items"},
		{method: http.MethodPatch, path: "/api/cart/items/i-1"},
		{method: http.MethodDelete, path: "/api/wishlist/items/i-1"},
		{method: http.MethodDelete, path: "/api/wishlist"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %d, want %d", len(calls), len(want))
	}
	for i, w := range want {
		if calls[i].method != w.method || calls[i].path != w.path {
			t.Fatalf("call %d = %s %s, want %s %s", i, calls[i].method, calls[i].path, w.method, w.path)
		}
	}
	if calls[0].body["productId"] != "p-1" || calls[0].body["variantId"] != "v-1" || calls[0].body["quantity"] != float64(2) {
		t.Fatalf("add body = %#v", calls[0].body)
	}
	if calls[1].body["quantity"] != float64(3) {
		t.Fatalf("update body = %#v", calls[1].body)
	}
}

func TestClient_ErrorPayloadAndMalformedResponse(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/cart/items":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Message: "Out of stock"})
		case "/api/cart":
			_, _ = w.Write([]byte(`{"total": 3}`))
		}
	})
	ctx := testContext(t)

	_, err := c.AddItem(ctx, KindCart, "p-1", "v-1", 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("AddItem error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.UserMessage() != "Out of stock" {
		t.Fatalf("apiErr = %#v", apiErr)
	}

	if _, err := c.FetchCollection(ctx, KindCart); !errors.Is(err, ErrMalformed) {
		t.Fatalf("FetchCollection error = %v, want ErrMalformed", err)
	}
}
