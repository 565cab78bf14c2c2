// Package shop provides an HTTP client for the storefront API.
//
// # Overview
//
// The client covers the two capabilities the rest of kiosk consumes:
//
//   - ProductFetcher: catalog reads, including the per-product image
//     processing status the poller watches
//   - CollectionClient: cart and wishlist mutations, each returning the
//     authoritative post-mutation collection
//
// Every request carries the tenant (X-Tenant-ID) and, when configured, the
// customer (X-Customer-ID) header.
//
// # Errors
//
//   - ErrNotFound: GET on a missing resource (404)
//   - ErrMalformed: a 2xx collection response without an items array
//   - *APIError: any other status >= 400; UserMessage returns the server's
//     message for display
//
// # Usage Example
//
//	client, err := shop.NewClient(shop.Options{APIURL: "127.0.0.1:8088", Tenant: "acme"})
//	if err != nil {
//		return err
//	}
//	cart, err := client.AddItem(ctx, shop.KindCart, "p-1", "v-1", 1)
package shop
