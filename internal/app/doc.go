// Package app is the composition root of the kiosk client.
//
// Run loads configuration and preferences, opens the log file, wires the
// storefront client, query cache, collection coordinators and image poller
// (see Wire), primes the cart and wishlist, starts the background refresher
// and then blocks in the TUI until the context is cancelled or the user
// quits.
//
// The background refresher reloads the canonical cart and wishlist and marks
// the product list stale on a fixed interval. Consecutive failures double the
// wait up to five minutes; failures are logged and recorded on the collection
// stores so the UI can show an offline badge, but never stop the loop.
package app
