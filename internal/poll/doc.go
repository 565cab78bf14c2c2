// Package poll watches a product's image processing status after an upload.
//
// A Poller follows exactly one resource at a time. Start is a no-op while a
// poll is active or when the resource id is empty. Each iteration sleeps
// first and then fetches, so the first request happens after the initial
// delay. Delays grow geometrically (1s, 1.5s, 2.25s, 3.375s, then 5s) and the
// whole poll is bounded by a two minute timeout measured from the start.
//
// Outcomes:
//
//   - a terminal status (anything but "pending", compared case-insensitively)
//     invalidates the product list and detail queries through the Sink and
//     calls the completion callback once
//   - a not-found response ends the poll silently
//   - other fetch errors are swallowed and the poll continues
//   - cancelling the context or running past the timeout ends the poll
//     without touching the Sink
//
// The active guard is released on every exit path, including panics raised
// by the fetcher.
package poll
