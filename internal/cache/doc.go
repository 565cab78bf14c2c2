// Package cache is the query cache shared by the UI, the image poller and the
// cart and wishlist coordinators.
//
// Keys follow "<scope>:list" for collection-level queries and
// "<scope>:item:<id>" for item-level queries. Invalidation only marks entries
// stale; the next Get reloads them. Subscribers receive each invalidated key so
// a view can refetch whatever it currently shows.
package cache
