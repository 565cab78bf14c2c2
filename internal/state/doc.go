// Package state holds the client-side cart and wishlist collections.
//
// # Overview
//
// A Store is the single visible copy of one collection. It is created by the
// composition root and handed to whoever mutates or renders it; there is no
// package-level instance.
//
// # Writes
//
//   - Begin applies an optimistic change through a Tx and returns the
//     snapshot taken just before it, for rollback
//   - Replace installs the server's authoritative collection
//   - Restore puts a Begin snapshot back verbatim
//   - RecordError notes a failed reload and keeps the entries
//
// Entries added with Tx.Track, removed with Tx.Hide and resized with
// Tx.SetQuantity form overlays that outlive Replace calls made by other
// in-flight mutations. Each overlay is released by the mutation that created
// it, through the Settled argument.
//
// # Temp IDs
//
// Optimistic adds get ids from NewTempID. Every Replace rebuilds the
// temp id to server id table by matching (product, variant) keys against the
// authoritative entries, so callers holding a temp id can Resolve it once the
// add is confirmed. A pending add is never matched to a server entry that is
// hidden: re-adding a variant whose removal is still in flight keeps the new
// row visible and unresolved until the add itself is confirmed.
//
// # Reads
//
// Snapshot returns a deep copy. Subscribe delivers a coalesced signal after
// each change; consumers re-read the snapshot when it fires.
//
// # Offline Detection
//
// ConsecutiveFailures counts reload failures since the last successful
// Replace. IsOffline reports two or more.
package state
