// Package optimistic applies cart and wishlist mutations before the server
// confirms them.
//
// Every mutation walks the same states: the change is applied to the shared
// state.Store synchronously (idle to optimistic-applied), the server call
// either confirms it, in which case the whole visible collection is replaced
// by the server's response and the temp id mapping is rebuilt, or fails, in
// which case the snapshot captured at apply time is restored verbatim. Both
// branches then run a canonical reload so overlapping mutations converge on
// server truth. Each call emits exactly one notice.
//
// Mutations on the same collection are not serialized. Each captures its own
// snapshot, so a late rollback can briefly hide another call's optimistic
// entry; the unconditional reload repairs it.
package optimistic
