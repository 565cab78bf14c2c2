package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownEntry is returned when an entry id cannot be resolved.
var ErrUnknownEntry = errors.New("state: unknown entry")

const tempPrefix = "tmp-"

// NewTempID returns a locally generated id that never collides with server ids.
func NewTempID() string {
	return tempPrefix + uuid.NewString()
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

// EntryState tracks an entry through the optimistic lifecycle.
type EntryState int

const (
	Confirmed EntryState = iota
	Pending
	RolledBack
)

func (s EntryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case RolledBack:
		return "rolled-back"
	default:
		return "confirmed"
	}
}

// Key identifies a product variant within a collection.
type Key struct {
	ProductID string
	VariantID string
}

// Entry is one visible line of a cart or wishlist.
type Entry struct {
	ID          string
	ProductID   string
	VariantID   string
	Quantity    int
	Name        string
	VariantName string
	Price       int64
	ImageURL    string
	State       EntryState
}

// Key returns the product variant the entry refers to.
func (e Entry) Key() Key {
	return Key{ProductID: e.ProductID, VariantID: e.VariantID}
}

// Snapshot is an immutable copy of the collection at a point in time.
type Snapshot struct {
	Entries             []Entry
	IDMap               map[string]string // temp id -> server id
	Version             uint64
	SyncedAt            time.Time
	LastError           error
	ConsecutiveFailures int
}

// IsOffline returns true when canonical reloads have failed repeatedly.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Find returns the entry with the given id, following the temp id mapping.
func (s Snapshot) Find(id string) (Entry, bool) {
	if mapped, ok := s.IDMap[id]; ok {
		id = mapped
	}
	for _, e := range s.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// TotalQuantity sums the quantities of all entries.
func (s Snapshot) TotalQuantity() int {
	total := 0
	for _, e := range s.Entries {
		total += e.Quantity
	}
	return total
}

// Subtotal sums price times quantity in minor units.
func (s Snapshot) Subtotal() int64 {
	var total int64
	for _, e := range s.Entries {
		total += e.Price * int64(e.Quantity)
	}
	return total
}

type tempRecord struct {
	entry   Entry
	pending bool
	seq     uint64
}

// adjustment is a pending quantity change. holds counts the unsettled
// mutations that set it; the most recent quantity wins.
type adjustment struct {
	quantity int
	holds    int
}

// Store is the process-wide visible state of one collection. Optimistic
// changes go through Begin, server truth through Replace, rollbacks through
// Restore. Entries tracked or hidden inside Begin survive Replace calls made
// by other in-flight mutations until they are released.
type Store struct {
	mu     sync.RWMutex
	snap   Snapshot
	temps  map[string]tempRecord
	seq    uint64
	hidden map[string]struct{}
	adjust map[string]adjustment
	subs   map[chan struct{}]struct{}
	now    func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	s.init()
	return s
}

func (s *Store) init() {
	if s.temps == nil {
		s.temps = make(map[string]tempRecord)
	}
	if s.hidden == nil {
		s.hidden = make(map[string]struct{})
	}
	if s.adjust == nil {
		s.adjust = make(map[string]adjustment)
	}
	if s.subs == nil {
		s.subs = make(map[chan struct{}]struct{})
	}
	if s.now == nil {
		s.now = time.Now
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSnapshot(s.snap)
}

// Tx is the mutable view handed to Begin.
type Tx struct {
	Entries []Entry
	idMap   map[string]string
	tracked  []Entry
	hidden   []string
	adjusted map[string]int
}

// Resolve maps a temp id to its server id when one is known.
func (tx *Tx) Resolve(id string) string {
	if mapped, ok := tx.idMap[id]; ok {
		return mapped
	}
	return id
}

// Index returns the position of the entry with id (temp or server), or -1.
func (tx *Tx) Index(id string) int {
	resolved := tx.Resolve(id)
	for i, e := range tx.Entries {
		if e.ID == id || e.ID == resolved {
			return i
		}
	}
	return -1
}

// IndexKey returns the position of the entry for key, or -1.
func (tx *Tx) IndexKey(key Key) int {
	for i, e := range tx.Entries {
		if e.Key() == key {
			return i
		}
	}
	return -1
}

// Track appends a pending entry and keeps it visible across authoritative
// replaces until it is released.
func (tx *Tx) Track(e Entry) {
	e.State = Pending
	tx.Entries = append(tx.Entries, e)
	tx.tracked = append(tx.tracked, e)
}

// Hide removes the entry with id and keeps it hidden across authoritative
// replaces until it is released.
func (tx *Tx) Hide(id string) {
	if i := tx.Index(id); i >= 0 {
		tx.hidden = append(tx.hidden, tx.Entries[i].ID)
		tx.Entries = append(tx.Entries[:i:i], tx.Entries[i+1:]...)
	}
	tx.hidden = append(tx.hidden, id)
}

// SetQuantity changes the quantity of the entry at i and keeps the new value
// visible across authoritative replaces until it is released.
func (tx *Tx) SetQuantity(i, quantity int) {
	tx.Entries[i].Quantity = quantity
	tx.Entries[i].State = Pending
	if tx.adjusted == nil {
		tx.adjusted = make(map[string]int)
	}
	tx.adjusted[tx.Entries[i].ID] = quantity
}

// Begin applies an optimistic change and returns the snapshot taken
// immediately before it. The change is visible to readers when Begin returns.
func (s *Store) Begin(apply func(tx *Tx)) Snapshot {
	s.mu.Lock()
	s.init()
	prev := cloneSnapshot(s.snap)
	tx := &Tx{Entries: cloneEntries(s.snap.Entries), idMap: s.snap.IDMap}
	apply(tx)
	for _, e := range tx.tracked {
		s.seq++
		s.temps[e.ID] = tempRecord{entry: e, pending: true, seq: s.seq}
	}
	for _, id := range tx.hidden {
		s.hidden[id] = struct{}{}
	}
	for id, qty := range tx.adjusted {
		adj := s.adjust[id]
		adj.quantity = qty
		adj.holds++
		s.adjust[id] = adj
	}
	s.snap.Entries = tx.Entries
	s.snap.Version++
	s.mu.Unlock()

	s.broadcast()
	return prev
}

// Settled lists overlay ids released by Replace, Restore or Release.
// Tracked holds temp ids from Tx.Track, Hidden holds ids passed to Tx.Hide
// and Adjusted holds entry ids passed to Tx.SetQuantity.
type Settled struct {
	Tracked  []string
	Hidden   []string
	Adjusted []string
}

// Replace installs the authoritative collection and rebuilds the temp id
// mapping from it. done.Tracked adds stop overlaying but keep their mapping;
// done.Hidden removals stop being filtered and done.Adjusted quantities stop
// overriding the server's.
func (s *Store) Replace(entries []Entry, done Settled) {
	s.mu.Lock()
	s.init()
	for _, id := range done.Tracked {
		if rec, ok := s.temps[id]; ok {
			rec.pending = false
			s.temps[id] = rec
		}
	}
	for _, id := range done.Hidden {
		delete(s.hidden, id)
	}
	s.unadjust(done.Adjusted)
	s.snap.Entries = s.merge(entries)
	s.snap.SyncedAt = s.now()
	s.snap.LastError = nil
	s.snap.ConsecutiveFailures = 0
	s.snap.Version++
	s.mu.Unlock()

	s.broadcast()
}

// merge must be called with s.mu held.
func (s *Store) merge(authoritative []Entry) []Entry {
	byKey := make(map[Key]string, len(authoritative))
	for _, e := range authoritative {
		byKey[e.Key()] = e.ID
	}

	// A pending add never maps onto a server entry that is being removed;
	// that entry is the one the add replaces.
	idMap := make(map[string]string)
	for tempID, rec := range s.temps {
		serverID, ok := byKey[rec.entry.Key()]
		if ok && rec.pending {
			if _, removing := s.hidden[serverID]; removing {
				ok = false
			}
		}
		if ok {
			idMap[tempID] = serverID
			continue
		}
		if !rec.pending {
			delete(s.temps, tempID)
		}
	}
	s.snap.IDMap = idMap

	hidden := make(map[string]struct{}, len(s.hidden))
	for id := range s.hidden {
		hidden[id] = struct{}{}
		if mapped, ok := idMap[id]; ok {
			hidden[mapped] = struct{}{}
		}
	}

	out := make([]Entry, 0, len(authoritative))
	for _, e := range authoritative {
		if _, skip := hidden[e.ID]; skip {
			continue
		}
		e.State = Confirmed
		out = append(out, s.adjusted(e, idMap))
	}
	var overlay []tempRecord
	for tempID, rec := range s.temps {
		if !rec.pending {
			continue
		}
		if _, ok := idMap[tempID]; ok {
			continue
		}
		if _, skip := hidden[tempID]; skip {
			continue
		}
		overlay = append(overlay, rec)
	}
	sort.Slice(overlay, func(i, j int) bool { return overlay[i].seq < overlay[j].seq })
	for _, rec := range overlay {
		out = append(out, s.adjusted(rec.entry, idMap))
	}
	return out
}

// adjusted applies a pending quantity change made under e's id or under a
// temp id mapped to it. Must be called with s.mu held.
func (s *Store) adjusted(e Entry, idMap map[string]string) Entry {
	if len(s.adjust) == 0 {
		return e
	}
	adj, ok := s.adjust[e.ID]
	if !ok {
		for tempID, serverID := range idMap {
			if serverID != e.ID {
				continue
			}
			if adj, ok = s.adjust[tempID]; ok {
				break
			}
		}
	}
	if ok {
		e.Quantity = adj.quantity
		e.State = Pending
	}
	return e
}

func (s *Store) unadjust(ids []string) {
	for _, id := range ids {
		adj, ok := s.adjust[id]
		if !ok {
			continue
		}
		if adj.holds--; adj.holds <= 0 {
			delete(s.adjust, id)
			continue
		}
		s.adjust[id] = adj
	}
}

// Restore puts back a snapshot taken by Begin verbatim. done.Tracked temp
// ids of failed adds are forgotten and done.Hidden ids become visible again.
func (s *Store) Restore(prev Snapshot, done Settled) {
	s.mu.Lock()
	s.init()
	s.release(done)
	s.snap.Entries = cloneEntries(prev.Entries)
	s.snap.IDMap = cloneIDMap(prev.IDMap)
	s.snap.Version++
	s.mu.Unlock()

	s.broadcast()
}

// Release drops ids from the pending overlays without touching entries.
func (s *Store) Release(done Settled) {
	s.mu.Lock()
	s.init()
	s.release(done)
	s.mu.Unlock()
}

func (s *Store) release(done Settled) {
	for _, id := range done.Tracked {
		delete(s.temps, id)
	}
	for _, id := range done.Hidden {
		delete(s.hidden, id)
	}
	s.unadjust(done.Adjusted)
}

// RecordError keeps the current entries and records a failed canonical reload.
func (s *Store) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.snap.LastError = err
	s.snap.ConsecutiveFailures++
	s.snap.Version++
	s.mu.Unlock()

	s.broadcast()
}

// Resolve maps id to a server id. pending is true while id belongs to an add
// that has not been confirmed yet; known is false for temp ids that never
// reached the server.
func (s *Store) Resolve(id string) (serverID string, pending bool, known bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if mapped, ok := s.snap.IDMap[id]; ok {
		return mapped, false, true
	}
	if !IsTempID(id) {
		return id, false, true
	}
	if rec, ok := s.temps[id]; ok && rec.pending {
		return "", true, true
	}
	return "", false, false
}

// Subscribe returns a channel that receives after every change. Changes
// between reads coalesce into one signal.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.init()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
		})
	}
}

func (s *Store) broadcast() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func cloneSnapshot(in Snapshot) Snapshot {
	out := in
	out.Entries = cloneEntries(in.Entries)
	out.IDMap = cloneIDMap(in.IDMap)
	if in.LastError != nil {
		out.LastError = fmt.Errorf("%w", in.LastError)
	}
	return out
}

func cloneEntries(entries []Entry) []Entry {
	if len(entries) == 0 {
		return nil
	}
	dup := make([]Entry, len(entries))
	copy(dup, entries)
	return dup
}

func cloneIDMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
