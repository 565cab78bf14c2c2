package optimistic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/five82/kiosk/internal/notify"
	"github.com/five82/kiosk/internal/shop"
	"github.com/five82/kiosk/internal/state"
)

// ErrMalformedResponse marks an authoritative collection that failed validation.
var ErrMalformedResponse = errors.New("optimistic: malformed server response")

const genericFailure = "Something went wrong. Please try again."

// Op names a collection mutation.
type Op string

const (
	OpAdd            Op = "add"
	OpRemove         Op = "remove"
	OpUpdateQuantity Op = "update-quantity"
	OpClear          Op = "clear"
)

// Mutation is one server-side change to a collection.
type Mutation struct {
	Op        Op
	ProductID string
	VariantID string
	ItemID    string
	Quantity  int
}

// Backend submits mutations and loads the canonical collection. Both return
// the full authoritative collection.
type Backend interface {
	Submit(ctx context.Context, m Mutation) ([]state.Entry, error)
	Load(ctx context.Context) ([]state.Entry, error)
}

// Listing holds the denormalized product fields shown before confirmation.
type Listing struct {
	Name        string
	VariantName string
	Price       int64
	ImageURL    string
}

// Catalog resolves product variants to display fields.
type Catalog interface {
	Lookup(productID, variantID string) (Listing, bool)
}

// Invalidator marks the collection's cached queries stale.
type Invalidator interface {
	InvalidateList()
}

// Options configure a Coordinator. Backend and Store are required.
type Options struct {
	Kind        shop.Kind
	Backend     Backend
	Catalog     Catalog
	Store       *state.Store
	Invalidator Invalidator
	Notifier    notify.Notifier
	Logger      *slog.Logger
	// Accumulate sums quantities when the same variant is added twice (cart).
	// Otherwise repeated adds are absorbed (wishlist).
	Accumulate bool
}

// AddRequest identifies the variant to add. Quantity defaults to 1.
type AddRequest struct {
	ProductID string
	VariantID string
	Quantity  int
}

// Coordinator applies collection mutations optimistically and reconciles
// them with the server.
type Coordinator struct {
	kind        shop.Kind
	backend     Backend
	catalog     Catalog
	store       *state.Store
	invalidator Invalidator
	notifier    notify.Notifier
	logger      *slog.Logger
	accumulate  bool

	mu       sync.Mutex
	inflight map[string]*pendingAdd // keyed by temp id
}

// pendingAdd is closed once its add settles. confirmed is written before
// done is closed.
type pendingAdd struct {
	done      chan struct{}
	confirmed bool
}

// New returns a Coordinator for one collection.
func New(opts Options) (*Coordinator, error) {
	if opts.Backend == nil {
		return nil, errors.New("optimistic: backend is required")
	}
	if opts.Store == nil {
		return nil, errors.New("optimistic: store is required")
	}
	if opts.Kind == "" {
		opts.Kind = shop.KindCart
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{
		kind:        opts.Kind,
		backend:     opts.Backend,
		catalog:     opts.Catalog,
		store:       opts.Store,
		invalidator: opts.Invalidator,
		notifier:    opts.Notifier,
		logger:      logger.With("component", "optimistic", "collection", string(opts.Kind)),
		accumulate:  opts.Accumulate,
		inflight:    make(map[string]*pendingAdd),
	}, nil
}

// Store returns the collection store the coordinator writes to.
func (c *Coordinator) Store() *state.Store {
	return c.store
}

// Add shows the variant in the collection immediately, submits the add and
// returns the settled entry. On failure the entry comes back RolledBack along
// with the error.
func (c *Coordinator) Add(ctx context.Context, req AddRequest) (state.Entry, error) {
	if strings.TrimSpace(req.ProductID) == "" {
		return state.Entry{}, fmt.Errorf("add to %s: product id is required", c.kind)
	}
	if strings.TrimSpace(req.VariantID) == "" {
		return state.Entry{}, fmt.Errorf("add to %s: variant id is required", c.kind)
	}
	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}
	listing := c.lookup(req.ProductID, req.VariantID)
	key := state.Key{ProductID: req.ProductID, VariantID: req.VariantID}

	tempID := state.NewTempID()
	add := c.track(tempID)
	defer c.untrack(tempID, add)

	var applied state.Entry
	var tracked, adjusted []string
	prev := c.store.Begin(func(tx *state.Tx) {
		if i := tx.IndexKey(key); i >= 0 {
			if c.accumulate {
				tx.SetQuantity(i, tx.Entries[i].Quantity+qty)
				adjusted = []string{tx.Entries[i].ID}
			}
			applied = tx.Entries[i]
			return
		}
		applied = state.Entry{
			ID:          tempID,
			ProductID:   req.ProductID,
			VariantID:   req.VariantID,
			Quantity:    qty,
			Name:        listing.Name,
			VariantName: listing.VariantName,
			Price:       listing.Price,
			ImageURL:    listing.ImageURL,
			State:       state.Pending,
		}
		tx.Track(applied)
		tracked = []string{tempID}
	})
	c.logger.Debug("optimistic add applied", "product", req.ProductID, "variant", req.VariantID, "entry", applied.ID)

	entries, err := c.submit(ctx, Mutation{Op: OpAdd, ProductID: req.ProductID, VariantID: req.VariantID, Quantity: qty})
	settled := state.Settled{Tracked: tracked, Adjusted: adjusted}
	result := applied
	if err != nil {
		c.store.Restore(prev, settled)
		result.State = state.RolledBack
		c.logger.Info("add rolled back", "product", req.ProductID, "variant", req.VariantID, "error", err)
	} else {
		add.confirmed = true
		c.store.Replace(entries, settled)
		c.invalidate()
		if confirmed, ok := findKey(entries, key); ok {
			result = confirmed
		}
		result.State = state.Confirmed
	}

	c.settle(ctx)
	c.announce(OpAdd, err, describe(listing.Name, listing.VariantName))
	return result, err
}

// Remove hides the entry immediately and deletes it on the server. id may be
// a temp id; the removal then waits for the pending add and targets the
// server id it was confirmed under. If that add never reached the server the
// removal completes without a network call.
func (c *Coordinator) Remove(ctx context.Context, id string) error {
	var removed state.Entry
	var hidden []string
	prev := c.store.Begin(func(tx *state.Tx) {
		i := tx.Index(id)
		if i < 0 {
			return
		}
		removed = tx.Entries[i]
		hidden = hideIDs(removed.ID, id)
		tx.Hide(id)
	})
	if hidden == nil {
		return fmt.Errorf("remove %s: %w", id, state.ErrUnknownEntry)
	}
	subject := describe(removed.Name, removed.VariantName)
	released := state.Settled{Hidden: hidden}

	serverID, err := c.resolve(ctx, id)
	if err == nil && serverID == "" {
		c.store.Release(released)
		c.logger.Debug("removed entry that never reached the server", "entry", id)
		c.announce(OpRemove, nil, subject)
		return nil
	}

	var entries []state.Entry
	if err == nil {
		entries, err = c.submit(ctx, Mutation{Op: OpRemove, ItemID: serverID, ProductID: removed.ProductID, VariantID: removed.VariantID})
	}
	if err != nil {
		c.store.Restore(prev, released)
		c.logger.Info("remove rolled back", "entry", id, "error", err)
	} else {
		c.store.Replace(entries, released)
		c.invalidate()
	}

	c.settle(ctx)
	c.announce(OpRemove, err, subject)
	return err
}

// UpdateQuantity sets the entry's quantity. A quantity of zero or less
// removes the entry.
func (c *Coordinator) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	if quantity <= 0 {
		return c.Remove(ctx, id)
	}

	var target state.Entry
	found := false
	prev := c.store.Begin(func(tx *state.Tx) {
		i := tx.Index(id)
		if i < 0 {
			return
		}
		found = true
		tx.SetQuantity(i, quantity)
		target = tx.Entries[i]
	})
	if !found {
		return fmt.Errorf("update %s: %w", id, state.ErrUnknownEntry)
	}
	released := state.Settled{Adjusted: []string{target.ID}}

	serverID, err := c.resolve(ctx, id)
	if err == nil && serverID == "" {
		err = fmt.Errorf("update %s: %w", id, state.ErrUnknownEntry)
	}
	var entries []state.Entry
	if err == nil {
		entries, err = c.submit(ctx, Mutation{Op: OpUpdateQuantity, ItemID: serverID, Quantity: quantity})
	}
	if err != nil {
		c.store.Restore(prev, released)
		c.logger.Info("quantity update rolled back", "entry", id, "error", err)
	} else {
		c.store.Replace(entries, released)
		c.invalidate()
	}

	c.settle(ctx)
	c.announce(OpUpdateQuantity, err, describe(target.Name, target.VariantName))
	return err
}

// Clear empties the visible collection and issues one bulk clear.
func (c *Coordinator) Clear(ctx context.Context) error {
	var hidden []string
	prev := c.store.Begin(func(tx *state.Tx) {
		ids := make([]string, 0, len(tx.Entries))
		for _, e := range tx.Entries {
			ids = append(ids, e.ID)
		}
		for _, id := range ids {
			tx.Hide(id)
		}
		hidden = ids
	})
	released := state.Settled{Hidden: hidden}

	entries, err := c.submit(ctx, Mutation{Op: OpClear})
	if err != nil {
		c.store.Restore(prev, released)
		c.logger.Info("clear rolled back", "error", err)
	} else {
		c.store.Replace(entries, released)
		c.invalidate()
	}

	c.settle(ctx)
	c.announce(OpClear, err, "")
	return err
}

// Refresh reloads the canonical collection without mutating it.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.settle(ctx)
}

func (c *Coordinator) submit(ctx context.Context, m Mutation) ([]state.Entry, error) {
	entries, err := c.backend.Submit(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", m.Op, c.kind, err)
	}
	if err := Validate(entries); err != nil {
		return nil, fmt.Errorf("%s %s: %w", m.Op, c.kind, err)
	}
	return entries, nil
}

// settle replaces the visible collection with a fresh canonical load. It runs
// after every mutation regardless of outcome and outlives the caller's
// cancellation.
func (c *Coordinator) settle(ctx context.Context) error {
	entries, err := c.backend.Load(context.WithoutCancel(ctx))
	if err == nil {
		err = Validate(entries)
	}
	if err != nil {
		err = fmt.Errorf("reload %s: %w", c.kind, err)
		c.logger.Warn("canonical reload failed", "error", err)
		c.store.RecordError(err)
		return err
	}
	c.store.Replace(entries, state.Settled{})
	return nil
}

// resolve maps id to a server id, waiting for a pending add to settle first.
// An empty result with a nil error means the add never reached the server.
// An add that was confirmed but left no matching server entry is an error.
func (c *Coordinator) resolve(ctx context.Context, id string) (string, error) {
	var awaited *pendingAdd
	for {
		serverID, pending, known := c.store.Resolve(id)
		if !known {
			if awaited != nil && awaited.confirmed {
				return "", fmt.Errorf("add %s was confirmed but no server entry matches it: %w", id, state.ErrUnknownEntry)
			}
			return "", nil
		}
		if !pending {
			return serverID, nil
		}
		wait := c.waitFor(id)
		if wait == nil {
			// The add settled between the two lookups, or belongs to
			// another coordinator and cannot be awaited.
			if _, stillPending, _ := c.store.Resolve(id); stillPending {
				return "", nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for pending add %s: %w", id, ctx.Err())
		case <-wait.done:
			awaited = wait
		}
	}
}

func (c *Coordinator) track(tempID string) *pendingAdd {
	add := &pendingAdd{done: make(chan struct{})}
	c.mu.Lock()
	c.inflight[tempID] = add
	c.mu.Unlock()
	return add
}

func (c *Coordinator) untrack(tempID string, add *pendingAdd) {
	c.mu.Lock()
	delete(c.inflight, tempID)
	c.mu.Unlock()
	close(add.done)
}

func (c *Coordinator) waitFor(tempID string) *pendingAdd {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[tempID]
}

func (c *Coordinator) lookup(productID, variantID string) Listing {
	if c.catalog != nil {
		if listing, ok := c.catalog.Lookup(productID, variantID); ok {
			return listing
		}
	}
	c.logger.Debug("variant not in catalog, using placeholder", "product", productID, "variant", variantID)
	return Listing{Name: "Unknown"}
}

func (c *Coordinator) invalidate() {
	if c.invalidator != nil {
		c.invalidator.InvalidateList()
	}
}

func (c *Coordinator) announce(op Op, err error, subject string) {
	if c.notifier == nil {
		return
	}
	if err != nil {
		c.notifier.Notify(notify.Notice{
			Level:       notify.LevelError,
			Title:       failureTitle(op, c.kind),
			Description: UserMessage(err),
		})
		return
	}
	c.notifier.Notify(notify.Notice{
		Level:       notify.LevelSuccess,
		Title:       successTitle(op, c.kind),
		Description: subject,
	})
}

// Validate rejects collections with missing ids, negative quantities or
// duplicate entries.
func Validate(entries []state.Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("%w: item %d has no id", ErrMalformedResponse, i)
		}
		if strings.TrimSpace(e.ProductID) == "" {
			return fmt.Errorf("%w: item %s has no product id", ErrMalformedResponse, e.ID)
		}
		if e.Quantity < 0 {
			return fmt.Errorf("%w: item %s has quantity %d", ErrMalformedResponse, e.ID, e.Quantity)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: duplicate item %s", ErrMalformedResponse, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// UserMessage extracts a human readable message from err, falling back to a
// generic one.
func UserMessage(err error) string {
	var withMessage interface{ UserMessage() string }
	if errors.As(err, &withMessage) {
		if msg := strings.TrimSpace(withMessage.UserMessage()); msg != "" {
			return msg
		}
	}
	return genericFailure
}

func successTitle(op Op, kind shop.Kind) string {
	switch op {
	case OpAdd:
		return "Added to " + string(kind)
	case OpRemove:
		return "Removed from " + string(kind)
	case OpClear:
		return capitalize(string(kind)) + " cleared"
	default:
		return capitalize(string(kind)) + " updated"
	}
}

func failureTitle(op Op, kind shop.Kind) string {
	switch op {
	case OpAdd:
		return "Could not add to " + string(kind)
	case OpRemove:
		return "Could not remove from " + string(kind)
	case OpClear:
		return "Could not clear " + string(kind)
	default:
		return "Could not update " + string(kind)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func describe(name, variant string) string {
	switch {
	case name == "":
		return variant
	case variant == "":
		return name
	default:
		return name + " (" + variant + ")"
	}
}

func hideIDs(entryID, requested string) []string {
	if entryID == requested {
		return []string{entryID}
	}
	return []string{entryID, requested}
}

func findKey(entries []state.Entry, key state.Key) (state.Entry, bool) {
	for _, e := range entries {
		if e.Key() == key {
			return e, true
		}
	}
	return state.Entry{}, false
}
