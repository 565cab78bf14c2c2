package ui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/kiosk/internal/cache"
	"github.com/five82/kiosk/internal/logtail"
	"github.com/five82/kiosk/internal/notify"
	"github.com/five82/kiosk/internal/optimistic"
	"github.com/five82/kiosk/internal/poll"
	"github.com/five82/kiosk/internal/prefs"
	"github.com/five82/kiosk/internal/shop"
	"github.com/five82/kiosk/internal/state"
)

type fakeCollection struct {
	mu      sync.Mutex
	store   *state.Store
	adds    []optimistic.AddRequest
	removes []string
	updates map[string]int
	clears  int
}

func newFakeCollection(entries ...state.Entry) *fakeCollection {
	store := state.NewStore()
	if len(entries) > 0 {
		store.Replace(entries, state.Settled{})
	}
	return &fakeCollection{store: store, updates: make(map[string]int)}
}

func (f *fakeCollection) Add(_ context.Context, req optimistic.AddRequest) (state.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, req)
	return state.Entry{ProductID: req.ProductID, VariantID: req.VariantID, Quantity: req.Quantity}, nil
}

func (f *fakeCollection) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes = append(f.removes, id)
	return nil
}

func (f *fakeCollection) UpdateQuantity(_ context.Context, id string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = quantity
	return nil
}

func (f *fakeCollection) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeCollection) Refresh(context.Context) error { return nil }

func (f *fakeCollection) Store() *state.Store { return f.store }

type fakeCatalog struct {
	products []shop.Product
	err      error
	uploads  []string
}

func (f *fakeCatalog) Products(context.Context) ([]shop.Product, error) {
	return f.products, f.err
}

func (f *fakeCatalog) UploadImage(_ context.Context, productID, imageURL string) (*shop.Product, error) {
	f.uploads = append(f.uploads, productID+" "+imageURL)
	for _, p := range f.products {
		if p.ID == productID {
			p.ImageURL = imageURL
			p.ImageProcessingStatus = shop.StatusPending
			return &p, nil
		}
	}
	return nil, &shop.APIError{Status: 404, Path: "/api/products/" + productID, Message: "Product not found"}
}

type fakeWatcher struct {
	started []string
	sinks   []poll.Sink
}

func (f *fakeWatcher) Start(_ context.Context, resourceID string, sink poll.Sink, _ func()) bool {
	f.started = append(f.started, resourceID)
	f.sinks = append(f.sinks, sink)
	return true
}

func (f *fakeWatcher) Current() (poll.Target, bool) { return poll.Target{}, false }

var testProducts = []shop.Product{
	{
		ID:    "p-1",
		Name:  "Mug",
		Price: 1250,
		Variants: []shop.Variant{
			{ID: "v-1", Name: "Small", Price: 1000},
			{ID: "v-2", Name: "Large", Price: 1250},
		},
	},
	{ID: "p-2", Name: "Poster", Price: 900, Variants: []shop.Variant{{ID: "v-9", Name: "A2"}}},
}

type harness struct {
	model    Model
	cart     *fakeCollection
	wishlist *fakeCollection
	catalog  *fakeCatalog
	watcher  *fakeWatcher
	feed     *notify.Feed
	prefs    string
}

func newHarness(t *testing.T, cartEntries ...state.Entry) *harness {
	t.Helper()
	h := &harness{
		cart:     newFakeCollection(cartEntries...),
		wishlist: newFakeCollection(),
		catalog:  &fakeCatalog{products: testProducts},
		watcher:  &fakeWatcher{},
		feed:     notify.NewFeed(10),
		prefs:    filepath.Join(t.TempDir(), "prefs.toml"),
	}
	m := New(Options{
		Context:   context.Background(),
		Catalog:   h.catalog,
		Cart:      h.cart,
		Wishlist:  h.wishlist,
		Poller:    h.watcher,
		Cache:     cache.New(),
		Notices:   h.feed,
		PrefsPath: h.prefs,
	})
	h.model = h.send(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	h.model = h.send(t, h.model, productsMsg{items: testProducts})
	return h
}

func (h *harness) send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, _ := m.Update(msg)
	out, ok := updated.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", updated)
	}
	return out
}

func (h *harness) press(t *testing.T, msg tea.KeyMsg) tea.Cmd {
	t.Helper()
	updated, cmd := h.model.Update(msg)
	h.model = updated.(Model)
	return cmd
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func runCmd(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatalf("expected a command")
	}
	return cmd()
}

func TestNew_RestoresPrefs(t *testing.T) {
	m := New(Options{Prefs: prefs.Prefs{Theme: "Slate", View: "wishlist"}})
	if m.theme.Name != "Slate" {
		t.Fatalf("theme = %q, want Slate", m.theme.Name)
	}
	if m.currentView != ViewWishlist {
		t.Fatalf("view = %v, want wishlist", m.currentView)
	}

	m = New(Options{Prefs: prefs.Prefs{Theme: "Unknown", View: "nope"}})
	if m.theme.Name != "Nightfox" || m.currentView != ViewProducts {
		t.Fatalf("fallbacks = %q/%v", m.theme.Name, m.currentView)
	}
}

func TestView_LoadingUntilSized(t *testing.T) {
	m := New(Options{})
	if got := m.View(); got != "Loading..." {
		t.Fatalf("View = %q", got)
	}
}

func TestProducts_AddSelectedVariant(t *testing.T) {
	h := newHarness(t)

	h.press(t, keyRunes("]"))
	msg := runCmd(t, h.press(t, keyRunes("a")))
	if _, ok := msg.(mutationDoneMsg); !ok {
		t.Fatalf("msg = %T, want mutationDoneMsg", msg)
	}
	if h.model.inflight != 1 {
		t.Fatalf("inflight = %d, want 1", h.model.inflight)
	}
	h.model = h.send(t, h.model, msg)
	if h.model.inflight != 0 {
		t.Fatalf("inflight after done = %d, want 0", h.model.inflight)
	}

	if len(h.cart.adds) != 1 {
		t.Fatalf("cart adds = %#v", h.cart.adds)
	}
	want := optimistic.AddRequest{ProductID: "p-1", VariantID: "v-2", Quantity: 1}
	if h.cart.adds[0] != want {
		t.Fatalf("add = %#v, want %#v", h.cart.adds[0], want)
	}

	h.press(t, keyRunes("j"))
	runCmd(t, h.press(t, keyRunes("s")))
	if len(h.wishlist.adds) != 1 || h.wishlist.adds[0].ProductID != "p-2" {
		t.Fatalf("wishlist adds = %#v", h.wishlist.adds)
	}
}

func TestProducts_ViewShowsVariantAndPrice(t *testing.T) {
	h := newHarness(t)
	out := h.model.View()
	for _, want := range []string{"kiosk", "Mug", "‹ Small ›", "10.00", "Poster"} {
		if !strings.Contains(out, want) {
			t.Fatalf("View missing %q:\n%s", want, out)
		}
	}
}

func TestProducts_LoadErrorShowsMessage(t *testing.T) {
	m := New(Options{})
	m = (&harness{}).send(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m = (&harness{}).send(t, m, productsMsg{err: &shop.APIError{Status: 503, Message: "Catalog offline"}})
	if out := m.View(); !strings.Contains(out, "Catalog offline") {
		t.Fatalf("View = %q, want server message", out)
	}
}

func TestCart_QuantityRemoveAndClear(t *testing.T) {
	h := newHarness(t, state.Entry{ID: "item-1", ProductID: "p-1", VariantID: "v-1", Quantity: 2, Name: "Mug", Price: 1000})
	h.press(t, keyRunes("c"))
	if h.model.currentView != ViewCart {
		t.Fatalf("view = %v, want cart", h.model.currentView)
	}

	runCmd(t, h.press(t, keyRunes("+")))
	if h.cart.updates["item-1"] != 3 {
		t.Fatalf("updates = %#v, want item-1 -> 3", h.cart.updates)
	}
	runCmd(t, h.press(t, keyRunes("-")))
	if h.cart.updates["item-1"] != 1 {
		t.Fatalf("updates = %#v, want item-1 -> 1", h.cart.updates)
	}
	runCmd(t, h.press(t, keyRunes("d")))
	if len(h.cart.removes) != 1 || h.cart.removes[0] != "item-1" {
		t.Fatalf("removes = %#v", h.cart.removes)
	}
	runCmd(t, h.press(t, keyRunes("C")))
	if h.cart.clears != 1 {
		t.Fatalf("clears = %d, want 1", h.cart.clears)
	}

	out := h.model.View()
	if !strings.Contains(out, "Subtotal") || !strings.Contains(out, "20.00") {
		t.Fatalf("View missing subtotal:\n%s", out)
	}
}

func TestCart_RolledBackRowIgnoresActions(t *testing.T) {
	h := newHarness(t)
	h.model = h.send(t, h.model, collectionMsg{kind: shop.KindCart, snap: state.Snapshot{
		Entries: []state.Entry{{ID: "tmp-1", ProductID: "p-1", Quantity: 1, Name: "Mug", State: state.RolledBack}},
	}})
	h.press(t, keyRunes("c"))
	if cmd := h.press(t, keyRunes("d")); cmd != nil {
		t.Fatalf("remove on rolled-back row returned a command")
	}
	if out := h.model.View(); !strings.Contains(out, "rolled-back") {
		t.Fatalf("View missing rolled-back badge:\n%s", out)
	}
}

func TestWishlist_MoveToCart(t *testing.T) {
	h := newHarness(t)
	h.model = h.send(t, h.model, collectionMsg{kind: shop.KindWishlist, snap: state.Snapshot{
		Entries: []state.Entry{{ID: "w-1", ProductID: "p-2", VariantID: "v-9", Quantity: 1, Name: "Poster"}},
	}})
	h.press(t, keyRunes("w"))

	msg := runCmd(t, h.press(t, keyRunes("m")))
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		t.Fatalf("msg = %T, want tea.BatchMsg", msg)
	}
	for _, cmd := range batch {
		runCmd(t, cmd)
	}
	if len(h.cart.adds) != 1 || h.cart.adds[0].VariantID != "v-9" {
		t.Fatalf("cart adds = %#v", h.cart.adds)
	}
	if len(h.wishlist.removes) != 1 || h.wishlist.removes[0] != "w-1" {
		t.Fatalf("wishlist removes = %#v", h.wishlist.removes)
	}
	if h.model.inflight != 2 {
		t.Fatalf("inflight = %d, want 2", h.model.inflight)
	}
}

func TestTabCyclesViewsAndSavesPrefs(t *testing.T) {
	h := newHarness(t)
	h.press(t, tea.KeyMsg{Type: tea.KeyTab})
	if h.model.currentView != ViewCart {
		t.Fatalf("view = %v, want cart", h.model.currentView)
	}
	h.press(t, tea.KeyMsg{Type: tea.KeyShiftTab})
	h.press(t, tea.KeyMsg{Type: tea.KeyShiftTab})
	if h.model.currentView != ViewActivity {
		t.Fatalf("view = %v, want activity", h.model.currentView)
	}
	h.press(t, keyRunes("T"))

	saved, err := prefs.Load(h.prefs)
	if err != nil {
		t.Fatalf("prefs.Load: %v", err)
	}
	if saved.View != "activity" || saved.Theme != "Kanagawa" {
		t.Fatalf("saved prefs = %#v", saved)
	}
}

func TestUploadFlowStartsPoll(t *testing.T) {
	h := newHarness(t)

	h.press(t, keyRunes("u"))
	if !h.model.uploading || h.model.uploadFor != "p-1" {
		t.Fatalf("upload prompt not open: uploading=%v for=%q", h.model.uploading, h.model.uploadFor)
	}
	h.press(t, keyRunes("https://cdn.test/mug.jpg"))
	msg := runCmd(t, h.press(t, tea.KeyMsg{Type: tea.KeyEnter}))
	if h.model.uploading {
		t.Fatalf("prompt still open after submit")
	}
	done, ok := msg.(uploadDoneMsg)
	if !ok {
		t.Fatalf("msg = %T, want uploadDoneMsg", msg)
	}
	if len(h.catalog.uploads) != 1 || h.catalog.uploads[0] != "p-1 https://cdn.test/mug.jpg" {
		t.Fatalf("uploads = %#v", h.catalog.uploads)
	}

	h.model = h.send(t, h.model, done)
	if len(h.watcher.started) != 1 || h.watcher.started[0] != "p-1" {
		t.Fatalf("poll started = %#v", h.watcher.started)
	}
	if _, ok := h.watcher.sinks[0].(cache.Scope); !ok {
		t.Fatalf("sink = %T, want cache.Scope", h.watcher.sinks[0])
	}
	if h.model.products[0].ImageProcessingStatus != shop.StatusPending {
		t.Fatalf("product status = %q, want pending", h.model.products[0].ImageProcessingStatus)
	}
}

func TestUploadRejectsInvalidURL(t *testing.T) {
	h := newHarness(t)
	h.press(t, keyRunes("u"))
	h.press(t, keyRunes("not a url"))
	if cmd := h.press(t, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatalf("invalid URL produced a command")
	}
	if !h.model.uploading {
		t.Fatalf("prompt closed on invalid URL")
	}
	n, ok := h.feed.Latest()
	if !ok || n.Title != "Invalid image URL" || n.Level != notify.LevelError {
		t.Fatalf("notice = %#v", n)
	}

	h.press(t, tea.KeyMsg{Type: tea.KeyEsc})
	if h.model.uploading {
		t.Fatalf("esc did not close prompt")
	}
}

func TestUploadFailureNotifies(t *testing.T) {
	h := newHarness(t)
	h.model = h.send(t, h.model, uploadDoneMsg{productID: "p-1", err: errors.New("boom")})
	n, _ := h.feed.Latest()
	if n.Title != "Image upload failed" || n.Description != "Something went wrong. Please try again." {
		t.Fatalf("notice = %#v", n)
	}
	if len(h.watcher.started) != 0 {
		t.Fatalf("poll started after failed upload")
	}
}

func TestProductInvalidationReloads(t *testing.T) {
	h := newHarness(t)
	h.catalog.products = []shop.Product{{ID: "p-3", Name: "Tote"}}

	_, cmd := h.model.Update(invalidatedMsg{key: cache.ScopeProducts + ":list"})
	batch, ok := runCmd(t, cmd).(tea.BatchMsg)
	if !ok || len(batch) != 2 {
		t.Fatalf("cmd = %#v, want a two-command batch", batch)
	}
	msg, ok := batch[0]().(productsMsg)
	if !ok || len(msg.items) != 1 || msg.items[0].ID != "p-3" {
		t.Fatalf("reload msg = %#v", msg)
	}
}

func TestNoticeExpiresOnTick(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.model.now = func() time.Time { return now }

	h.model = h.send(t, h.model, noticeMsg{notice: notify.Notice{Level: notify.LevelSuccess, Title: "Added to cart", Description: "Mug (Large)"}})
	if out := h.model.View(); !strings.Contains(out, "Added to cart") || !strings.Contains(out, "Mug (Large)") {
		t.Fatalf("View missing notice:\n%s", out)
	}

	h.model = h.send(t, h.model, tickMsg(now.Add(time.Second)))
	if h.model.notice.Title == "" {
		t.Fatalf("notice cleared too early")
	}
	h.model = h.send(t, h.model, tickMsg(now.Add(noticeLifetime+time.Second)))
	if h.model.notice.Title != "" {
		t.Fatalf("notice = %#v, want cleared", h.model.notice)
	}
}

func TestHeaderShowsOffline(t *testing.T) {
	h := newHarness(t)
	h.cart.store.RecordError(errors.New("dial tcp: connection refused"))
	h.cart.store.RecordError(errors.New("dial tcp: connection refused"))
	h.model = h.send(t, h.model, collectionMsg{kind: shop.KindCart, snap: h.cart.store.Snapshot()})

	out := h.model.renderHeader()
	if !strings.Contains(out, "OFFLINE") || !strings.Contains(out, "server unreachable") {
		t.Fatalf("header = %q", out)
	}
}

func TestHelpOverlayToggles(t *testing.T) {
	h := newHarness(t)
	h.press(t, keyRunes("?"))
	if out := h.model.View(); !strings.Contains(out, "Keyboard Shortcuts") || !strings.Contains(out, "Move to cart") {
		t.Fatalf("help overlay missing content:\n%s", out)
	}
	h.press(t, keyRunes("x"))
	if h.model.showHelp {
		t.Fatalf("any key should close help")
	}
}

func TestQuit(t *testing.T) {
	h := newHarness(t)
	msg := runCmd(t, h.press(t, tea.KeyMsg{Type: tea.KeyCtrlC}))
	if _, ok := msg.(tea.QuitMsg); !ok {
		t.Fatalf("msg = %T, want tea.QuitMsg", msg)
	}
}

func TestFormatRecord(t *testing.T) {
	styles := GetTheme("Nightfox").Styles()
	rec := logtail.Parse(`time=2026-01-02T03:04:05.000Z level=WARN msg="cart reload failed" component=optimistic kind=cart`)
	out := formatRecord(rec, styles)
	for _, want := range []string{"03:04:05", "WRN", "optimistic", "cart reload failed", "kind=", "cart"} {
		if !strings.Contains(out, want) {
			t.Fatalf("formatRecord missing %q: %q", want, out)
		}
	}

	raw := formatRecord(logtail.Parse("panic: something odd"), styles)
	if !strings.Contains(raw, "panic: something odd") {
		t.Fatalf("raw line = %q", raw)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 6, "abc..."},
		{"abcdef", 2, "ab"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
	if got := truncateMiddle("abcdefghijklmnop", 9); got != "abc...nop" {
		t.Fatalf("truncateMiddle = %q", got)
	}
}

func TestThemes(t *testing.T) {
	names := ThemeNames()
	if len(names) != 3 || names[0] != "Nightfox" {
		t.Fatalf("ThemeNames = %v", names)
	}
	if got := NextTheme("Slate"); got != "Nightfox" {
		t.Fatalf("NextTheme(Slate) = %q", got)
	}
	if got := NextTheme("missing"); got != "Nightfox" {
		t.Fatalf("NextTheme(missing) = %q", got)
	}
	for _, name := range names {
		th := GetTheme(name)
		for _, status := range []string{"pending", "confirmed", "rolled-back", "completed", "failed", "offline"} {
			if th.statusColor(status) == th.Muted {
				t.Fatalf("theme %s missing status color %q", name, status)
			}
		}
	}
}
