package ui

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
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

// View is the active screen.
type View int

const (
	ViewProducts View = iota
	ViewCart
	ViewWishlist
	ViewActivity
)

var viewOrder = []View{ViewProducts, ViewCart, ViewWishlist, ViewActivity}

func (v View) String() string {
	switch v {
	case ViewCart:
		return "cart"
	case ViewWishlist:
		return "wishlist"
	case ViewActivity:
		return "activity"
	default:
		return "products"
	}
}

func parseView(name string) View {
	for _, v := range viewOrder {
		if v.String() == name {
			return v
		}
	}
	return ViewProducts
}

// Catalog serves products and image uploads.
type Catalog interface {
	Products(ctx context.Context) ([]shop.Product, error)
	UploadImage(ctx context.Context, productID, imageURL string) (*shop.Product, error)
}

// Collection is the mutation surface of a cart or wishlist.
type Collection interface {
	Add(ctx context.Context, req optimistic.AddRequest) (state.Entry, error)
	Remove(ctx context.Context, id string) error
	UpdateQuantity(ctx context.Context, id string, quantity int) error
	Clear(ctx context.Context) error
	Refresh(ctx context.Context) error
	Store() *state.Store
}

// ImageWatcher follows image processing after an upload.
type ImageWatcher interface {
	Start(ctx context.Context, resourceID string, sink poll.Sink, onDone func()) bool
	Current() (poll.Target, bool)
}

var (
	_ Collection   = (*optimistic.Coordinator)(nil)
	_ ImageWatcher = (*poll.Poller)(nil)
)

// Options configures the UI.
type Options struct {
	Context   context.Context
	Catalog   Catalog
	Cart      Collection
	Wishlist  Collection
	Poller    ImageWatcher
	Cache     *cache.Cache
	Notices   *notify.Feed
	LogPath   string
	Tick      time.Duration
	Prefs     prefs.Prefs
	PrefsPath string
	Logger    *slog.Logger
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx       context.Context
	catalog   Catalog
	cart      Collection
	wishlist  Collection
	poller    ImageWatcher
	cache     *cache.Cache
	notices   *notify.Feed
	logger    *slog.Logger
	logPath   string
	prefsPath string
	tick      time.Duration

	// Subscriptions
	cartCh     <-chan struct{}
	wishlistCh <-chan struct{}
	cacheCh    <-chan string

	// UI state
	theme       Theme
	keys        keyMap
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool
	now         func() time.Time

	// Products
	products       []shop.Product
	productsErr    error
	productsLoaded bool
	variantIdx     map[string]int

	// Collections
	cartSnap     state.Snapshot
	wishlistSnap state.Snapshot
	inflight     int

	selected map[View]int

	// Notices
	notice      notify.Notice
	noticeUntil time.Time

	// Upload prompt
	uploading   bool
	uploadFor   string
	uploadInput textinput.Model

	// Activity
	activity       []logtail.Record
	activityErr    error
	activityFollow bool
	activityView   viewport.Model
}

const (
	defaultTick    = time.Second
	noticeLifetime = 4 * time.Second
	activityLines  = 400
)

// New creates the model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	themeName := opts.Prefs.Theme
	if themeName == "" {
		themeName = prefs.Default().Theme
	}

	input := textinput.New()
	input.Placeholder = "https://cdn.example.com/image.jpg"
	input.CharLimit = 512

	m := Model{
		ctx:            ctx,
		catalog:        opts.Catalog,
		cart:           opts.Cart,
		wishlist:       opts.Wishlist,
		poller:         opts.Poller,
		cache:          opts.Cache,
		notices:        opts.Notices,
		logger:         logger.With("component", "ui"),
		logPath:        opts.LogPath,
		prefsPath:      prefsPath,
		tick:           tick,
		theme:          GetTheme(themeName),
		keys:           DefaultKeyMap(),
		currentView:    parseView(opts.Prefs.View),
		now:            time.Now,
		variantIdx:     make(map[string]int),
		selected:       make(map[View]int),
		uploadInput:    input,
		activityFollow: true,
	}

	if m.cart != nil {
		m.cartCh, _ = m.cart.Store().Subscribe()
		m.cartSnap = m.cart.Store().Snapshot()
	}
	if m.wishlist != nil {
		m.wishlistCh, _ = m.wishlist.Store().Subscribe()
		m.wishlistSnap = m.wishlist.Store().Snapshot()
	}
	if m.cache != nil {
		m.cacheCh, _ = m.cache.Subscribe(32)
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tickCmd(m.tick),
		m.loadProductsCmd(),
		m.loadActivityCmd(),
	}
	if m.cartCh != nil {
		cmds = append(cmds, waitForStore(shop.KindCart, m.cart.Store(), m.cartCh))
	}
	if m.wishlistCh != nil {
		cmds = append(cmds, waitForStore(shop.KindWishlist, m.wishlist.Store(), m.wishlistCh))
	}
	if m.cacheCh != nil {
		cmds = append(cmds, waitForInvalidation(m.cacheCh))
	}
	if m.notices != nil {
		cmds = append(cmds, waitForNotice(m.notices))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeActivity()
		return m, nil

	case tickMsg:
		return m.handleTick(time.Time(msg))

	case productsMsg:
		m.productsLoaded = true
		if msg.err != nil {
			m.productsErr = msg.err
			m.logger.Warn("product load failed", "error", msg.err)
			return m, nil
		}
		m.productsErr = nil
		m.products = msg.items
		m.clampSelection(ViewProducts, len(m.products))
		return m, nil

	case collectionMsg:
		if msg.kind == shop.KindWishlist {
			m.wishlistSnap = msg.snap
			m.clampSelection(ViewWishlist, len(msg.snap.Entries))
			return m, waitForStore(shop.KindWishlist, m.wishlist.Store(), m.wishlistCh)
		}
		m.cartSnap = msg.snap
		m.clampSelection(ViewCart, len(msg.snap.Entries))
		return m, waitForStore(shop.KindCart, m.cart.Store(), m.cartCh)

	case invalidatedMsg:
		next := waitForInvalidation(m.cacheCh)
		if strings.HasPrefix(msg.key, cache.ScopeProducts+":") {
			return m, tea.Batch(m.loadProductsCmd(), next)
		}
		return m, next

	case noticeMsg:
		m.notice = msg.notice
		m.noticeUntil = m.now().Add(noticeLifetime)
		return m, waitForNotice(m.notices)

	case mutationDoneMsg:
		if m.inflight > 0 {
			m.inflight--
		}
		return m, nil

	case uploadDoneMsg:
		return m.handleUploadDone(msg)

	case activityMsg:
		m.activityErr = msg.err
		if msg.err == nil {
			m.activity = msg.records
		}
		m.renderActivity()
		return m, nil
	}

	if m.currentView == ViewActivity {
		var cmd tea.Cmd
		m.activityView, cmd = m.activityView.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	if line := m.renderNotice(); line != "" {
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewCart:
		return m.renderCollection(shop.KindCart)
	case ViewWishlist:
		return m.renderCollection(shop.KindWishlist)
	case ViewActivity:
		return m.renderActivityView()
	default:
		return m.renderProducts()
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.uploading {
		return m.handleUploadKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		m.renderActivity()
		return m, nil
	case key.Matches(msg, m.keys.Tab):
		return m.switchView(m.offsetView(1))
	case key.Matches(msg, m.keys.ShiftTab):
		return m.switchView(m.offsetView(-1))
	case key.Matches(msg, m.keys.ViewProducts):
		return m.switchView(ViewProducts)
	case key.Matches(msg, m.keys.ViewCart):
		return m.switchView(ViewCart)
	case key.Matches(msg, m.keys.ViewWishlist):
		return m.switchView(ViewWishlist)
	case key.Matches(msg, m.keys.ViewActivity):
		return m.switchView(ViewActivity)
	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()
	}

	switch m.currentView {
	case ViewProducts:
		return m.handleProductsKey(msg)
	case ViewCart:
		return m.handleCollectionKey(shop.KindCart, msg)
	case ViewWishlist:
		return m.handleCollectionKey(shop.KindWishlist, msg)
	case ViewActivity:
		return m.handleActivityKey(msg)
	}
	return m, nil
}

func (m Model) offsetView(delta int) View {
	idx := 0
	for i, v := range viewOrder {
		if v == m.currentView {
			idx = i
		}
	}
	return viewOrder[(idx+delta+len(viewOrder))%len(viewOrder)]
}

func (m Model) switchView(v View) (tea.Model, tea.Cmd) {
	m.currentView = v
	m.savePrefs()
	if v == ViewActivity {
		return m, m.loadActivityCmd()
	}
	return m, nil
}

func (m Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	if err := prefs.Save(m.prefsPath, prefs.Prefs{Theme: m.theme.Name, View: m.currentView.String()}); err != nil {
		m.logger.Warn("save prefs failed", "error", err)
	}
}

func (m Model) handleTick(now time.Time) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{tickCmd(m.tick)}
	if !m.noticeUntil.IsZero() && now.After(m.noticeUntil) {
		m.notice = notify.Notice{}
		m.noticeUntil = time.Time{}
	}
	if m.currentView == ViewActivity && m.activityFollow {
		cmds = append(cmds, m.loadActivityCmd())
	}
	return m, tea.Batch(cmds...)
}

// moveSelection applies navigation keys to the list of length n.
func (m *Model) moveSelection(v View, n int, msg tea.KeyMsg) bool {
	if n == 0 {
		return false
	}
	cur := m.selected[v]
	switch {
	case key.Matches(msg, m.keys.Up):
		if cur > 0 {
			cur--
		}
	case key.Matches(msg, m.keys.Down):
		if cur < n-1 {
			cur++
		}
	case key.Matches(msg, m.keys.Top):
		cur = 0
	case key.Matches(msg, m.keys.Bottom):
		cur = n - 1
	default:
		return false
	}
	m.selected[v] = cur
	return true
}

func (m *Model) clampSelection(v View, n int) {
	cur := m.selected[v]
	if cur >= n {
		cur = n - 1
	}
	if cur < 0 {
		cur = 0
	}
	m.selected[v] = cur
}

func (m Model) collection(kind shop.Kind) Collection {
	if kind == shop.KindWishlist {
		return m.wishlist
	}
	return m.cart
}

func (m Model) snapshot(kind shop.Kind) state.Snapshot {
	if kind == shop.KindWishlist {
		return m.wishlistSnap
	}
	return m.cartSnap
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if err != nil && m.ctx.Err() != nil {
		return nil
	}
	return err
}
