package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/kiosk/internal/cache"
	"github.com/five82/kiosk/internal/logtail"
	"github.com/five82/kiosk/internal/notify"
	"github.com/five82/kiosk/internal/optimistic"
	"github.com/five82/kiosk/internal/shop"
	"github.com/five82/kiosk/internal/state"
)

type tickMsg time.Time

type productsMsg struct {
	items []shop.Product
	err   error
}

type collectionMsg struct {
	kind shop.Kind
	snap state.Snapshot
}

type invalidatedMsg struct {
	key string
}

type noticeMsg struct {
	notice notify.Notice
}

type mutationDoneMsg struct {
	err error
}

type uploadDoneMsg struct {
	productID string
	product   *shop.Product
	err       error
}

type activityMsg struct {
	records []logtail.Record
	err     error
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) loadProductsCmd() tea.Cmd {
	if m.catalog == nil {
		return nil
	}
	ctx, catalog := m.ctx, m.catalog
	return func() tea.Msg {
		items, err := catalog.Products(ctx)
		return productsMsg{items: items, err: err}
	}
}

func (m Model) loadActivityCmd() tea.Cmd {
	if m.logPath == "" {
		return nil
	}
	path := m.logPath
	return func() tea.Msg {
		lines, err := logtail.Read(path, activityLines)
		if err != nil {
			return activityMsg{err: err}
		}
		return activityMsg{records: logtail.ParseAll(lines)}
	}
}

// waitForStore blocks until the store publishes and returns its snapshot.
func waitForStore(kind shop.Kind, store *state.Store, ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return collectionMsg{kind: kind, snap: store.Snapshot()}
	}
}

func waitForInvalidation(ch <-chan string) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		key, ok := <-ch
		if !ok {
			return nil
		}
		return invalidatedMsg{key: key}
	}
}

func waitForNotice(feed *notify.Feed) tea.Cmd {
	if feed == nil {
		return nil
	}
	changed := feed.Changed()
	return func() tea.Msg {
		<-changed
		n, _ := feed.Latest()
		return noticeMsg{notice: n}
	}
}

// mutate runs op off the update loop. Results reach the model through the
// store subscription and the notice feed.
func (m *Model) mutate(op func() error) tea.Cmd {
	m.inflight++
	logger := m.logger
	return func() tea.Msg {
		err := op()
		if err != nil {
			logger.Debug("mutation finished with error", "error", err)
		}
		return mutationDoneMsg{err: err}
	}
}

func (m *Model) addCmd(kind shop.Kind, req optimistic.AddRequest) tea.Cmd {
	coll := m.collection(kind)
	if coll == nil {
		return nil
	}
	ctx := m.ctx
	return m.mutate(func() error {
		_, err := coll.Add(ctx, req)
		return err
	})
}

func (m *Model) removeCmd(kind shop.Kind, id string) tea.Cmd {
	coll := m.collection(kind)
	if coll == nil {
		return nil
	}
	ctx := m.ctx
	return m.mutate(func() error { return coll.Remove(ctx, id) })
}

func (m *Model) updateQuantityCmd(kind shop.Kind, id string, quantity int) tea.Cmd {
	coll := m.collection(kind)
	if coll == nil {
		return nil
	}
	ctx := m.ctx
	return m.mutate(func() error { return coll.UpdateQuantity(ctx, id, quantity) })
}

func (m *Model) clearCmd(kind shop.Kind) tea.Cmd {
	coll := m.collection(kind)
	if coll == nil {
		return nil
	}
	ctx := m.ctx
	return m.mutate(func() error { return coll.Clear(ctx) })
}

// refreshCmd reloads both collections and marks the product list stale.
func (m Model) refreshCmd() tea.Cmd {
	ctx := m.ctx
	cmds := []tea.Cmd{}
	for _, coll := range []Collection{m.cart, m.wishlist} {
		if coll == nil {
			continue
		}
		c := coll
		cmds = append(cmds, func() tea.Msg {
			_ = c.Refresh(ctx)
			return nil
		})
	}
	if m.cache != nil {
		m.cache.Scope(cache.ScopeProducts).InvalidateList()
	} else {
		cmds = append(cmds, m.loadProductsCmd())
	}
	return tea.Batch(cmds...)
}

func (m Model) uploadCmd(productID, imageURL string) tea.Cmd {
	if m.catalog == nil {
		return nil
	}
	ctx, catalog := m.ctx, m.catalog
	return func() tea.Msg {
		product, err := catalog.UploadImage(ctx, productID, imageURL)
		return uploadDoneMsg{productID: productID, product: product, err: err}
	}
}
