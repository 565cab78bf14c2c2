package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/kiosk/internal/optimistic"
	"github.com/five82/kiosk/internal/shop"
	"github.com/five82/kiosk/internal/state"
)

func viewFor(kind shop.Kind) View {
	if kind == shop.KindWishlist {
		return ViewWishlist
	}
	return ViewCart
}

func (m Model) handleCollectionKey(kind shop.Kind, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	view := viewFor(kind)
	snap := m.snapshot(kind)
	if m.moveSelection(view, len(snap.Entries), msg) {
		return m, nil
	}

	if key.Matches(msg, m.keys.Clear) {
		if len(snap.Entries) == 0 {
			return m, nil
		}
		cmd := m.clearCmd(kind)
		return m, cmd
	}

	entry, ok := m.selectedEntry(kind)
	if !ok || entry.State == state.RolledBack {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Remove):
		cmd := m.removeCmd(kind, entry.ID)
		return m, cmd
	case key.Matches(msg, m.keys.Increment) && kind == shop.KindCart:
		cmd := m.updateQuantityCmd(kind, entry.ID, entry.Quantity+1)
		return m, cmd
	case key.Matches(msg, m.keys.Decrement) && kind == shop.KindCart:
		cmd := m.updateQuantityCmd(kind, entry.ID, entry.Quantity-1)
		return m, cmd
	case key.Matches(msg, m.keys.MoveToCart) && kind == shop.KindWishlist:
		add := m.addCmd(shop.KindCart, optimistic.AddRequest{ProductID: entry.ProductID, VariantID: entry.VariantID, Quantity: 1})
		remove := m.removeCmd(shop.KindWishlist, entry.ID)
		return m, tea.Batch(add, remove)
	}
	return m, nil
}

func (m Model) selectedEntry(kind shop.Kind) (state.Entry, bool) {
	snap := m.snapshot(kind)
	idx := m.selected[viewFor(kind)]
	if idx < 0 || idx >= len(snap.Entries) {
		return state.Entry{}, false
	}
	return snap.Entries[idx], true
}

func (m Model) renderCollection(kind shop.Kind) string {
	styles := m.theme.Styles()
	snap := m.snapshot(kind)

	width := m.width - 4
	if width < 40 {
		width = 40
	}
	nameWidth := width / 3

	title := "Cart"
	if kind == shop.KindWishlist {
		title = "Wishlist"
	}

	if len(snap.Entries) == 0 {
		empty := styles.MutedText.Render(fmt.Sprintf("Your %s is empty.", strings.ToLower(title)))
		return styles.Panel.Width(width).Render(styles.AccentText.Render(title) + "\n\n" + empty)
	}

	rows := []string{styles.AccentText.Render(title)}
	cur := m.selected[viewFor(kind)]
	for i, e := range snap.Entries {
		name := e.Name
		if e.VariantName != "" {
			name += " (" + e.VariantName + ")"
		}
		line := fmt.Sprintf("%-*s", nameWidth, truncate(name, nameWidth))
		if kind == shop.KindCart {
			line += fmt.Sprintf(" ×%-3d %12s", e.Quantity, shop.FormatPrice(e.Price*int64(e.Quantity), ""))
		} else {
			line += fmt.Sprintf(" %12s", shop.FormatPrice(e.Price, ""))
		}
		if e.State != state.Confirmed {
			line += " " + styles.StatusStyle(e.State.String()).Render(e.State.String())
		}
		if i == cur {
			line = styles.Selected.Render(line)
		} else if e.State == state.RolledBack {
			line = styles.FaintText.Render(line)
		}
		rows = append(rows, line)
	}

	if kind == shop.KindCart {
		rows = append(rows, "", styles.MutedText.Render("Subtotal ")+
			styles.Text.Bold(true).Render(shop.FormatPrice(snap.Subtotal(), "")))
	}
	if snap.LastError != nil {
		rows = append(rows, "", styles.WarningText.Render("Last sync failed: "+truncate(classifyConnectionError(snap.LastError), width-20)))
	}
	return styles.Panel.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
