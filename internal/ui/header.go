package ui

import (
	"fmt"
	"strings"

	"github.com/five82/kiosk/internal/notify"
	"github.com/five82/kiosk/internal/shop"
	"github.com/five82/kiosk/internal/state"
)

// renderHeader renders the status bar.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	compact := m.width < 100
	sep := "  "

	parts := []string{styles.Logo.Render("kiosk")}

	cart := m.cartSnap
	cartLabel := fmt.Sprintf("%d", cart.TotalQuantity())
	if !compact {
		cartLabel += " · " + shop.FormatPrice(cart.Subtotal(), "")
	}
	parts = append(parts, styles.MutedText.Render("Cart:")+" "+styles.Text.Render(cartLabel))
	parts = append(parts, styles.MutedText.Render("Wishlist:")+" "+
		styles.Text.Render(fmt.Sprintf("%d", len(m.wishlistSnap.Entries))))

	if n := pendingCount(cart) + pendingCount(m.wishlistSnap); n > 0 {
		parts = append(parts, styles.WarningText.Render(fmt.Sprintf("%d syncing", n)))
	}

	if m.poller != nil {
		if target, ok := m.poller.Current(); ok {
			label := "Processing image"
			if !compact {
				label += " " + truncateMiddle(m.productName(target.ResourceID), 24)
			}
			parts = append(parts, styles.InfoText.Render(label))
		}
	}

	if snap, offline := m.offlineSnapshot(); offline {
		detail := "OFFLINE"
		if !compact && snap.LastError != nil {
			detail += " " + truncate(classifyConnectionError(snap.LastError), 40)
		}
		parts = append(parts, styles.StatusStyle("offline").Render(detail))
	} else if !cart.SyncedAt.IsZero() && !compact {
		parts = append(parts, styles.FaintText.Render("synced "+cart.SyncedAt.Format("15:04:05")))
	}

	return styles.Header.Width(m.width).Render(strings.Join(parts, sep))
}

// offlineSnapshot returns the first collection that crossed the offline
// threshold.
func (m Model) offlineSnapshot() (state.Snapshot, bool) {
	for _, snap := range []state.Snapshot{m.cartSnap, m.wishlistSnap} {
		if snap.IsOffline() {
			return snap, true
		}
	}
	return state.Snapshot{}, false
}

func pendingCount(snap state.Snapshot) int {
	n := 0
	for _, e := range snap.Entries {
		if e.State == state.Pending {
			n++
		}
	}
	return n
}

func (m Model) productName(id string) string {
	for _, p := range m.products {
		if p.ID == id {
			return p.Name
		}
	}
	return id
}

// classifyConnectionError returns a short description of a recorded error.
func classifyConnectionError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "server unreachable"
	case strings.Contains(msg, "no such host"):
		return "host not found"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "timed out"
	default:
		return msg
	}
}

// renderCommandBar renders the per-view key hints.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()

	type cmd struct{ key, desc string }
	var commands []cmd

	switch m.currentView {
	case ViewCart:
		commands = []cmd{
			{"+/-", "Quantity"},
			{"d", "Remove"},
			{"C", "Clear"},
			{"j/k", "Navigate"},
			{"p", "Products"},
			{"?", "More"},
		}
	case ViewWishlist:
		commands = []cmd{
			{"m", "Move to cart"},
			{"d", "Remove"},
			{"C", "Clear"},
			{"j/k", "Navigate"},
			{"p", "Products"},
			{"?", "More"},
		}
	case ViewActivity:
		followLabel := "Pause"
		if !m.activityFollow {
			followLabel = "Follow"
		}
		commands = []cmd{
			{"f", followLabel},
			{"j/k", "Scroll"},
			{"p", "Products"},
			{"?", "More"},
		}
	default:
		commands = []cmd{
			{"a", "Add to cart"},
			{"s", "Wishlist"},
			{"[/]", "Variant"},
			{"u", "Upload image"},
			{"c", "Cart"},
			{"Tab", "Views"},
			{"?", "More"},
		}
	}

	segments := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		segments = append(segments, styles.AccentText.Render(c.key)+":"+styles.MutedText.Render(c.desc))
	}
	segments = append(segments, styles.AccentText.Render("T")+":"+styles.FaintText.Render(m.theme.Name))

	return styles.Footer.Width(m.width).Render(strings.Join(segments, "  "))
}

// renderNotice renders the most recent notice until it expires.
func (m Model) renderNotice() string {
	if m.notice.Title == "" {
		return ""
	}
	styles := m.theme.Styles()
	title := m.notice.Title
	switch m.notice.Level {
	case notify.LevelError:
		title = styles.DangerText.Render("✗ " + title)
	case notify.LevelSuccess:
		title = styles.SuccessText.Render("✓ " + title)
	default:
		title = styles.InfoText.Render("• " + title)
	}
	if m.notice.Description != "" {
		title += "  " + styles.MutedText.Render(truncate(m.notice.Description, max(m.width-len(m.notice.Title)-8, 10)))
	}
	return styles.Footer.Width(m.width).Render(title)
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// truncateMiddle keeps the start and end of s.
func truncateMiddle(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= 5 {
		return s[:max]
	}
	endLen := (max - 3) / 2
	startLen := max - 3 - endLen
	return s[:startLen] + "..." + s[len(s)-endLen:]
}
