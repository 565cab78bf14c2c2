package ui

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/kiosk/internal/cache"
	"github.com/five82/kiosk/internal/notify"
	"github.com/five82/kiosk/internal/optimistic"
	"github.com/five82/kiosk/internal/shop"
)

func (m Model) handleProductsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.moveSelection(ViewProducts, len(m.products), msg) {
		return m, nil
	}
	product, ok := m.selectedProduct()
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.NextVariant):
		m.cycleVariant(product, 1)
	case key.Matches(msg, m.keys.PrevVariant):
		m.cycleVariant(product, -1)
	case key.Matches(msg, m.keys.AddToCart):
		cmd := m.addSelected(shop.KindCart, product)
		return m, cmd
	case key.Matches(msg, m.keys.AddToWishlist):
		cmd := m.addSelected(shop.KindWishlist, product)
		return m, cmd
	case key.Matches(msg, m.keys.UploadImage):
		m.uploading = true
		m.uploadFor = product.ID
		m.uploadInput.SetValue("")
		cmd := m.uploadInput.Focus()
		return m, cmd
	}
	return m, nil
}

func (m Model) selectedProduct() (shop.Product, bool) {
	idx := m.selected[ViewProducts]
	if idx < 0 || idx >= len(m.products) {
		return shop.Product{}, false
	}
	return m.products[idx], true
}

func (m *Model) cycleVariant(p shop.Product, delta int) {
	n := len(p.Variants)
	if n == 0 {
		return
	}
	m.variantIdx[p.ID] = (m.variantIdx[p.ID] + delta + n) % n
}

func (m Model) selectedVariant(p shop.Product) (shop.Variant, bool) {
	if len(p.Variants) == 0 {
		return shop.Variant{}, false
	}
	idx := m.variantIdx[p.ID]
	if idx >= len(p.Variants) {
		idx = 0
	}
	return p.Variants[idx], true
}

func (m *Model) addSelected(kind shop.Kind, p shop.Product) tea.Cmd {
	variant, ok := m.selectedVariant(p)
	if !ok {
		return nil
	}
	return m.addCmd(kind, optimistic.AddRequest{ProductID: p.ID, VariantID: variant.ID, Quantity: 1})
}

func (m Model) handleUploadKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.closeUpload()
		return m, nil
	case msg.Type == tea.KeyEnter:
		raw := strings.TrimSpace(m.uploadInput.Value())
		if !validImageURL(raw) {
			if m.notices != nil {
				m.notices.Notify(notify.Notice{
					Level:       notify.LevelError,
					Title:       "Invalid image URL",
					Description: "Enter an http or https URL.",
				})
			}
			return m, nil
		}
		productID := m.uploadFor
		m.closeUpload()
		return m, m.uploadCmd(productID, raw)
	}
	var cmd tea.Cmd
	m.uploadInput, cmd = m.uploadInput.Update(msg)
	return m, cmd
}

func (m *Model) closeUpload() {
	m.uploading = false
	m.uploadFor = ""
	m.uploadInput.Blur()
}

func validImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// handleUploadDone starts watching the product once the server accepted the
// upload. Completion shows up as a product list invalidation.
func (m Model) handleUploadDone(msg uploadDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.logger.Warn("image upload failed", "product", msg.productID, "error", msg.err)
		if m.notices != nil {
			m.notices.Notify(notify.Notice{
				Level:       notify.LevelError,
				Title:       "Image upload failed",
				Description: optimistic.UserMessage(msg.err),
			})
		}
		return m, nil
	}

	if msg.product != nil {
		for i := range m.products {
			if m.products[i].ID == msg.productID {
				m.products[i] = *msg.product
			}
		}
	}
	if m.notices != nil {
		m.notices.Notify(notify.Notice{Level: notify.LevelInfo, Title: "Image uploaded", Description: "Processing started."})
	}
	if m.poller == nil || m.cache == nil {
		return m, m.loadProductsCmd()
	}

	notices := m.notices
	name := m.productName(msg.productID)
	onDone := func() {
		if notices != nil {
			notices.Notify(notify.Notice{Level: notify.LevelSuccess, Title: "Image processed", Description: name})
		}
	}
	if !m.poller.Start(m.ctx, msg.productID, m.cache.Scope(cache.ScopeProducts), onDone) {
		m.logger.Info("image poll already active", "product", msg.productID)
	}
	return m, nil
}

func (m Model) renderProducts() string {
	styles := m.theme.Styles()
	if !m.productsLoaded {
		return styles.MutedText.Render("Loading products...")
	}
	if m.productsErr != nil && len(m.products) == 0 {
		return styles.DangerText.Render("Could not load products: ") +
			styles.MutedText.Render(optimistic.UserMessage(m.productsErr))
	}
	if len(m.products) == 0 {
		return styles.MutedText.Render("No products available.")
	}

	width := m.width - 4
	if width < 40 {
		width = 40
	}
	nameWidth := width / 3

	var rows []string
	cur := m.selected[ViewProducts]
	for i, p := range m.products {
		variantLabel := "-"
		price := p.Price
		if v, ok := m.selectedVariant(p); ok {
			variantLabel = v.Name
			if v.Price > 0 {
				price = v.Price
			}
			if len(p.Variants) > 1 {
				variantLabel = fmt.Sprintf("‹ %s ›", v.Name)
			}
		}
		line := fmt.Sprintf("%-*s %-18s %12s",
			nameWidth, truncate(p.Name, nameWidth),
			truncate(variantLabel, 18),
			shop.FormatPrice(price, p.Currency))
		if status := string(p.ImageProcessingStatus); status != "" {
			line += " " + styles.StatusStyle(strings.ToLower(status)).Render(status)
		}
		if i == cur {
			line = styles.Selected.Render(line)
		}
		rows = append(rows, line)
	}

	body := lipgloss.JoinVertical(lipgloss.Left, rows...)
	if p, ok := m.selectedProduct(); ok && p.Description != "" {
		body += "\n\n" + styles.MutedText.Render(truncate(p.Description, width))
	}
	panel := styles.Panel.Width(width).Render(body)
	if m.uploading {
		return panel + "\n" + m.renderUploadPrompt()
	}
	return panel
}

func (m Model) renderUploadPrompt() string {
	styles := m.theme.Styles()
	title := styles.AccentText.Render("Upload image for " + m.productName(m.uploadFor))
	hint := styles.FaintText.Render("enter to upload · esc to cancel")
	return styles.Modal.Render(title + "\n\n" + m.uploadInput.View() + "\n\n" + hint)
}
