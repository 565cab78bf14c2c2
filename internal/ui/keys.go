package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Tab        key.Binding
	ShiftTab   key.Binding
	Escape     key.Binding
	Refresh    key.Binding

	// View switching
	ViewProducts key.Binding
	ViewCart     key.Binding
	ViewWishlist key.Binding
	ViewActivity key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Product actions
	AddToCart     key.Binding
	AddToWishlist key.Binding
	NextVariant   key.Binding
	PrevVariant   key.Binding
	UploadImage   key.Binding

	// Collection actions
	Increment  key.Binding
	Decrement  key.Binding
	Remove     key.Binding
	Clear      key.Binding
	MoveToCart key.Binding

	// Activity
	ToggleFollow key.Binding

	// Input
	Confirm key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		// Global
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "e"),
			key.WithHelp("e", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "Cycle views"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "Cycle views (reverse)"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Cancel"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh"),
		),

		// View switching
		ViewProducts: key.NewBinding(
			key.WithKeys("p", "1"),
			key.WithHelp("p", "Products"),
		),
		ViewCart: key.NewBinding(
			key.WithKeys("c", "2"),
			key.WithHelp("c", "Cart"),
		),
		ViewWishlist: key.NewBinding(
			key.WithKeys("w", "3"),
			key.WithHelp("w", "Wishlist"),
		),
		ViewActivity: key.NewBinding(
			key.WithKeys("l", "4"),
			key.WithHelp("l", "Activity log"),
		),

		// Navigation
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),

		// Product actions
		AddToCart: key.NewBinding(
			key.WithKeys("a", "enter"),
			key.WithHelp("a", "Add to cart"),
		),
		AddToWishlist: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Save to wishlist"),
		),
		NextVariant: key.NewBinding(
			key.WithKeys("]", "right"),
			key.WithHelp("]", "Next variant"),
		),
		PrevVariant: key.NewBinding(
			key.WithKeys("[", "left"),
			key.WithHelp("[", "Previous variant"),
		),
		UploadImage: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "Upload image"),
		),

		// Collection actions
		Increment: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "Increase quantity"),
		),
		Decrement: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "Decrease quantity"),
		),
		Remove: key.NewBinding(
			key.WithKeys("d", "x"),
			key.WithHelp("d", "Remove"),
		),
		Clear: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "Clear all"),
		),
		MoveToCart: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "Move to cart"),
		),

		// Activity
		ToggleFollow: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Toggle follow"),
		),

		// Input
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		// Navigation
		{k.Tab, k.ViewProducts, k.ViewCart, k.ViewWishlist, k.ViewActivity},
		{k.Up, k.Down, k.Top, k.Bottom},
		// Products
		{k.AddToCart, k.AddToWishlist, k.PrevVariant, k.NextVariant, k.UploadImage},
		// Collections
		{k.Increment, k.Decrement, k.Remove, k.MoveToCart, k.Clear},
		// General
		{k.Refresh, k.ToggleFollow, k.CycleTheme, k.Help, k.Quit},
	}
}
