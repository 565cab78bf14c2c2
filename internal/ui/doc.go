// Package ui is the Bubble Tea storefront for kiosk.
//
// # Views
//
//   - Products: catalog with variant selection, add to cart or wishlist, and
//     image upload
//   - Cart: quantities, removal, clear, and a running subtotal
//   - Wishlist: removal, clear, and move to cart
//   - Activity: a tail of the client log file
//
// # Data Flow
//
// Mutations run as commands and never block Update. The model learns about
// their effects from three subscriptions: the cart and wishlist stores (pending,
// confirmed and rolled-back rows), the cache (product list invalidations after
// image processing finishes), and the notice feed (toasts). Each subscription
// command re-arms itself after delivering a message.
//
// # Preferences
//
// The selected theme and view are written to the prefs file whenever they
// change and restored on the next start.
package ui
