// Package devapi is a small storefront API for local development and tests.
//
// It serves the same REST surface the kiosk client consumes, backed by a
// SQLite database. Tenants are selected with X-Tenant-ID and collections are
// owned by X-Customer-ID. Every collection mutation answers with the full
// resulting collection.
//
// Image uploads mark the product pending until the configured processing
// delay has elapsed. Reads after that report completed, or failed when the
// uploaded URL contains "fail".
package devapi
