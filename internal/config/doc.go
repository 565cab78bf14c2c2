// Package config loads kiosk client and development API settings.
//
// # Client Configuration
//
// Load resolves settings in this order:
//
//  1. KIOSK_* environment variables
//  2. The TOML file (explicit path, or ~/.config/kiosk/config.toml)
//  3. Built-in defaults
//
// A missing file is not an error. Empty or whitespace-only values fall
// through to the next source.
//
// # Default Values
//
//   - API endpoint: 127.0.0.1:8088
//   - Tenant: demo
//   - Customer: guest
//   - Log directory: ~/.local/share/kiosk/logs
//   - Collection refresh: 30s
//   - Poll schedule: 1s initial, x1.5, capped at 5s, 2m timeout
//
// # TOML Format
//
//	api_url = "http://127.0.0.1:8088"
//	tenant = "acme"
//	customer = "cust-42"
//	log_dir = "~/.local/share/kiosk/logs"
//	refresh_interval = "30s"
//
//	[poll]
//	initial_delay = "1s"
//	max_delay = "5s"
//	multiplier = 1.5
//	timeout = "2m"
//
// Durations use Go duration syntax and must be positive.
//
// # Environment
//
//   - KIOSK_API_URL, KIOSK_TENANT, KIOSK_CUSTOMER, KIOSK_LOG_DIR
//   - KIOSKD_ADDR, KIOSKD_DB, KIOSKD_PROCESSING_DELAY, KIOSKD_SEED (LoadServer)
//
// # Path Expansion
//
// Paths starting with ~ are expanded to the home directory and every path is
// made absolute.
package config
