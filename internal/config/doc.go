// Package config handles configuration loading for healthledger.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from HEALTHLEDGER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/healthledger/config.yaml
//  3. ~/.config/healthledger/config.yaml
//
// Files ending in .toml are decoded as TOML; everything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	ledger:
//	  auth_secret: "${HEALTHLEDGER_LEDGER_SECRET}"
//
// # Configuration Sections
//
//	ledger:
//	  grpc_addr: "registry.example:50051"
//	  contract_address: "0x..."
//	  account: "0x..."              # submitter, also the token subject
//	  auth_secret: "${HEALTHLEDGER_LEDGER_SECRET}"
//	  token_ttl: "15m"
//
//	capability:
//	  network:
//	    chain_id: 11155111
//	    public_key: "0x..."         # network encryption key
//	  init_timeout: "10s"
//	  instance_timeout: "10s"
//	  encrypt_timeout: "30s"
//
//	cache:
//	  refresh_interval: "10s"
//	  fetch_concurrency: 4
//
//	api:
//	  http_addr: "127.0.0.1:8484"
//
//	database:
//	  path: "/var/lib/healthledger/receipts.db"  # empty disables the journal
//
//	tailscale:
//	  enabled: false
//	  hostname: "healthledger"
//	  auth_key: "${TS_AUTHKEY}"
//
//	notify:
//	  matrix:
//	    enabled: false
//	    homeserver: "https://matrix.org"
//	    user_id: "@healthledger:matrix.org"
//	    access_token: "${MATRIX_TOKEN}"
//	    room_id: "!room:matrix.org"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Durations use time.ParseDuration syntax. Unset timeouts, the refresh
// interval, fetch concurrency and the API address fall back to the Default*
// constants.
package config
