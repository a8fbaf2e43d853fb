// Package config handles configuration loading for intake-bot.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. When no file exists the bot can still start from the flat
// environment variables older deployments used (see FromEnv).
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from INTAKE_BOT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/intake-bot/bot.yaml
//  3. ~/.config/intake-bot/bot.yaml
//
// The decoder is picked by extension: .toml uses TOML, anything else YAML.
//
// # Environment Variable Expansion
//
//	bot:
//	  access_token: "${MAX_ACCESS_TOKEN}"
//
// Unset variables expand to an empty string.
//
// # Configuration Sections
//
//	bot:
//	  access_token: "${MAX_ACCESS_TOKEN}"
//	  api_base: "https://platform-api.max.ru"
//	  operator_user_id: 123456
//	  operator_chat_url: "https://max.ru/u/operator"
//	  message_format: "markdown"   # markdown, html
//	  send_rate: 20                # messages per second, 0 = unlimited
//
//	transport:
//	  mode: "polling"              # polling, webhook
//	  webhook_url: "https://bot.example.com/webhook"
//	  webhook_secret: "${WEBHOOK_SECRET}"
//	  poll_timeout: "30s"
//	  poll_backoff: "2s"
//
//	server:
//	  http_addr: ":8080"
//
//	database:
//	  path: "./data/bot.db"
//
//	dialogue:
//	  menu_debounce: "5s"          # negative disables suppression
//	  dedupe_ttl: "10m"
//	  dedupe_size: 50000
//
//	logging:
//	  level: "info"                # debug, info, warn, error
//	  format: "text"               # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Validation
//
// Load and FromEnv both apply defaults and then validate:
//
//   - access token and a numeric operator user id are present
//   - transport mode is known and webhook mode has an absolute URL
//   - message format is markdown or html
//   - duration fields parse
package config
