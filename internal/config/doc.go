// Package config handles configuration loading for dockgate.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from DOCKGATE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/dockgate/config.yaml
//  3. ~/.config/dockgate/config.yaml
//
// The file is optional. Without one the gateway serves a single "local" node
// on 0.0.0.0:8000 and is configured entirely from the environment.
//
// Files ending in .toml are read as TOML, everything else as YAML.
//
// # Environment Variables
//
// Values can reference environment variables:
//
//	auth:
//	  secret_key: "${DOCKGATE_SECRET_KEY}"
//
// The following variables override the file outright:
//
//	DOCKGATE_SECRET_KEY     auth.secret_key (DOCKERWEBUI_SECRET_KEY is honoured as a fallback)
//	DOCKGATE_CORS_ORIGINS   server.cors_origins, comma separated
//	DOCKGATE_TRUSTED_HOSTS  server.trusted_hosts, comma separated
//	DOCKGATE_HTTP_ADDR      server.http_addr
//	DOCKGATE_USERS_FILE     auth.users_file
//	DOCKGATE_AUDIT_DB       audit.path
//
// # Example
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//	  cors_origins: ["https://ops.example.com"]
//	  trusted_hosts: ["ops.example.com", "*.internal"]
//
//	auth:
//	  secret_key: "${DOCKGATE_SECRET_KEY}"
//	  token_ttl: "30m"
//	  users_file: "/var/lib/dockgate/users.json"
//
//	nodes:
//	  - name: local
//	  - name: build_01
//	    host: "tcp://10.0.0.5:2375"
//
//	logs:
//	  tail: 100
//	  buffer_lines: 256
//	  write_timeout: "10s"
//
//	audit:
//	  path: "/var/lib/dockgate/audit.db"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text or json
//
// Duration values use Go's time.ParseDuration syntax.
package config
