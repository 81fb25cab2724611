// Package config parses server configuration from HOSTLINK_* environment
// variables and command-line flags.
package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds everything the command server, instance manager, and
// executor need at startup.
type ServerConfig struct {
	ListenHost string
	BasePort   int
	PortRange  int

	ProjectName  string
	RegistryPath string

	RequireAuth bool
	AuthTimeout time.Duration

	PINMaxAttempts int
	PINLockout     time.Duration

	ProbeTimeout   time.Duration
	CommandTimeout time.Duration
	QueueSize      int
	TickInterval   time.Duration

	AuditDBPath string
	ListenWS    string
	LogLevel    string
}

const (
	defaultBasePort       = 9877
	defaultPortRange      = 10
	defaultListenHost     = "127.0.0.1"
	defaultPINMaxAttempts = 5
	defaultPINLockout     = 300 * time.Second
	defaultAuthTimeout    = time.Hour
	defaultProbeTimeout   = time.Second
	defaultCommandTimeout = 15 * time.Second
	defaultQueueSize      = 256
	defaultTickInterval   = 50 * time.Millisecond
)

// ParseServerFlags builds a [ServerConfig] from the environment and args.
func ParseServerFlags(args []string) (ServerConfig, error) {
	cfg := ServerConfig{
		ListenHost:     envOrDefault("HOSTLINK_LISTEN_HOST", defaultListenHost),
		BasePort:       envIntOrDefault("HOSTLINK_BASE_PORT", defaultBasePort),
		PortRange:      envIntOrDefault("HOSTLINK_PORT_RANGE", defaultPortRange),
		ProjectName:    envOrDefault("HOSTLINK_PROJECT", ""),
		RegistryPath:   envOrDefault("HOSTLINK_REGISTRY_PATH", ""),
		RequireAuth:    envBoolOrDefault("HOSTLINK_REQUIRE_AUTH", false),
		AuthTimeout:    defaultAuthTimeout,
		PINMaxAttempts: defaultPINMaxAttempts,
		PINLockout:     defaultPINLockout,
		ProbeTimeout:   defaultProbeTimeout,
		CommandTimeout: defaultCommandTimeout,
		QueueSize:      defaultQueueSize,
		TickInterval:   defaultTickInterval,
		AuditDBPath:    envOrDefault("HOSTLINK_AUDIT_DB", ""),
		ListenWS:       envOrDefault("HOSTLINK_LISTEN_WS", ""),
		LogLevel:       envOrDefault("HOSTLINK_LOG_LEVEL", "info"),
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&cfg.ListenHost, "host", cfg.ListenHost, "Host interface to bind")
	fs.IntVar(&cfg.BasePort, "base-port", cfg.BasePort, "First port of the instance range")
	fs.IntVar(&cfg.PortRange, "port-range", cfg.PortRange, "Number of ports in the instance range")
	fs.StringVar(&cfg.ProjectName, "project", cfg.ProjectName, "Project label reported during discovery")
	fs.StringVar(&cfg.RegistryPath, "registry", cfg.RegistryPath, "Instance registry file path override")
	fs.BoolVar(&cfg.RequireAuth, "require-auth", cfg.RequireAuth, "Require token authentication for protected commands")
	fs.StringVar(&cfg.AuditDBPath, "audit-db", cfg.AuditDBPath, "SQLite command audit database path (empty disables)")
	fs.StringVar(&cfg.ListenWS, "listen-ws", cfg.ListenWS, "WebSocket bridge listen address (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.BasePort <= 0 || cfg.BasePort > 65535 {
		return cfg, errors.New("base port must be between 1 and 65535")
	}
	if cfg.PortRange < 1 {
		return cfg, errors.New("port range must be >= 1")
	}
	if cfg.BasePort+cfg.PortRange-1 > 65535 {
		return cfg, errors.New("port range exceeds 65535")
	}
	if cfg.ProbeTimeout <= 0 {
		return cfg, errors.New("probe timeout must be > 0")
	}
	if cfg.CommandTimeout <= 0 {
		return cfg, errors.New("command timeout must be > 0")
	}
	if cfg.ProjectName == "" {
		cfg.ProjectName = detectProjectName()
	}
	return cfg, nil
}

// detectProjectName falls back to the working directory's base name, the
// same best-effort label the host would otherwise provide.
func detectProjectName() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "Unknown"
	}
	name := filepath.Base(cwd)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "Unknown"
	}
	return name
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBoolOrDefault(key string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
