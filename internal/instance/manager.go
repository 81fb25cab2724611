// Package instance manages per-process identity, port allocation, the
// shared on-disk registry, and the PIN/token credential checks that the
// authentication middleware builds on.
package instance

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/hostlink/hostlink/internal/auth"
	"github.com/hostlink/hostlink/internal/config"
	"github.com/hostlink/hostlink/internal/domain"
	"github.com/hostlink/hostlink/internal/version"
)

var pinFormat = regexp.MustCompile(`^\d{4}$`)

// Manager owns one process's instance lifecycle: identity generation, port
// selection, registry membership, and credential validation.
type Manager struct {
	cfg      config.ServerConfig
	log      *slog.Logger
	identity domain.Identity
	pinHash  string
	registry *Registry
	attempts *attemptWindow

	mu         sync.Mutex
	port       int
	startedAt  time.Time
	configured bool
}

// NewManager creates an unconfigured manager with a fresh identity.  The
// token and PIN exist from this point on; the port is chosen during
// [Manager.AutoConfigure].
func NewManager(cfg config.ServerConfig, logger *slog.Logger) (*Manager, error) {
	token, err := auth.GenerateToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	pin, err := auth.GeneratePIN()
	if err != nil {
		return nil, fmt.Errorf("generate pin: %w", err)
	}
	pinHash, err := auth.HashPIN(pin)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return nil, fmt.Errorf("generate instance id: %w", err)
	}

	return &Manager{
		cfg: cfg,
		log: logger,
		identity: domain.Identity{
			InstanceID: fmt.Sprintf("hostlink-%d-%d-%s", os.Getpid(), time.Now().UnixMilli(), hex.EncodeToString(suffix)),
			Token:      token,
			PIN:        pin,
		},
		pinHash:  pinHash,
		registry: NewRegistry(cfg.RegistryPath, logger),
		attempts: newAttemptWindow(cfg.PINMaxAttempts, cfg.PINLockout),
	}, nil
}

// Identity returns the process identity including clear secrets.  Callers
// outside startup wiring and the operator banner should not need this.
func (m *Manager) Identity() domain.Identity {
	return m.identity
}

// Registry exposes the underlying registry, mainly for tests and tooling.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Port returns the allocated listen port, or 0 before configuration.
func (m *Manager) Port() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port
}

// Configured reports whether AutoConfigure has completed.
func (m *Manager) Configured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configured
}

// Uptime returns time since configuration, or 0 before it.
func (m *Manager) Uptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.configured {
		return 0
	}
	return time.Since(m.startedAt)
}

// AutoConfigure prepares the instance for serving: prune stale registry
// entries, discover peers already running, pick a free port, publish our
// entry, and log the operator banner with the one-time credentials.  It
// returns the peers found so the caller can surface them.
func (m *Manager) AutoConfigure() ([]domain.DiscoveredInstance, error) {
	m.CleanupStale()

	peers := m.Discover()
	for _, p := range peers {
		m.log.Info("found running instance", "port", p.Port, "project", p.Project, "instance_id", p.InstanceID)
	}

	port := FindAvailablePort(m.cfg.ListenHost, m.cfg.BasePort, m.cfg.PortRange, m.cfg.ProbeTimeout)

	m.mu.Lock()
	m.port = port
	m.startedAt = time.Now()
	m.configured = true
	m.mu.Unlock()

	if err := m.Register(); err != nil {
		// The registry is advisory; discovery still finds us.
		m.log.Warn("instance registration failed", "err", err)
	}

	m.log.Info("instance configured",
		"instance_id", m.identity.InstanceID,
		"port", port,
		"project", m.cfg.ProjectName)
	m.log.Info("session credentials", "token", m.identity.Token, "pin", m.identity.PIN)
	return peers, nil
}

// Register publishes this instance's entry in the shared registry.
func (m *Manager) Register() error {
	m.mu.Lock()
	port := m.port
	started := m.startedAt
	m.mu.Unlock()
	return m.registry.Upsert(domain.RegistryEntry{
		InstanceID: m.identity.InstanceID,
		Port:       port,
		Project:    m.cfg.ProjectName,
		TokenHash:  auth.HashToken(m.identity.Token),
		PID:        os.Getpid(),
		Started:    float64(started.UnixNano()) / float64(time.Second),
	})
}

// Unregister removes this instance's registry entry at shutdown.
func (m *Manager) Unregister() error {
	return m.registry.Remove(m.identity.InstanceID)
}

// CleanupStale drops registry entries whose port no longer answers as a
// live instance, typically left behind by crashed processes.
func (m *Manager) CleanupStale() {
	dropped, err := m.registry.Prune(func(e domain.RegistryEntry) bool {
		if e.InstanceID == m.identity.InstanceID {
			return true
		}
		_, alive := Probe(m.cfg.ListenHost, e.Port, m.cfg.ProbeTimeout)
		return alive
	})
	if err != nil {
		m.log.Warn("stale registry cleanup failed", "err", err)
		return
	}
	if dropped > 0 {
		m.log.Info("removed stale registry entries", "count", dropped)
	}
}

// Discover probes the configured port range for live instances.  The
// answering instance is included once it is serving: every instance reports
// the same complete picture of the range.
func (m *Manager) Discover() []domain.DiscoveredInstance {
	return Discover(m.cfg.ListenHost, m.cfg.BasePort, m.cfg.PortRange, m.cfg.ProbeTimeout)
}

// Info returns the public snapshot served to unauthenticated info and
// discovery requests.  It never includes the token or PIN.
func (m *Manager) Info() domain.DiscoveredInstance {
	return domain.DiscoveredInstance{
		Port:          m.Port(),
		InstanceID:    m.identity.InstanceID,
		Project:       m.cfg.ProjectName,
		Version:       version.Version,
		TokenRequired: m.cfg.RequireAuth,
		Uptime:        int(m.Uptime().Seconds()),
	}
}

// ValidateToken compares a presented token against this instance's token in
// constant time.
func (m *Manager) ValidateToken(token string) bool {
	return auth.ConstantTimeEquals(token, m.identity.Token)
}

// ValidatePIN checks a presented PIN for the given client IP and returns
// whether it matched plus a client-facing message.  The order is fixed:
// rate-limit check first, then the attempt is recorded, then format and
// value are checked.  Lockout rejections do not consume attempts, and a
// success clears the client's history.
func (m *Manager) ValidatePIN(pin, clientIP string) (bool, string) {
	allowed, wait := m.attempts.check(clientIP)
	if !allowed {
		return false, fmt.Sprintf("Too many attempts. Try again in %d seconds.", int(wait.Seconds())+1)
	}

	m.attempts.record(clientIP)

	if !pinFormat.MatchString(pin) {
		return false, fmt.Sprintf("Invalid PIN format. %d attempts remaining.", m.attempts.left(clientIP))
	}
	if !auth.CheckPIN(m.pinHash, pin) {
		return false, fmt.Sprintf("Invalid PIN. %d attempts remaining.", m.attempts.left(clientIP))
	}

	m.attempts.clear(clientIP)
	return true, "PIN validated successfully"
}

// HandleTakeover processes an advisory takeover request from another
// process presenting our token.  The handshake only acknowledges; the
// caller decides whether to shut down.
func (m *Manager) HandleTakeover(token, requesterID string) (bool, string) {
	if !m.ValidateToken(token) {
		return false, "takeover rejected: invalid token"
	}
	m.log.Warn("takeover requested", "requester", requesterID)
	return true, "takeover acknowledged"
}
