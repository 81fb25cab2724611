package instance

import (
	"sync"
	"time"

	"github.com/hostlink/hostlink/internal/protocol"
)

// publicCommands never require authentication: they bootstrap a session or
// carry no sensitive capability.
var publicCommands = map[string]struct{}{
	protocol.CmdPing:              {},
	protocol.CmdGetInstanceInfo:   {},
	protocol.CmdGetServerInfo:     {},
	protocol.CmdAuthenticate:      {},
	protocol.CmdDiscoverInstances: {},
}

// AuthMiddleware tracks which client ids have authenticated and when.  The
// client id is caller-supplied and not bound to the connection, so this is
// a convenience layer over the token check, not a session boundary.
type AuthMiddleware struct {
	manager     *Manager
	requireAuth bool
	timeout     time.Duration

	mu      sync.Mutex
	clients map[string]time.Time

	now func() time.Time // test hook
}

// NewAuthMiddleware wires the middleware to the manager's token.  With
// requireAuth false every command passes; the authenticate command still
// works so clients can probe the policy.
func NewAuthMiddleware(m *Manager, requireAuth bool, timeout time.Duration) *AuthMiddleware {
	return &AuthMiddleware{
		manager:     m,
		requireAuth: requireAuth,
		timeout:     timeout,
		clients:     make(map[string]time.Time),
		now:         time.Now,
	}
}

// Authenticate validates the token and, on success, marks the client id as
// authenticated from now.
func (a *AuthMiddleware) Authenticate(clientID, token string) bool {
	if !a.manager.ValidateToken(token) {
		return false
	}
	a.Grant(clientID)
	return true
}

// Grant marks a client id as authenticated without a token check, used when
// another credential path (PIN validation) already vouched for it.
func (a *AuthMiddleware) Grant(clientID string) {
	a.mu.Lock()
	a.clients[clientID] = a.now()
	a.mu.Unlock()
}

// IsAuthenticated reports whether the client id holds a live session.
// Expired sessions are pruned on lookup.
func (a *AuthMiddleware) IsAuthenticated(clientID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	at, ok := a.clients[clientID]
	if !ok {
		return false
	}
	if a.now().Sub(at) > a.timeout {
		delete(a.clients, clientID)
		return false
	}
	return true
}

// Invalidate drops a client's session, used on explicit logout.
func (a *AuthMiddleware) Invalidate(clientID string) {
	a.mu.Lock()
	delete(a.clients, clientID)
	a.mu.Unlock()
}

// RequiresAuth reports whether the command must come from an authenticated
// client under the current policy.
func (a *AuthMiddleware) RequiresAuth(command string) bool {
	if !a.requireAuth {
		return false
	}
	_, public := publicCommands[command]
	return !public
}

// Allow is the single dispatch gate: it passes public commands through and
// otherwise requires a live session for the client id.
func (a *AuthMiddleware) Allow(command, clientID string) bool {
	if !a.RequiresAuth(command) {
		return true
	}
	return a.IsAuthenticated(clientID)
}
