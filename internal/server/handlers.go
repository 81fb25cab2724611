package server

import (
	"context"
	"sort"
	"time"

	"github.com/hostlink/hostlink/internal/domain"
	"github.com/hostlink/hostlink/internal/protocol"
	"github.com/hostlink/hostlink/internal/version"
)

func (s *Server) registerBuiltins() {
	s.Register(protocol.CmdPing, s.handlePing,
		ThreadSafe(), WithDescription("Connectivity check"))
	s.Register(protocol.CmdGetServerInfo, s.handleGetServerInfo,
		ThreadSafe(), WithDescription("Server version and command inventory"))
	s.Register(protocol.CmdGetInstanceInfo, s.handleGetInstanceInfo,
		ThreadSafe(), WithDescription("This instance's public identity"))
	s.Register(protocol.CmdDiscoverInstances, s.handleDiscoverInstances,
		ThreadSafe(), WithTimeout(30*time.Second), WithDescription("Probe the port range for peer instances"))
	s.Register(protocol.CmdAuthenticate, s.handleAuthenticate,
		ThreadSafe(), WithDescription("Authenticate a client id with the session token"))
	s.Register("validate_pin", s.handleValidatePIN,
		ThreadSafe(), WithDescription("Exchange the operator PIN for the session token"))
	s.Register("get_pin", s.handleGetPIN,
		ThreadSafe(), WithDescription("Refused; the PIN is only shown on the host"))
	s.Register("list_functions", s.handleListFunctions,
		ThreadSafe(), WithDescription("Registered commands with metadata"))
	s.Register("request_takeover", s.handleRequestTakeover,
		ThreadSafe(), WithDescription("Advisory takeover handshake between instances"))
	s.Register("get_command_log", s.handleGetCommandLog,
		ThreadSafe(), WithDescription("Recent dispatched commands from the audit store"))
}

func (s *Server) handlePing(_ context.Context, _ *protocol.Request) protocol.Response {
	return protocol.OK().
		With("message", "pong").
		With("server", domain.ServerName)
}

func (s *Server) handleGetServerInfo(_ context.Context, _ *protocol.Request) protocol.Response {
	return protocol.OK().
		With("server", domain.ServerName).
		With("version", version.Version).
		With("commands", s.CommandNames()).
		With("executor_attached", s.exec.Attached()).
		With("uptime", int(s.Uptime().Seconds()))
}

func (s *Server) handleGetInstanceInfo(_ context.Context, _ *protocol.Request) protocol.Response {
	info := s.manager.Info()
	return protocol.OK().
		With("server", domain.ServerName).
		With("instance_id", info.InstanceID).
		With("project", info.Project).
		With("version", info.Version).
		With("port", info.Port).
		With("token_required", info.TokenRequired).
		With("uptime", info.Uptime)
}

func (s *Server) handleDiscoverInstances(_ context.Context, _ *protocol.Request) protocol.Response {
	peers := s.manager.Discover()
	if peers == nil {
		peers = []domain.DiscoveredInstance{}
	}
	return protocol.OK().With("instances", peers)
}

func (s *Server) handleAuthenticate(_ context.Context, req *protocol.Request) protocol.Response {
	token := req.String("token")
	if token == "" {
		return protocol.Fail("token required")
	}
	if !s.auth.Authenticate(req.ClientID(), token) {
		return protocol.Fail("invalid token")
	}
	return protocol.OK().With("message", "authenticated")
}

// handleValidatePIN exchanges the operator PIN for the session token so
// local tooling can bootstrap without reading the host log.  Failures carry
// the rate limiter's client-facing message.
func (s *Server) handleValidatePIN(_ context.Context, req *protocol.Request) protocol.Response {
	pin := req.String("pin")
	ok, msg := s.manager.ValidatePIN(pin, req.ClientIP)
	if !ok {
		return protocol.Fail("%s", msg)
	}
	s.auth.Grant(req.ClientID())
	return protocol.OK().
		With("message", msg).
		With("token", s.manager.Identity().Token)
}

func (s *Server) handleGetPIN(_ context.Context, _ *protocol.Request) protocol.Response {
	return protocol.Fail("the PIN is never disclosed over the wire; read it from the host log")
}

func (s *Server) handleListFunctions(_ context.Context, _ *protocol.Request) protocol.Response {
	s.mu.RLock()
	cmds := make([]*command, 0, len(s.commands))
	for _, c := range s.commands {
		cmds = append(cmds, c)
	}
	s.mu.RUnlock()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].name < cmds[j].name })

	out := make([]map[string]any, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, map[string]any{
			"name":        c.name,
			"description": c.description,
			"thread_safe": c.threadSafe,
			"timeout":     c.timeout.Seconds(),
		})
	}
	return protocol.OK().With("functions", out)
}

func (s *Server) handleRequestTakeover(_ context.Context, req *protocol.Request) protocol.Response {
	ok, msg := s.manager.HandleTakeover(req.String("token"), req.StringOr("requester_id", "unknown"))
	if !ok {
		return protocol.Fail("%s", msg)
	}
	return protocol.OK().With("message", msg)
}

func (s *Server) handleGetCommandLog(ctx context.Context, req *protocol.Request) protocol.Response {
	if s.audit == nil {
		return protocol.Fail("command audit store not configured")
	}
	recs, err := s.audit.RecentCommands(ctx, req.Int("limit", 50))
	if err != nil {
		return protocol.Fail("audit query failed: %v", err)
	}
	out := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, map[string]any{
			"command":     r.Command,
			"client_ip":   r.ClientIP,
			"success":     r.OK,
			"error":       r.Error,
			"duration_ms": r.Duration.Milliseconds(),
			"created_at":  r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return protocol.OK().With("entries", out)
}
