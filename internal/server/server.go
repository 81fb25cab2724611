// Package server implements the newline-JSON TCP command server: it accepts
// connections, parses one command per line, gates protected commands behind
// the authentication middleware, and routes host-bound work through the
// exclusive-thread executor.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hostlink/hostlink/internal/config"
	"github.com/hostlink/hostlink/internal/domain"
	"github.com/hostlink/hostlink/internal/executor"
	"github.com/hostlink/hostlink/internal/instance"
	"github.com/hostlink/hostlink/internal/protocol"
)

// maxLineBytes bounds a single command line.  Script payloads can be large,
// so this is generous.
const maxLineBytes = 16 << 20

// Handler processes one parsed request and returns the wire response.
type Handler func(ctx context.Context, req *protocol.Request) protocol.Response

// Auditor records dispatched commands.  The sqlite store satisfies it; a
// nil auditor disables recording.
type Auditor interface {
	RecordCommand(ctx context.Context, rec domain.AuditRecord) error
	RecentCommands(ctx context.Context, limit int) ([]domain.AuditRecord, error)
}

type command struct {
	name        string
	handler     Handler
	threadSafe  bool
	timeout     time.Duration
	description string
}

// Option customizes a registered command.
type Option func(*command)

// ThreadSafe marks a command as safe to run on the connection goroutine,
// bypassing the exclusive-thread executor.  Only commands that never touch
// the host API qualify.
func ThreadSafe() Option {
	return func(c *command) { c.threadSafe = true }
}

// WithTimeout overrides the default execution timeout, used for known-heavy
// commands.
func WithTimeout(d time.Duration) Option {
	return func(c *command) { c.timeout = d }
}

// WithDescription attaches the help text reported by list_functions.
func WithDescription(desc string) Option {
	return func(c *command) { c.description = desc }
}

// Server dispatches commands from TCP clients (and the optional WebSocket
// bridge) to registered handlers.
type Server struct {
	cfg     config.ServerConfig
	log     *slog.Logger
	exec    *executor.Executor
	manager *instance.Manager
	auth    *instance.AuthMiddleware
	audit   Auditor

	mu       sync.RWMutex
	commands map[string]*command

	startedAt time.Time
}

// New assembles a server and registers the built-in command set.  audit may
// be nil.
func New(cfg config.ServerConfig, logger *slog.Logger, exec *executor.Executor, mgr *instance.Manager, auth *instance.AuthMiddleware, audit Auditor) *Server {
	s := &Server{
		cfg:       cfg,
		log:       logger,
		exec:      exec,
		manager:   mgr,
		auth:      auth,
		audit:     audit,
		commands:  make(map[string]*command),
		startedAt: time.Now(),
	}
	s.registerBuiltins()
	return s
}

// Register installs a command handler.  Host-bound by default; pass
// [ThreadSafe] for handlers that never touch the host API.  Registering an
// existing name replaces it.
func (s *Server) Register(name string, h Handler, opts ...Option) {
	c := &command{name: name, handler: h, timeout: s.cfg.CommandTimeout}
	for _, opt := range opts {
		opt(c)
	}
	s.mu.Lock()
	s.commands[name] = c
	s.mu.Unlock()
}

// CommandNames returns all registered command names, sorted.
func (s *Server) CommandNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) lookup(name string) (*command, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.commands[name]
	return c, ok
}

// HandleLine parses one wire line, dispatches it, and returns the encoded
// response line.  Transport layers (TCP, WebSocket) share this path.
func (s *Server) HandleLine(ctx context.Context, line []byte, clientIP string) []byte {
	req, err := protocol.ParseRequest(line)
	if err != nil {
		return mustEncode(protocol.Fail("Invalid JSON: %v", err))
	}
	req.ClientIP = clientIP
	return mustEncode(s.Dispatch(ctx, req))
}

// Dispatch runs one parsed request through the auth gate and its handler,
// recording the outcome in the audit store when one is configured.
func (s *Server) Dispatch(ctx context.Context, req *protocol.Request) protocol.Response {
	start := time.Now()
	resp := s.dispatch(ctx, req)

	if s.audit != nil {
		rec := domain.AuditRecord{
			Command:  req.Type,
			ClientIP: req.ClientIP,
			OK:       resp.Succeeded(),
			Error:    resp.ErrorMessage(),
			Duration: time.Since(start),
		}
		if err := s.audit.RecordCommand(ctx, rec); err != nil {
			s.log.Warn("audit record failed", "command", req.Type, "err", err)
		}
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req *protocol.Request) protocol.Response {
	if req.Type == "" {
		return protocol.Fail("missing command type")
	}
	cmd, ok := s.lookup(req.Type)
	if !ok {
		return protocol.Fail("Unknown command: %s", req.Type).
			With("available_commands", s.CommandNames())
	}
	if !s.auth.Allow(req.Type, req.ClientID()) {
		return protocol.Fail("authentication required")
	}

	if cmd.threadSafe {
		return s.invoke(ctx, cmd, req)
	}

	v, err := s.exec.SubmitAndWait(cmd.name, func() (any, error) {
		return s.invoke(ctx, cmd, req), nil
	}, cmd.timeout)
	if err != nil {
		return failFromError(cmd.name, err)
	}
	return v.(protocol.Response)
}

// invoke runs the handler with panic containment so a broken handler takes
// down one response, not the server.
func (s *Server) invoke(ctx context.Context, cmd *command, req *protocol.Request) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panic", "command", cmd.name, "panic", r)
			resp = protocol.Fail("command %s: panic: %v", cmd.name, r).
				With("traceback", string(debug.Stack()))
		}
	}()
	return cmd.handler(ctx, req)
}

func failFromError(name string, err error) protocol.Response {
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return protocol.Fail("command %s timed out", name).With("timeout", true)
	case errors.Is(err, domain.ErrQueueFull):
		return protocol.Fail("server busy, try again").With("retryable", true)
	}
	var cmdErr *domain.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Traceback != "" {
		return protocol.Fail("%v", err).With("traceback", cmdErr.Traceback)
	}
	return protocol.Fail("%v", err)
}

func mustEncode(resp protocol.Response) []byte {
	b, err := protocol.EncodeLine(resp)
	if err != nil {
		// Only non-serializable handler output gets here.
		b, _ = protocol.EncodeLine(protocol.Fail("response serialization failed: %v", err))
	}
	return b
}

// ListenAndServe binds the instance's allocated port and serves until ctx
// is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.ListenHost, strconv.Itoa(s.manager.Port()))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.log.Info("command server listening", "addr", addr)
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, handling each
// connection on its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.log.Warn("accept failed", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
	wg.Wait()
	return nil
}

// handleConn reads commands line by line and answers each in order.
// Responses on one connection are serialized by construction; concurrency
// happens across connections.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	clientIP := remoteIP(conn)
	s.log.Debug("client connected", "ip", clientIP)

	// On shutdown, expire the read so an idle connection stops blocking in
	// Scan.  A request already being processed is unaffected: only reads
	// fail, so its response still goes out before the loop exits.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-stop:
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.HandleLine(ctx, line, clientIP)
		if _, err := conn.Write(resp); err != nil {
			s.log.Debug("client write failed", "ip", clientIP, "err", err)
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.log.Debug("client read failed", "ip", clientIP, "err", err)
	}
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

// Uptime reports time since the server was assembled.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startedAt)
}
