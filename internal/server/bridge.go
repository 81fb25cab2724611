package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 64 << 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Bridge exposes the command protocol over WebSocket for browser-based
// tooling.  Each text message carries exactly one JSON command and receives
// exactly one JSON response; the semantics are identical to one TCP line.
type Bridge struct {
	srv  *Server
	log  *slog.Logger
	addr string
}

// NewBridge creates a WebSocket bridge in front of the command server.
func NewBridge(srv *Server, addr string, logger *slog.Logger) *Bridge {
	return &Bridge{srv: srv, log: logger, addr: addr}
}

// Run serves the bridge until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpSrv := &http.Server{
		Addr:              b.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	b.log.Info("websocket bridge listening", "addr", b.addr)
	if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	clientIP := requestIP(r)
	b.log.Debug("websocket client connected", "ip", clientIP)

	// gorilla/websocket allows one concurrent writer; commands on a single
	// socket are handled sequentially, the mutex guards ping control frames.
	var writeMu sync.Mutex
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
	})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for range t.C {
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		resp := b.srv.HandleLine(r.Context(), msg, clientIP)
		writeMu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, resp)
		writeMu.Unlock()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
	}
}

func requestIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
