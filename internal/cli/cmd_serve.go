package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/hostlink/hostlink/internal/config"
	"github.com/hostlink/hostlink/internal/executor"
	"github.com/hostlink/hostlink/internal/host"
	"github.com/hostlink/hostlink/internal/instance"
	ilog "github.com/hostlink/hostlink/internal/log"
	"github.com/hostlink/hostlink/internal/server"
	"github.com/hostlink/hostlink/internal/store/sqlite"
)

func runServe(ctx context.Context, args []string) int {
	cfg, err := config.ParseServerFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "serve config error:", err)
		return 2
	}
	logger := ilog.New(cfg.LogLevel)

	mgr, err := instance.NewManager(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "instance setup error:", err)
		return 1
	}
	if _, err := mgr.AutoConfigure(); err != nil {
		fmt.Fprintln(os.Stderr, "instance configuration error:", err)
		return 1
	}
	defer func() {
		if err := mgr.Unregister(); err != nil {
			logger.Warn("unregister failed", "err", err)
		}
	}()

	// Standalone serving uses the built-in tick loop as the exclusive
	// thread.  An embedding host would pass its own registrar instead.
	exec := executor.New(cfg.QueueSize, logger)
	loop := host.NewLoop(cfg.TickInterval)
	_ = exec.Attach(loop) // failure already logged; degraded mode still serves
	loop.Start()
	defer loop.Stop()

	authmw := instance.NewAuthMiddleware(mgr, cfg.RequireAuth, cfg.AuthTimeout)

	var audit server.Auditor
	if cfg.AuditDBPath != "" {
		store, err := sqlite.Open(cfg.AuditDBPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "audit db error:", err)
			return 1
		}
		defer func() { _ = store.Close() }()
		audit = store
	}

	srv := server.New(cfg, logger, exec, mgr, authmw, audit)

	if cfg.ListenWS != "" {
		bridge := server.NewBridge(srv, cfg.ListenWS, logger)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error("websocket bridge failed", "err", err)
			}
		}()
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "server error:", err)
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}
