// Package cli implements the hostlink command-line entry point.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hostlink/hostlink/internal/version"
)

// Run dispatches the CLI subcommands and returns the process exit code.
func Run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loadDotEnv(".env")

	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch args[0] {
	case "serve":
		return runServe(ctx, args[1:])
	case "discover":
		return runDiscover(ctx, args[1:])
	case "ping":
		return runPing(ctx, args[1:])
	case "call":
		return runCall(ctx, args[1:])
	case "version", "-v", "--version":
		fmt.Println(version.Version)
		return 0
	case "help", "-h", "--help":
		printUsage()
		return 0
	default:
		fmt.Fprintln(os.Stderr, "unknown command:", args[0])
		printUsage()
		return 2
	}
}

// loadDotEnv overlays HOSTLINK_* settings from a .env file when present.
// Explicit environment variables win.
func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: could not load "+path+":", err)
	}
}

func printUsage() {
	fmt.Print(`hostlink - remote command server with host-thread marshaling

Usage:
  hostlink serve [flags]      Start a command server instance
  hostlink discover [flags]   Probe the port range for running instances
  hostlink ping [flags]       Check connectivity to one instance
  hostlink call [flags]       Send a single command and print the response
  hostlink version            Print the version

Serve flags:
  --host, --base-port, --port-range, --project, --registry,
  --require-auth, --audit-db, --listen-ws, --log-level
  (HOSTLINK_* environment variables and .env provide defaults)

Run 'hostlink <command> -h' for command flags.
`)
}
