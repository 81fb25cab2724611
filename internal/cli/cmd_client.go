package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hostlink/hostlink/internal/client"
	"github.com/hostlink/hostlink/internal/instance"
)

func runDiscover(_ context.Context, args []string) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	host := fs.String("host", "127.0.0.1", "Host to probe")
	basePort := fs.Int("base-port", 9877, "First port of the range")
	portRange := fs.Int("port-range", 10, "Number of ports to probe")
	timeout := fs.Duration("timeout", time.Second, "Per-port probe timeout")
	asJSON := fs.Bool("json", false, "Print machine-readable JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	found := instance.Discover(*host, *basePort, *portRange, *timeout)
	if *asJSON {
		b, err := json.MarshalIndent(found, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "discover error:", err)
			return 1
		}
		fmt.Println(string(b))
		return 0
	}
	if len(found) == 0 {
		fmt.Println("no running instances found")
		return 0
	}
	for _, d := range found {
		fmt.Printf("port %d  %s  project=%s  version=%s  uptime=%ds  auth=%v\n",
			d.Port, d.InstanceID, d.Project, d.Version, d.Uptime, d.TokenRequired)
	}
	return 0
}

func runPing(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	host := fs.String("host", "127.0.0.1", "Instance host")
	port := fs.Int("port", 9877, "Instance port")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := client.Dial(*host, *port, client.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "ping error:", err)
		return 1
	}
	defer c.Close()

	rtt, err := c.Ping(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ping error:", err)
		return 1
	}
	fmt.Printf("pong from %s:%d in %s\n", *host, *port, rtt.Round(time.Microsecond))
	return 0
}

func runCall(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	host := fs.String("host", "127.0.0.1", "Instance host")
	port := fs.Int("port", 9877, "Instance port")
	params := fs.String("params", "", "Command parameters as a JSON object")
	token := fs.String("token", os.Getenv("HOSTLINK_TOKEN"), "Session token for protected commands")
	clientID := fs.String("client-id", "hostlink-cli", "Client id reported to the server")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "call error: expected exactly one command name, e.g. `hostlink call get_server_info`")
		return 2
	}
	cmdType := fs.Arg(0)

	var p map[string]any
	if *params != "" {
		if err := json.Unmarshal([]byte(*params), &p); err != nil {
			fmt.Fprintln(os.Stderr, "call error: invalid --params JSON:", err)
			return 2
		}
	}

	c, err := client.Dial(*host, *port, client.Options{ClientID: *clientID})
	if err != nil {
		fmt.Fprintln(os.Stderr, "call error:", err)
		return 1
	}
	defer c.Close()

	if *token != "" {
		if err := c.Authenticate(ctx, *token); err != nil {
			fmt.Fprintln(os.Stderr, "call error:", err)
			return 1
		}
	}

	resp, err := c.Call(ctx, cmdType, p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "call error:", err)
		return 1
	}
	b, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "call error:", err)
		return 1
	}
	fmt.Println(string(b))
	if !resp.Succeeded() {
		return 1
	}
	return 0
}
