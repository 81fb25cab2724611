package config

import (
	"testing"
	"time"
)

func TestParseServerFlagsDefaults(t *testing.T) {
	cfg, err := ParseServerFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BasePort != 9877 {
		t.Fatalf("got base port %d", cfg.BasePort)
	}
	if cfg.PortRange != 10 {
		t.Fatalf("got port range %d", cfg.PortRange)
	}
	if cfg.RequireAuth {
		t.Fatal("expected auth off by default")
	}
	if cfg.CommandTimeout != 15*time.Second {
		t.Fatalf("got command timeout %v", cfg.CommandTimeout)
	}
	if cfg.PINMaxAttempts != 5 || cfg.PINLockout != 300*time.Second {
		t.Fatalf("got pin limits %d/%v", cfg.PINMaxAttempts, cfg.PINLockout)
	}
	if cfg.ProjectName == "" {
		t.Fatal("expected detected project name")
	}
}

func TestParseServerFlagsOverrides(t *testing.T) {
	cfg, err := ParseServerFlags([]string{
		"--base-port", "9900",
		"--port-range", "4",
		"--require-auth",
		"--project", "DemoLevel",
		"--log-level", "debug",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BasePort != 9900 || cfg.PortRange != 4 {
		t.Fatalf("got %d/%d", cfg.BasePort, cfg.PortRange)
	}
	if !cfg.RequireAuth {
		t.Fatal("expected require auth")
	}
	if cfg.ProjectName != "DemoLevel" {
		t.Fatalf("got project %q", cfg.ProjectName)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("got log level %q", cfg.LogLevel)
	}
}

func TestParseServerFlagsEnv(t *testing.T) {
	t.Setenv("HOSTLINK_BASE_PORT", "9950")
	t.Setenv("HOSTLINK_REQUIRE_AUTH", "true")

	cfg, err := ParseServerFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BasePort != 9950 {
		t.Fatalf("got base port %d", cfg.BasePort)
	}
	if !cfg.RequireAuth {
		t.Fatal("expected require auth from env")
	}
}

func TestParseServerFlagsValidation(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"bad_base_port", []string{"--base-port", "0"}},
		{"bad_range", []string{"--port-range", "0"}},
		{"range_overflow", []string{"--base-port", "65530", "--port-range", "10"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseServerFlags(tc.args); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
