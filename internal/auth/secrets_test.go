package auth

import (
	"strings"
	"testing"
)

func TestGenerateTokenUnique(t *testing.T) {
	t.Parallel()

	a, err := GenerateToken(32)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateToken(32)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected distinct tokens")
	}
	if len(a) < 40 {
		t.Fatalf("token too short: %d", len(a))
	}
	if strings.ContainsAny(a, "+/=") {
		t.Fatalf("token not URL-safe: %q", a)
	}
}

func TestGeneratePINFormat(t *testing.T) {
	t.Parallel()

	for it := 0; it < 50; it++ {
		pin, err := GeneratePIN()
		if err != nil {
			t.Fatal(err)
		}
		if len(pin) != 4 {
			t.Fatalf("expected 4 digits, got %q", pin)
		}
		for _, c := range pin {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in pin %q", pin)
			}
		}
		if pin[0] == '0' {
			t.Fatalf("pin below 1000: %q", pin)
		}
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	t.Parallel()

	if HashToken("abc") != HashToken("abc") {
		t.Fatal("expected deterministic hash")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("expected distinct hashes for distinct tokens")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatal("expected sha256 hex digest length")
	}
}

func TestConstantTimeEquals(t *testing.T) {
	t.Parallel()

	if !ConstantTimeEquals("same", "same") {
		t.Fatal("expected equal strings to match")
	}
	if ConstantTimeEquals("same", "diff") {
		t.Fatal("expected different strings to mismatch")
	}
	if ConstantTimeEquals("short", "longer") {
		t.Fatal("expected length mismatch to fail")
	}
}

func TestHashAndCheckPIN(t *testing.T) {
	t.Parallel()

	h, err := HashPIN("4821")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPIN(h, "4821") {
		t.Fatal("expected matching pin to validate")
	}
	if CheckPIN(h, "4822") {
		t.Fatal("expected wrong pin to fail")
	}
}
