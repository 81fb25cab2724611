// Package domain defines the core data types shared across the hostlink
// server, instance manager, and executor layers.
package domain

import "time"

// ServerName is the identity string reported by every instance and matched
// during discovery.  A probe response with a different server field is not
// one of ours.
const ServerName = "Hostlink"

// Identity is the immutable per-process identity created at startup.
type Identity struct {
	InstanceID string
	Token      string
	PIN        string
}

// RegistryEntry is one instance's record in the shared on-disk registry.
// The clear token never appears here, only its hash.
type RegistryEntry struct {
	InstanceID string  `json:"instance_id"`
	Port       int     `json:"port"`
	Project    string  `json:"project"`
	TokenHash  string  `json:"token_hash"`
	PID        int     `json:"pid"`
	Started    float64 `json:"started"`
}

// DiscoveredInstance describes a live instance found by probing the port
// range.
type DiscoveredInstance struct {
	Port          int    `json:"port"`
	InstanceID    string `json:"instance_id"`
	Project       string `json:"project"`
	Version       string `json:"version"`
	TokenRequired bool   `json:"token_required"`
	Uptime        int    `json:"uptime"`
}

// AuditRecord is one dispatched command as persisted by the audit store.
type AuditRecord struct {
	ID        int64
	Command   string
	ClientIP  string
	OK        bool
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}
