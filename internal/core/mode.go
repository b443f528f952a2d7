// Package core is the orchestration layer.  It composes the relay,
// session, capabilities, tunnels and gateway into complete operational
// modes and provides a builder that selects the right mode from a
// Config.
//
// Architecture layers (bottom → top):
//
//	transport / tunnel  →  relay / session  →  capability / gateway  →  core  →  cmd (CLI)
package core

import "context"

// Mode represents a complete operational mode of chatrelay (relay
// server or chat client).  Each mode owns its full lifecycle from
// connection establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
