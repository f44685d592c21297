// Package discovery lets a host advertise the endpoint its bridge listens on and lets the
// other side find compatible endpoints.
package discovery

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Endpoint is one advertised bridge listener.
type Endpoint struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"`  // Relative share for weighted balancing
	Version string `json:"version"` // Bridge protocol version, semver
	Session string `json:"session"` // Id of the session that will serve the connection
}

// Registry stores endpoints under a bridge name (typically the workspace or project).
type Registry interface {
	Register(ctx context.Context, name string, ep Endpoint, ttl int64) error
	Deregister(ctx context.Context, name string, addr string) error
	Discover(ctx context.Context, name string) ([]Endpoint, error)
	Watch(ctx context.Context, name string) <-chan []Endpoint
}

// Compatible keeps the endpoints whose Version satisfies constraint (e.g. "^1.2").
// Endpoints with a missing or malformed version are skipped.
func Compatible(endpoints []Endpoint, constraint string) ([]Endpoint, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid version constraint %q: %w", constraint, err)
	}

	out := make([]Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		v, err := semver.NewVersion(ep.Version)
		if err != nil {
			continue
		}
		if c.Check(v) {
			out = append(out, ep)
		}
	}
	return out, nil
}
