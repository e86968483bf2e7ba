package app

import (
	"context"
	"fmt"

	httpserver "github.com/fairyhunter13/resume-evaluator/internal/adapter/httpserver"
)

// Pinger is anything that can report whether it is reachable.
type Pinger interface{ Ping(ctx context.Context) error }

// PingFunc adapts a function to Pinger, e.g. a Redis client whose Ping returns a command.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Dependency names a Pinger for /readyz. Optional dependencies are registered only when configured.
type Dependency struct {
	Name   string
	Pinger Pinger
}

// BuildReadinessChecks turns dependencies into readiness checks. A nil Pinger always fails so a
// required dependency that was never constructed cannot report ready.
func BuildReadinessChecks(deps ...Dependency) []httpserver.ReadinessCheck {
	out := make([]httpserver.ReadinessCheck, 0, len(deps))
	for _, d := range deps {
		d := d
		out = append(out, httpserver.ReadinessCheck{
			Name: d.Name,
			Check: func(ctx context.Context) error {
				if d.Pinger == nil {
					return fmt.Errorf("%s not configured", d.Name)
				}
				return d.Pinger.Ping(ctx)
			},
		})
	}
	return out
}
