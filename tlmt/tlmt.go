// Package tlmt defines the minimal telemetry surface the runners use: one
// anonymous event per run. Implementations live in subpackages; gonoop is
// the always-available fallback.
package tlmt

import "context"

type Event struct {
	Name       string
	Properties map[string]any
}

func NewEvent(name string, properties map[string]any) Event {
	return Event{
		Name:       name,
		Properties: properties,
	}
}

type Telemetry interface {
	Send(ctx context.Context, event Event) error
	Close() error
}
