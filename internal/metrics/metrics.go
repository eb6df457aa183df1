// Package metrics holds the proxy's in-process counters: commands
// relayed, APPENDs held or delivered, and parse errors. It is not wired
// to an external exporter — there is no metrics backend named anywhere
// in this proxy's external interfaces, so the registry exists purely
// for structured logging and tests to read from.
package metrics

import "sync/atomic"

// Registry is a set of atomic counters shared across a server's sessions.
type Registry struct {
	CommandsRelayed  atomic.Int64
	AppendsHeld      atomic.Int64
	AppendsDelivered atomic.Int64
	ParseErrors      atomic.Int64
}

// New returns a zeroed Registry.
func New() *Registry {
	return &Registry{}
}

// Snapshot is a point-in-time copy of the counters, suitable for logging.
type Snapshot struct {
	CommandsRelayed  int64
	AppendsHeld      int64
	AppendsDelivered int64
	ParseErrors      int64
}

// Snapshot reads the current counter values.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		CommandsRelayed:  r.CommandsRelayed.Load(),
		AppendsHeld:      r.AppendsHeld.Load(),
		AppendsDelivered: r.AppendsDelivered.Load(),
		ParseErrors:      r.ParseErrors.Load(),
	}
}
