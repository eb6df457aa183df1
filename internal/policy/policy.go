// Package policy decides, from message metadata and the configured
// threshold, whether an incoming APPEND should be held for review.
package policy

import (
	"quarantine-proxy/internal/config"
	"quarantine-proxy/internal/message"
)

// Decide reports whether meta should be held rather than delivered
// upstream. Quarantine must be enabled, and the extracted amount must
// meet or exceed the configured threshold: equality holds, it does not
// pass through.
func Decide(meta message.Metadata, cfg config.QuarantineConfig) bool {
	if !cfg.Enabled {
		return false
	}
	return meta.Amount >= cfg.MinAmount
}
