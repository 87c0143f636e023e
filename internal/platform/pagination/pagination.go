// Package pagination normalizes offset/limit windows for list endpoints.
package pagination

// LimitConfig configures limit normalization.
type LimitConfig struct {
	Default uint64
	Max     uint64
}

// ClampLimit applies defaults and caps for list limits. A zero limit is
// preserved: callers treat it as an explicit empty window, not a default.
func ClampLimit(value uint64, explicit bool, cfg LimitConfig) uint64 {
	limit := value
	if !explicit {
		limit = cfg.Default
	}
	if cfg.Max > 0 && limit > cfg.Max {
		limit = cfg.Max
	}
	return limit
}
