package pagination

import "testing"

func TestClampLimitDefaultsWhenNotExplicit(t *testing.T) {
	t.Parallel()

	got := ClampLimit(0, false, LimitConfig{Default: 10, Max: 50})
	if got != 10 {
		t.Fatalf("ClampLimit = %d, want 10", got)
	}
}

func TestClampLimitPreservesExplicitZero(t *testing.T) {
	t.Parallel()

	got := ClampLimit(0, true, LimitConfig{Default: 10, Max: 50})
	if got != 0 {
		t.Fatalf("ClampLimit = %d, want 0", got)
	}
}

func TestClampLimitCapsAtMax(t *testing.T) {
	t.Parallel()

	got := ClampLimit(500, true, LimitConfig{Default: 10, Max: 50})
	if got != 50 {
		t.Fatalf("ClampLimit = %d, want 50", got)
	}
}
