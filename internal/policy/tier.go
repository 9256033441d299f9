// Package policy classifies rendered instructions against a tiered
// security policy before anything is allowed to run. Classification is a
// pure function of (literal, domain, tier): no clock, no randomness, no
// hidden state, so verdicts are reproducible in tests.
package policy

import "fmt"

// Tier is an ordered policy level. Ordering runs from most to least
// permissive: Permissive < Constrained < ReadOnly < Strict.
type Tier int

const (
	TierPermissive Tier = iota
	TierConstrained
	TierReadOnly
	TierStrict
)

// String returns the configuration name of the tier.
func (t Tier) String() string {
	switch t {
	case TierPermissive:
		return "permissive"
	case TierConstrained:
		return "constrained"
	case TierReadOnly:
		return "readonly"
	case TierStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParseTier converts a configuration string to a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "permissive":
		return TierPermissive, nil
	case "constrained":
		return TierConstrained, nil
	case "readonly", "read_only", "read-only":
		return TierReadOnly, nil
	case "strict":
		return TierStrict, nil
	default:
		return TierPermissive, fmt.Errorf("unknown security tier: %q", s)
	}
}

// AtLeast reports whether t is at least as restrictive as other.
func (t Tier) AtLeast(other Tier) bool {
	return t >= other
}
