package policy

// Decision is the classifier's outcome for one instruction.
type Decision int

const (
	// Deny refuses execution outright. It is the zero value, so an
	// uninitialized verdict defaults to the safest decision.
	Deny Decision = iota

	// RequiresConfirmation permits execution only after the user approves.
	RequiresConfirmation

	// Allow permits execution without interaction.
	Allow
)

// String returns a human-readable name for the decision.
func (d Decision) String() string {
	switch d {
	case Deny:
		return "deny"
	case RequiresConfirmation:
		return "requires_confirmation"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// MorePermissiveThan reports whether d allows strictly more than other.
// Allow > RequiresConfirmation > Deny.
func (d Decision) MorePermissiveThan(other Decision) bool {
	return d > other
}

// downgrade steps a decision one notch toward Deny. Used when an
// instruction touches a protected path.
func (d Decision) downgrade() Decision {
	if d == Deny {
		return Deny
	}
	return d - 1
}

// Verdict is the classifier's decision plus its justification.
type Verdict struct {
	Decision Decision

	// Reason explains the decision. Mandatory whenever Decision != Allow.
	Reason string

	// Tier is the security tier the decision was made under.
	Tier Tier

	// Rule identifies the rule that fired, when one did.
	Rule string
}

// allow builds an Allow verdict.
func allow(tier Tier) Verdict {
	return Verdict{Decision: Allow, Tier: tier}
}

// deny builds a Deny verdict with a mandatory reason.
func deny(tier Tier, rule, reason string) Verdict {
	return Verdict{Decision: Deny, Tier: tier, Rule: rule, Reason: reason}
}

// confirm builds a RequiresConfirmation verdict with a mandatory reason.
func confirm(tier Tier, rule, reason string) Verdict {
	return Verdict{Decision: RequiresConfirmation, Tier: tier, Rule: rule, Reason: reason}
}
