package policy

import (
	"go.uber.org/zap"

	"intentrun/internal/logging"
	"intentrun/internal/provider"
	"intentrun/internal/render"
)

// Classifier evaluates instructions against the tiered security policy.
// A zero-config classifier uses the platform defaults.
type Classifier struct {
	host  HostRules
	query QueryRules
	log   *zap.Logger
}

// NewClassifier creates a classifier with the given rule sets. Empty rule
// sets fall back to the defaults.
func NewClassifier(host HostRules, query QueryRules) *Classifier {
	if len(host.Whitelist) == 0 {
		host.Whitelist = DefaultHostRules().Whitelist
	}
	if len(host.ProtectedPaths) == 0 {
		host.ProtectedPaths = defaultProtectedPaths()
	}
	if len(query.ReadWhitelist) == 0 {
		query.ReadWhitelist = DefaultQueryRules().ReadWhitelist
	}
	return &Classifier{
		host:  host,
		query: query,
		log:   logging.Get(logging.CategoryPolicy),
	}
}

// Classify returns the verdict for an instruction under a tier. The
// result is deterministic for a fixed (literal, domain, tier) triple.
func (c *Classifier) Classify(inst render.Instruction, tier Tier) Verdict {
	var v Verdict
	switch inst.Domain {
	case provider.DomainHostCommand:
		v = c.classifyHost(inst.Literal, tier)
	case provider.DomainStructuredQuery:
		v = c.classifyQuery(inst.Literal, tier)
	default:
		v = deny(tier, "policy.unknown_domain", "instruction domain is not recognized")
	}

	if v.Decision != Allow {
		c.log.Info("instruction gated",
			zap.String("request_id", inst.RequestID),
			zap.String("domain", string(inst.Domain)),
			zap.String("tier", tier.String()),
			zap.String("decision", v.Decision.String()),
			zap.String("rule", v.Rule),
			zap.String("reason", v.Reason))
	}
	return v
}
