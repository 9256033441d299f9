package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// QueryRules configures structured-query classification.
type QueryRules struct {
	// ReadWhitelist lists the statement keywords the Strict tier accepts.
	ReadWhitelist []string
}

// DefaultQueryRules returns the stock query rule set.
func DefaultQueryRules() QueryRules {
	return QueryRules{ReadWhitelist: []string{"select"}}
}

// stmtType is the lexical category of a statement. Detection is
// deliberately shallow; when the type cannot be determined with
// confidence the statement is treated as the most restrictive category
// for the active tier.
type stmtType int

const (
	stmtUnknown stmtType = iota
	stmtRead
	stmtMutating
	stmtSchema
)

func (t stmtType) String() string {
	switch t {
	case stmtRead:
		return "read"
	case stmtMutating:
		return "mutating"
	case stmtSchema:
		return "schema"
	default:
		return "unknown"
	}
}

var (
	readKeywords     = map[string]stmtType{"select": stmtRead, "with": stmtRead, "explain": stmtRead, "show": stmtRead}
	mutatingKeywords = map[string]stmtType{"insert": stmtMutating, "update": stmtMutating, "delete": stmtMutating, "replace": stmtMutating, "merge": stmtMutating}
	schemaKeywords   = map[string]stmtType{
		"create": stmtSchema, "alter": stmtSchema, "drop": stmtSchema,
		"truncate": stmtSchema, "grant": stmtSchema, "revoke": stmtSchema,
		"attach": stmtSchema, "detach": stmtSchema, "reindex": stmtSchema,
	}

	// unboundLiteral spots comparisons against inline numbers, the other
	// half of the "fully bound" requirement (inline strings are caught by
	// quote detection).
	unboundLiteral = regexp.MustCompile(`(?i)(=|<>|!=|<=?|>=?|\bLIKE\b|\bIN\s*\()\s*\d`)
)

// queryFacts are the lexical observations for one query literal.
type queryFacts struct {
	kind stmtType

	// multi is true when a semicolon separates a second non-empty
	// statement (classic stacked-statement injection).
	multi bool

	// comment is true when the literal carries a comment marker outside
	// string literals.
	comment bool

	// mutatingKeyword is true when any mutating or schema keyword appears
	// anywhere in the literal, not only in statement position.
	mutatingKeyword bool

	// unbound is true when the literal embeds values instead of bind
	// markers.
	unbound bool
}

// classifyQuery applies the structured-query rules for one tier.
func (c *Classifier) classifyQuery(literal string, tier Tier) Verdict {
	facts := scanQuery(literal)

	// Injection smells are denied at every tier: stacked statements, and
	// comment markers riding together with mutating keywords.
	if facts.multi {
		return deny(tier, "query.multi_statement", "multiple statements in one instruction")
	}
	if facts.comment && facts.mutatingKeyword {
		return deny(tier, "query.comment_mutation", "comment marker combined with a mutating keyword")
	}

	switch tier {
	case TierStrict:
		if facts.kind != stmtRead {
			return deny(tier, "query.not_read", fmt.Sprintf("%s statement is not allowed under the strict tier", facts.kind))
		}
		if !c.strictReadWhitelisted(literal) {
			return deny(tier, "query.read_whitelist", "statement keyword is not whitelisted")
		}
		if facts.unbound {
			return deny(tier, "query.unbound_literal", "literal values must be bound parameters; re-render with bound arguments")
		}
		return allow(tier)

	case TierReadOnly:
		if facts.kind != stmtRead {
			return deny(tier, "query.not_read", fmt.Sprintf("%s statement is not allowed under the read-only tier", facts.kind))
		}
		return allow(tier)

	case TierConstrained:
		if facts.kind == stmtSchema || facts.kind == stmtUnknown {
			return deny(tier, "query.schema_change", fmt.Sprintf("%s statement is not allowed under the constrained tier", facts.kind))
		}
		return allow(tier)

	default: // TierPermissive
		return allow(tier)
	}
}

func (c *Classifier) strictReadWhitelisted(literal string) bool {
	head := firstKeyword(literal)
	for _, w := range c.query.ReadWhitelist {
		if head == strings.ToLower(w) {
			return true
		}
	}
	return false
}

// scanQuery scans the literal once, tracking quote state so markers
// inside string literals do not trigger rules.
func scanQuery(literal string) queryFacts {
	var facts queryFacts
	var quote byte
	trimmed := strings.TrimSpace(literal)

	for i := 0; i < len(trimmed); i++ {
		ch := trimmed[i]
		if quote != 0 {
			facts.unbound = true // a string literal is an embedded value
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch {
		case ch == '\'' || ch == '"':
			quote = ch
			facts.unbound = true
		case ch == ';':
			if strings.TrimSpace(trimmed[i+1:]) != "" {
				facts.multi = true
			}
		case ch == '-' && i+1 < len(trimmed) && trimmed[i+1] == '-':
			facts.comment = true
		case ch == '/' && i+1 < len(trimmed) && trimmed[i+1] == '*':
			facts.comment = true
		case ch == '#':
			facts.comment = true
		}
	}

	facts.kind = statementType(trimmed)
	facts.mutatingKeyword = containsMutatingKeyword(trimmed)
	if unboundLiteral.MatchString(trimmed) {
		facts.unbound = true
	}
	return facts
}

// statementType categorizes a statement by its first keyword.
func statementType(literal string) stmtType {
	head := firstKeyword(literal)
	if t, ok := readKeywords[head]; ok {
		return t
	}
	if t, ok := mutatingKeywords[head]; ok {
		return t
	}
	if t, ok := schemaKeywords[head]; ok {
		return t
	}
	return stmtUnknown
}

func firstKeyword(literal string) string {
	fields := strings.Fields(strings.TrimSpace(literal))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// containsMutatingKeyword scans every word for mutating or
// schema-altering keywords, wherever they appear.
func containsMutatingKeyword(literal string) bool {
	for _, f := range strings.Fields(literal) {
		w := strings.ToLower(strings.Trim(f, "();,"))
		if _, ok := mutatingKeywords[w]; ok {
			return true
		}
		if _, ok := schemaKeywords[w]; ok {
			return true
		}
	}
	return false
}
