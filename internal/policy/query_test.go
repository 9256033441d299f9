package policy

import (
	"strings"
	"testing"

	"intentrun/internal/provider"
	"intentrun/internal/render"
)

func queryInstruction(literal string) render.Instruction {
	return render.Instruction{
		Domain:  provider.DomainStructuredQuery,
		Literal: literal,
	}
}

func TestQueryStackedStatementsDeniedEverywhere(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})
	inst := queryInstruction("SELECT * FROM users WHERE name = ?; DROP TABLE users")

	for _, tier := range []Tier{TierPermissive, TierConstrained, TierReadOnly, TierStrict} {
		v := c.Classify(inst, tier)
		if v.Decision != Deny {
			t.Errorf("tier %s: decision = %s, want deny", tier, v.Decision)
		}
		if v.Rule != "query.multi_statement" {
			t.Errorf("tier %s: rule = %q, want query.multi_statement", tier, v.Rule)
		}
	}
}

func TestQueryCommentWithMutationDeniedEverywhere(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})
	inst := queryInstruction("SELECT 1 -- drop table users")

	for _, tier := range []Tier{TierPermissive, TierConstrained, TierReadOnly, TierStrict} {
		v := c.Classify(inst, tier)
		if v.Decision != Deny {
			t.Errorf("tier %s: decision = %s, want deny", tier, v.Decision)
		}
		if v.Rule != "query.comment_mutation" {
			t.Errorf("tier %s: rule = %q, want query.comment_mutation", tier, v.Rule)
		}
	}
}

func TestQueryTrailingSemicolonIsNotStacking(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})
	v := c.Classify(queryInstruction("SELECT * FROM users;"), TierReadOnly)
	if v.Decision != Allow {
		t.Errorf("trailing semicolon alone should not deny, got %s: %s", v.Decision, v.Reason)
	}
}

func TestQueryStatementKinds(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})

	tests := []struct {
		literal string
		want    map[Tier]Decision
	}{
		{
			literal: "SELECT id FROM users WHERE id = ?",
			want: map[Tier]Decision{
				TierPermissive:  Allow,
				TierConstrained: Allow,
				TierReadOnly:    Allow,
				TierStrict:      Allow,
			},
		},
		{
			literal: "DELETE FROM sessions WHERE expires < ?",
			want: map[Tier]Decision{
				TierPermissive:  Allow,
				TierConstrained: Allow,
				TierReadOnly:    Deny,
				TierStrict:      Deny,
			},
		},
		{
			literal: "DROP TABLE sessions",
			want: map[Tier]Decision{
				TierPermissive:  Allow,
				TierConstrained: Deny,
				TierReadOnly:    Deny,
				TierStrict:      Deny,
			},
		},
		{
			// Unrecognized statement types fall into the most restrictive
			// bucket for the active tier.
			literal: "VACUUM",
			want: map[Tier]Decision{
				TierPermissive:  Allow,
				TierConstrained: Deny,
				TierReadOnly:    Deny,
				TierStrict:      Deny,
			},
		},
	}

	for _, tt := range tests {
		for tier, want := range tt.want {
			v := c.Classify(queryInstruction(tt.literal), tier)
			if v.Decision != want {
				t.Errorf("%q at %s: decision = %s, want %s (%s)",
					tt.literal, tier, v.Decision, want, v.Reason)
			}
		}
	}
}

func TestQueryStrictRequiresBoundParameters(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})

	for _, literal := range []string{
		"SELECT * FROM users WHERE id = 42",
		"SELECT * FROM users WHERE name = 'bob'",
	} {
		v := c.Classify(queryInstruction(literal), TierStrict)
		if v.Decision != Deny {
			t.Errorf("%q: decision = %s, want deny", literal, v.Decision)
			continue
		}
		if v.Rule != "query.unbound_literal" {
			t.Errorf("%q: rule = %q, want query.unbound_literal", literal, v.Rule)
		}
		if !strings.Contains(v.Reason, "re-render") {
			t.Errorf("%q: reason should suggest re-rendering, got %q", literal, v.Reason)
		}
	}

	v := c.Classify(queryInstruction("SELECT * FROM users WHERE id = ?"), TierStrict)
	if v.Decision != Allow {
		t.Errorf("bound query should be allowed under strict, got %s: %s", v.Decision, v.Reason)
	}
}

func TestQueryStrictReadWhitelist(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})
	v := c.Classify(queryInstruction("EXPLAIN SELECT id FROM users"), TierStrict)
	if v.Decision != Deny {
		t.Errorf("explain is not on the default whitelist, got %s", v.Decision)
	}
	if v.Rule != "query.read_whitelist" {
		t.Errorf("rule = %q, want query.read_whitelist", v.Rule)
	}

	c = NewClassifier(HostRules{}, QueryRules{ReadWhitelist: []string{"select", "explain"}})
	v = c.Classify(queryInstruction("EXPLAIN SELECT id FROM users"), TierStrict)
	if v.Decision != Allow {
		t.Errorf("whitelisted explain should be allowed, got %s: %s", v.Decision, v.Reason)
	}
}

func TestQuerySemicolonInsideStringLiteral(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})
	v := c.Classify(queryInstruction("SELECT * FROM notes WHERE body = 'a; b'"), TierReadOnly)
	if v.Decision != Allow {
		t.Errorf("semicolon inside a string is not stacking, got %s: %s", v.Decision, v.Reason)
	}
}

func TestQueryTierMonotonicity(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})
	tiers := []Tier{TierPermissive, TierConstrained, TierReadOnly, TierStrict}

	literals := []string{
		"SELECT id FROM users WHERE id = ?",
		"SELECT id FROM users WHERE id = 42",
		"WITH recent AS (SELECT * FROM logs) SELECT * FROM recent",
		"INSERT INTO logs (msg) VALUES (?)",
		"UPDATE users SET name = ? WHERE id = ?",
		"DROP TABLE users",
		"CREATE TABLE t (id INTEGER)",
		"VACUUM",
		"SELECT 1; DROP TABLE users",
		"SELECT 1 -- drop table users",
	}

	for _, literal := range literals {
		prev := Allow
		for i, tier := range tiers {
			v := c.Classify(queryInstruction(literal), tier)
			if i > 0 && v.Decision.MorePermissiveThan(prev) {
				t.Errorf("%q: tier %s is more permissive (%s) than %s (%s)",
					literal, tier, v.Decision, tiers[i-1], prev)
			}
			prev = v.Decision
		}
	}
}

func TestUnknownDomainDenied(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})
	v := c.Classify(render.Instruction{Domain: "telepathy", Literal: "x"}, TierPermissive)
	if v.Decision != Deny {
		t.Errorf("unknown domain should be denied, got %s", v.Decision)
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"permissive", TierPermissive, false},
		{"constrained", TierConstrained, false},
		{"readonly", TierReadOnly, false},
		{"read_only", TierReadOnly, false},
		{"read-only", TierReadOnly, false},
		{"strict", TierStrict, false},
		{"paranoid", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTier(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTier(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseTier(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
