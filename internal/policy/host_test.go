package policy

import (
	"strings"
	"testing"

	"intentrun/internal/provider"
	"intentrun/internal/render"
)

func hostInstruction(literal string) render.Instruction {
	return render.Instruction{
		Domain:  provider.DomainHostCommand,
		Literal: literal,
	}
}

func TestHostHighRiskPatterns(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})

	tests := []struct {
		name    string
		literal string
		rule    string
	}{
		{"recursive root delete", "rm -rf /", "host.recursive_root_delete"},
		{"recursive home delete", "rm -rf ~", "host.recursive_root_delete"},
		{"recursive top-level delete", "rm -fr /usr", "host.recursive_root_delete"},
		{"glob root delete", "rm -rf /*", "host.recursive_root_delete"},
		{"sudo", "sudo cat /etc/shadow", "host.privilege_escalation"},
		{"dd to device", "dd if=/dev/zero of=/dev/sda", "host.raw_device_write"},
		{"redirect to device", "echo x > /dev/sda", "host.raw_device_write"},
		{"mkfs", "mkfs.ext4 /dev/sdb1", "host.raw_device_write"},
		{"fork bomb", ":(){ :|:& };:", "host.fork_bomb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(hostInstruction(tt.literal), TierConstrained)
			if v.Decision != Deny {
				t.Fatalf("decision = %s, want deny", v.Decision)
			}
			if v.Rule != tt.rule {
				t.Errorf("rule = %q, want %q", v.Rule, tt.rule)
			}
			if v.Reason == "" {
				t.Error("deny verdict must carry a reason")
			}
		})
	}
}

func TestHostHighRiskRequiresConfirmationUnderPermissive(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})
	v := c.Classify(hostInstruction("rm -rf /"), TierPermissive)
	if v.Decision != RequiresConfirmation {
		t.Errorf("permissive tier should flag high-risk as requires_confirmation, got %s", v.Decision)
	}
	if v.Reason == "" {
		t.Error("reason must be set when decision != allow")
	}
}

func TestHostReadOnlyDeniesMutation(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})

	for _, literal := range []string{
		"rm notes.txt",
		"mv a.txt b.txt",
		"touch /tmp/flag",
		"echo hi > out.txt",
		"chmod 600 file",
	} {
		v := c.Classify(hostInstruction(literal), TierReadOnly)
		if v.Decision != Deny {
			t.Errorf("readonly should deny %q, got %s", literal, v.Decision)
		}
	}

	v := c.Classify(hostInstruction("ls -la"), TierReadOnly)
	if v.Decision != Allow {
		t.Errorf("readonly should allow a plain read, got %s: %s", v.Decision, v.Reason)
	}
}

func TestHostConstrainedAllowsMutation(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})
	v := c.Classify(hostInstruction("rm notes.txt"), TierConstrained)
	if v.Decision != Allow {
		t.Errorf("constrained should allow routine mutation, got %s: %s", v.Decision, v.Reason)
	}
}

func TestHostStrictWhitelist(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})

	v := c.Classify(hostInstruction("grep -r TODO src"), TierStrict)
	if v.Decision != Allow {
		t.Errorf("whitelisted executable should be allowed, got %s: %s", v.Decision, v.Reason)
	}

	v = c.Classify(hostInstruction("curl https://example.com"), TierStrict)
	if v.Decision != Deny {
		t.Errorf("non-whitelisted executable should be denied, got %s", v.Decision)
	}
	if !strings.Contains(v.Reason, "curl") {
		t.Errorf("reason should name the executable, got %q", v.Reason)
	}
}

func TestHostProtectedPathDowngrade(t *testing.T) {
	protected := defaultProtectedPaths()[0]
	c := NewClassifier(HostRules{}, QueryRules{})

	v := c.Classify(hostInstruction("cat "+protected+"/hosts"), TierConstrained)
	if v.Decision != RequiresConfirmation {
		t.Errorf("protected path should downgrade allow to requires_confirmation, got %s", v.Decision)
	}
	if v.Rule != "host.protected_path" {
		t.Errorf("rule = %q, want host.protected_path", v.Rule)
	}

	// Already at requires_confirmation, a protected path steps down to deny.
	v = c.Classify(hostInstruction("sudo ls "+protected), TierPermissive)
	if v.Decision != Deny {
		t.Errorf("downgrade from requires_confirmation should reach deny, got %s", v.Decision)
	}
}

func TestHostUnparseableCommand(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})

	v := c.Classify(hostInstruction("echo 'unterminated"), TierConstrained)
	if v.Decision != Deny {
		t.Errorf("unparseable command should be denied under constrained, got %s", v.Decision)
	}

	v = c.Classify(hostInstruction("echo 'unterminated"), TierPermissive)
	if v.Decision != RequiresConfirmation {
		t.Errorf("unparseable command should require confirmation under permissive, got %s", v.Decision)
	}
}

func TestHostNullRedirectIsNotDeviceWrite(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})

	tests := []struct {
		literal string
		want    Decision
	}{
		{"ls 2>/dev/null", Allow},
		{"grep -r x . >/dev/stdout", Allow},
		{"echo x > /dev/sda", Deny},
	}
	for _, tt := range tests {
		v := c.Classify(hostInstruction(tt.literal), TierConstrained)
		if v.Decision != tt.want {
			t.Errorf("%q: decision = %s, want %s", tt.literal, v.Decision, tt.want)
		}
	}
}

func TestHostHighRiskRuleSurvivesLexFailure(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})
	inst := hostInstruction(":(){ :|:& };:")

	v := c.Classify(inst, TierConstrained)
	if v.Decision != Deny || v.Rule != "host.fork_bomb" {
		t.Errorf("verdict = (%s, %s), want (Deny, host.fork_bomb)", v.Decision, v.Rule)
	}

	v = c.Classify(inst, TierPermissive)
	if v.Decision != RequiresConfirmation || v.Rule != "host.fork_bomb" {
		t.Errorf("verdict = (%s, %s), want (RequiresConfirmation, host.fork_bomb)", v.Decision, v.Rule)
	}
}

func TestHostDeterminism(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})
	inst := hostInstruction("rm -rf /tmp/scratch && ls /")

	first := c.Classify(inst, TierConstrained)
	for i := 0; i < 10; i++ {
		if got := c.Classify(inst, TierConstrained); got != first {
			t.Fatalf("verdict changed across calls: %+v vs %+v", got, first)
		}
	}
}

func TestHostTierMonotonicity(t *testing.T) {
	c := NewClassifier(HostRules{}, QueryRules{})
	tiers := []Tier{TierPermissive, TierConstrained, TierReadOnly, TierStrict}

	literals := []string{
		"ls -la",
		"cat /etc/passwd",
		"rm notes.txt",
		"rm -rf /",
		"sudo reboot",
		"grep TODO main.go",
		"echo hi > out.txt",
		"dd if=/dev/zero of=/dev/sda",
		"curl https://example.com",
		"find / -name x",
	}

	for _, literal := range literals {
		prev := Allow
		for i, tier := range tiers {
			v := c.Classify(hostInstruction(literal), tier)
			if i > 0 && v.Decision.MorePermissiveThan(prev) {
				t.Errorf("%q: tier %s is more permissive (%s) than %s (%s)",
					literal, tier, v.Decision, tiers[i-1], prev)
			}
			prev = v.Decision
		}
	}
}
