package policy

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// HostRules configures host-command classification.
type HostRules struct {
	// Whitelist lists executables the Strict tier accepts as the leading
	// word of a command. Base names, compared case-sensitively on unix.
	Whitelist []string

	// ProtectedPaths are directory prefixes that downgrade a verdict by
	// one step when an argument touches them. Defaults to the platform
	// list from the paths_*.go files.
	ProtectedPaths []string
}

// DefaultHostRules returns the stock host rule set for this platform.
func DefaultHostRules() HostRules {
	return HostRules{
		Whitelist: []string{
			"ls", "cat", "head", "tail", "grep", "find", "wc", "stat",
			"file", "du", "df", "ps", "date", "echo", "pwd", "which", "env",
		},
		ProtectedPaths: defaultProtectedPaths(),
	}
}

// hostFacts are the lexical observations one command classification is
// built from. Computing them once keeps the per-tier decisions simple and
// provably monotonic.
type hostFacts struct {
	lexOK bool

	// heads are the base names of the leading executable of each
	// pipeline/sequence segment.
	heads []string

	highRisk       bool
	highRiskRule   string
	highRiskReason string

	mutating     bool
	mutatingRule string

	// protectedPath is the first argument under a protected prefix.
	protectedPath string
}

var (
	forkBombPattern = regexp.MustCompile(`\w*\(\)\s*\{[^}]*\|[^}]*&[^}]*\}`)
	devWritePattern = regexp.MustCompile(`>+\s*(/dev/\S*)`)
	redirectPattern = regexp.MustCompile(`>{1,2}`)

	// Pseudo-devices that are safe redirect targets.
	benignDevices = map[string]bool{
		"/dev/null":   true,
		"/dev/stdout": true,
		"/dev/stderr": true,
	}

	privilegeBinaries = map[string]bool{"sudo": true, "su": true, "doas": true, "pkexec": true}
	rawDeviceBinaries = map[string]bool{"mkfs": true, "fdisk": true, "parted": true, "shred": true}
	mutatingBinaries  = map[string]bool{
		"rm": true, "mv": true, "cp": true, "dd": true, "mkdir": true,
		"rmdir": true, "touch": true, "chmod": true, "chown": true,
		"ln": true, "tee": true, "truncate": true, "kill": true,
		"pkill": true, "install": true,
	}
)

// classifyHost applies the host-command rules for one tier.
func (c *Classifier) classifyHost(literal string, tier Tier) Verdict {
	facts := c.hostFacts(literal)

	if !facts.lexOK {
		// Conservative handling when the command cannot be lexed. A
		// high-risk pattern spotted in the raw literal still names the
		// real rule.
		rule, reason := "host.unparseable", "command could not be parsed"
		if facts.highRisk {
			rule, reason = facts.highRiskRule, facts.highRiskReason
		}
		if tier == TierPermissive {
			return confirm(tier, rule, reason+"; review before running")
		}
		return deny(tier, rule, reason)
	}

	var v Verdict
	switch tier {
	case TierStrict:
		if bad, ok := firstUnlisted(facts.heads, c.host.Whitelist); ok {
			return deny(tier, "host.whitelist", fmt.Sprintf("executable %q is not whitelisted", bad))
		}
		if facts.highRisk {
			return deny(tier, facts.highRiskRule, facts.highRiskReason)
		}
		if facts.mutating {
			return deny(tier, facts.mutatingRule, "mutating command is not allowed under the strict tier")
		}
		v = allow(tier)

	case TierReadOnly:
		if facts.highRisk {
			return deny(tier, facts.highRiskRule, facts.highRiskReason)
		}
		if facts.mutating {
			return deny(tier, facts.mutatingRule, "command writes, deletes, or mutates state")
		}
		v = allow(tier)

	case TierConstrained:
		if facts.highRisk {
			return deny(tier, facts.highRiskRule, facts.highRiskReason)
		}
		v = allow(tier)

	default: // TierPermissive
		if facts.highRisk {
			v = confirm(tier, facts.highRiskRule, facts.highRiskReason)
		} else {
			v = allow(tier)
		}
	}

	if facts.protectedPath != "" && v.Decision != Deny {
		v.Decision = v.Decision.downgrade()
		v.Rule = "host.protected_path"
		v.Reason = fmt.Sprintf("touches protected path %s", facts.protectedPath)
	}
	return v
}

// hostFacts lexes one command line and derives the rule inputs.
func (c *Classifier) hostFacts(literal string) hostFacts {
	facts := hostFacts{lexOK: true}

	if forkBombPattern.MatchString(literal) || strings.Contains(stripSpaces(literal), ":(){") {
		facts.highRisk = true
		facts.highRiskRule = "host.fork_bomb"
		facts.highRiskReason = "fork-bomb construct detected"
	}
	for _, m := range devWritePattern.FindAllStringSubmatch(literal, -1) {
		if benignDevices[m[1]] {
			continue
		}
		facts.highRisk = true
		facts.highRiskRule = "host.raw_device_write"
		facts.highRiskReason = "redirects output to a raw device"
		break
	}
	if redirectPattern.MatchString(literal) {
		facts.mutating = true
		facts.mutatingRule = "host.redirect"
	}

	for _, segment := range splitSegments(literal) {
		tokens, err := shellwords.Parse(segment)
		if err != nil {
			facts.lexOK = false
			return facts
		}
		if len(tokens) == 0 {
			continue
		}
		head := filepath.Base(tokens[0])
		facts.heads = append(facts.heads, head)

		if privilegeBinaries[head] {
			facts.highRisk = true
			facts.highRiskRule = "host.privilege_escalation"
			facts.highRiskReason = fmt.Sprintf("privilege escalation via %s", head)
		}
		if rawDeviceBinaries[head] || strings.HasPrefix(head, "mkfs.") {
			facts.highRisk = true
			facts.highRiskRule = "host.raw_device_write"
			facts.highRiskReason = fmt.Sprintf("%s writes to raw devices", head)
		}
		if head == "dd" && hasDeviceTarget(tokens[1:]) {
			facts.highRisk = true
			facts.highRiskRule = "host.raw_device_write"
			facts.highRiskReason = "dd targets a raw device"
		}
		if head == "rm" && rmIsDestructive(tokens[1:]) {
			facts.highRisk = true
			facts.highRiskRule = "host.recursive_root_delete"
			facts.highRiskReason = "recursive forced deletion of a root-level path"
		}
		if mutatingBinaries[head] {
			facts.mutating = true
			facts.mutatingRule = "host.mutating_command"
		}

		if facts.protectedPath == "" {
			facts.protectedPath = firstProtectedArg(tokens[1:], c.host.ProtectedPaths)
		}
	}
	return facts
}

// splitSegments breaks a command line at unquoted ;, &, and | so each
// pipeline or sequence element is inspected on its own.
func splitSegments(literal string) []string {
	var segments []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(literal); i++ {
		ch := literal[i]
		switch {
		case quote != 0:
			cur.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
			cur.WriteByte(ch)
		case ch == ';' || ch == '&' || ch == '|':
			if s := strings.TrimSpace(cur.String()); s != "" {
				segments = append(segments, s)
			}
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		segments = append(segments, s)
	}
	return segments
}

// rmIsDestructive reports whether an rm invocation is a recursive forced
// delete of a root-level or home-root path.
func rmIsDestructive(args []string) bool {
	var recursive, force bool
	var targets []string
	for _, a := range args {
		switch {
		case a == "--recursive":
			recursive = true
		case a == "--force":
			force = true
		case strings.HasPrefix(a, "--"):
			// other long flag
		case strings.HasPrefix(a, "-") && len(a) > 1:
			if strings.ContainsAny(a[1:], "rR") {
				recursive = true
			}
			if strings.Contains(a[1:], "f") {
				force = true
			}
		default:
			targets = append(targets, a)
		}
	}
	if !recursive || !force {
		return false
	}
	for _, t := range targets {
		if isRootLevelPath(t) {
			return true
		}
	}
	return false
}

// isRootLevelPath matches /, /*, top-level directories, and the home root.
func isRootLevelPath(p string) bool {
	if p == "~" || p == "~/" || p == "$HOME" || p == "${HOME}" {
		return true
	}
	if strings.HasSuffix(p, "/*") {
		p = strings.TrimSuffix(p, "/*")
		if p == "" {
			return true
		}
	}
	clean := filepath.Clean(p)
	if clean == "/" {
		return true
	}
	return strings.HasPrefix(clean, "/") && filepath.Dir(clean) == "/"
}

// hasDeviceTarget reports whether dd-style args write to /dev.
func hasDeviceTarget(args []string) bool {
	for _, a := range args {
		if strings.HasPrefix(a, "of=/dev/") {
			return true
		}
	}
	return false
}

// firstProtectedArg returns the first path-looking argument that falls
// under a protected prefix.
func firstProtectedArg(args, protected []string) string {
	for _, a := range args {
		if strings.HasPrefix(a, "-") || strings.Contains(a, "=") {
			continue
		}
		drive := len(a) >= 2 && a[1] == ':'
		if !strings.HasPrefix(a, "/") && !strings.HasPrefix(a, "~") && !drive {
			continue
		}
		clean := filepath.Clean(a)
		for _, prefix := range protected {
			if clean == prefix || strings.HasPrefix(clean, prefix+string(filepath.Separator)) {
				return clean
			}
		}
	}
	return ""
}

// firstUnlisted returns the first segment head not on the whitelist.
func firstUnlisted(heads, whitelist []string) (string, bool) {
	allowed := make(map[string]bool, len(whitelist))
	for _, w := range whitelist {
		allowed[w] = true
	}
	for _, h := range heads {
		if !allowed[h] {
			return h, true
		}
	}
	return "", false
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' {
			return -1
		}
		return r
	}, s)
}
