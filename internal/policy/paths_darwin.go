//go:build darwin

package policy

// defaultProtectedPaths lists macOS system directories an instruction
// should not touch without a downgrade.
func defaultProtectedPaths() []string {
	return []string{
		"/etc",
		"/bin",
		"/sbin",
		"/usr",
		"/dev",
		"/System",
		"/Library",
		"/private",
		"/Applications",
	}
}
