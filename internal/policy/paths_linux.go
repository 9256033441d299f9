//go:build linux

package policy

// defaultProtectedPaths lists Linux system directories an instruction
// should not touch without a downgrade.
func defaultProtectedPaths() []string {
	return []string{
		"/etc",
		"/bin",
		"/sbin",
		"/usr",
		"/boot",
		"/lib",
		"/lib64",
		"/dev",
		"/proc",
		"/sys",
		"/var/lib",
	}
}
