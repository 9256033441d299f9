//go:build !linux && !darwin && !windows

package policy

// defaultProtectedPaths is the generic unix fallback.
func defaultProtectedPaths() []string {
	return []string{
		"/etc",
		"/bin",
		"/sbin",
		"/usr",
		"/boot",
		"/dev",
	}
}
