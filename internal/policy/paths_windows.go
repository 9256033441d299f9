//go:build windows

package policy

// defaultProtectedPaths lists Windows system directories an instruction
// should not touch without a downgrade.
func defaultProtectedPaths() []string {
	return []string{
		`C:\Windows`,
		`C:\Program Files`,
		`C:\Program Files (x86)`,
		`C:\ProgramData`,
	}
}
