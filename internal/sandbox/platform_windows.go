//go:build windows

package sandbox

import "os/exec"

// setupProcessGroup is a no-op on Windows.
func setupProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills the direct child only. Descendants are not
// tracked without a Job Object.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// ulimitPrelude returns nothing on Windows; there is no ulimit.
func ulimitPrelude(Limits) string {
	return ""
}

// processUsage is unavailable on Windows.
func processUsage(cmd *exec.Cmd) *Usage {
	return nil
}

// resourceKillSignal never fires on Windows; rlimits are not applied.
func resourceKillSignal(cmd *exec.Cmd) (string, bool) {
	return "", false
}

// shellInvocation names the shell a host instruction runs under.
func shellInvocation() []string {
	return []string{"cmd", "/c"}
}
