//go:build !windows

package sandbox

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// setupProcessGroup puts the child in its own process group so the whole
// tree can be killed at once.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessGroup kills the process and everything it spawned.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	pid := cmd.Process.Pid
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid > 0 {
		if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
			syscall.Kill(-pgid, syscall.SIGTERM)
		}
	}

	if err := cmd.Process.Kill(); err != nil {
		if !strings.Contains(err.Error(), "process already finished") {
			return err
		}
	}
	return nil
}

// ulimitPrelude builds the shell fragment that applies resource ceilings
// inside the child before the instruction runs. ulimit lowers the soft
// limits of the shell itself, so everything it spawns inherits them.
func ulimitPrelude(l Limits) string {
	var parts []string
	if l.MaxCPUTime > 0 {
		secs := int64(l.MaxCPUTime / time.Second)
		if secs == 0 {
			secs = 1
		}
		parts = append(parts, fmt.Sprintf("ulimit -t %d", secs))
	}
	if l.MaxMemoryBytes > 0 {
		parts = append(parts, fmt.Sprintf("ulimit -v %d", l.MaxMemoryBytes/1024))
	}
	parts = append(parts, platformUlimits(l)...)
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " 2>/dev/null; ") + " 2>/dev/null; "
}

// processUsage extracts rusage from a finished command.
func processUsage(cmd *exec.Cmd) *Usage {
	if cmd.ProcessState == nil {
		return nil
	}
	rusage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage)
	if !ok || rusage == nil {
		return nil
	}
	return &Usage{
		UserTime:    time.Duration(rusage.Utime.Sec)*time.Second + time.Duration(rusage.Utime.Usec)*time.Microsecond,
		SystemTime:  time.Duration(rusage.Stime.Sec)*time.Second + time.Duration(rusage.Stime.Usec)*time.Microsecond,
		MaxRSSBytes: maxRSSBytes(rusage),
	}
}

// resourceKillSignal reports whether the child was terminated by a
// signal an rlimit ceiling delivers: SIGXCPU at the soft CPU limit, or
// SIGKILL at the hard one.
func resourceKillSignal(cmd *exec.Cmd) (string, bool) {
	if cmd.ProcessState == nil {
		return "", false
	}
	ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return "", false
	}
	sig := ws.Signal()
	if sig == syscall.SIGXCPU || sig == syscall.SIGKILL {
		return sig.String(), true
	}
	return "", false
}

// shellInvocation names the shell a host instruction runs under.
func shellInvocation() []string {
	return []string{"sh", "-c"}
}
