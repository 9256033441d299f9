//go:build linux

package sandbox

import (
	"fmt"
	"syscall"
)

// platformUlimits adds the Linux-only process-count ceiling.
func platformUlimits(l Limits) []string {
	if l.MaxProcesses <= 0 {
		return nil
	}
	return []string{fmt.Sprintf("ulimit -u %d", l.MaxProcesses)}
}

// maxRSSBytes converts rusage Maxrss to bytes. Linux reports kilobytes.
func maxRSSBytes(r *syscall.Rusage) int64 {
	return r.Maxrss * 1024
}
