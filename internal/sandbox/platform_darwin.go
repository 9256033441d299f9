//go:build darwin

package sandbox

import "syscall"

// platformUlimits is empty on macOS: RLIMIT_NPROC is per-user there, so
// lowering it inside the child would throttle unrelated processes.
func platformUlimits(Limits) []string {
	return nil
}

// maxRSSBytes converts rusage Maxrss to bytes. macOS reports bytes.
func maxRSSBytes(r *syscall.Rusage) int64 {
	return r.Maxrss
}
