// Package sandbox runs classified instructions under OS-level resource
// limits. Host commands execute in their own process group with CPU,
// memory, process-count, and wall-clock ceilings; structured queries
// execute against a database handle with bound parameters. Nothing runs
// without an allow verdict or an explicit confirmation.
package sandbox

import "time"

// Limits are the resource ceilings applied to one execution.
type Limits struct {
	// MaxCPUTime bounds CPU seconds consumed by the process tree.
	MaxCPUTime time.Duration

	// MaxMemoryBytes bounds the address space of the child.
	MaxMemoryBytes int64

	// MaxProcesses bounds how many processes the child may spawn.
	// Enforced on Linux only.
	MaxProcesses int

	// WallClock bounds total elapsed time before the process group is
	// killed.
	WallClock time.Duration

	// MaxOutputBytes caps captured stdout and stderr, each. Output past
	// the cap is discarded, not buffered.
	MaxOutputBytes int64
}

// DefaultLimits returns the stock ceilings for interactive use.
func DefaultLimits() Limits {
	return Limits{
		MaxCPUTime:     30 * time.Second,
		MaxMemoryBytes: 512 << 20,
		MaxProcesses:   64,
		WallClock:      60 * time.Second,
		MaxOutputBytes: 1 << 20,
	}
}

// Status is the terminal state of one execution attempt.
type Status int

const (
	// StatusRejected means the policy or the user refused execution.
	// Zero value, so an empty outcome reads as "did not run".
	StatusRejected Status = iota

	// StatusSucceeded means the instruction ran and exited zero.
	StatusSucceeded

	// StatusFailed means the instruction ran and exited non-zero, or the
	// runner itself errored.
	StatusFailed

	// StatusTimedOut means the wall-clock ceiling killed the process
	// group.
	StatusTimedOut

	// StatusResourceLimit means a CPU or memory ceiling killed the
	// process.
	StatusResourceLimit
)

func (s Status) String() string {
	switch s {
	case StatusRejected:
		return "rejected"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	case StatusResourceLimit:
		return "resource_limit"
	default:
		return "unknown"
	}
}

// Usage is the resource consumption of a finished process.
type Usage struct {
	UserTime    time.Duration
	SystemTime  time.Duration
	MaxRSSBytes int64
}

// Outcome is the full record of one execution attempt.
type Outcome struct {
	Status   Status
	ExitCode int

	Stdout string
	Stderr string

	// Truncated is set when either stream hit the output cap.
	Truncated bool

	// Reason explains a rejection, timeout, or limit kill.
	Reason string

	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration

	// Usage is nil when the platform cannot report it or the process
	// never started.
	Usage *Usage
}
