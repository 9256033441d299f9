package sandbox

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"intentrun/internal/logging"
	"intentrun/internal/policy"
	"intentrun/internal/provider"
	"intentrun/internal/render"
)

// ConfirmFunc decides whether a gated instruction may run. It receives
// the instruction and the verdict that gated it, and returns true to
// proceed.
type ConfirmFunc func(inst render.Instruction, v policy.Verdict) bool

// AlwaysConfirm approves every gated instruction. For tests and batch
// runs that have been reviewed up front.
func AlwaysConfirm(render.Instruction, policy.Verdict) bool { return true }

// AlwaysDeny refuses every gated instruction. The default when no
// confirmer is wired, so an unattended executor cannot approve itself.
func AlwaysDeny(render.Instruction, policy.Verdict) bool { return false }

// Executor gates instructions through the classifier and runs the ones
// that pass inside resource ceilings.
type Executor struct {
	classifier *policy.Classifier
	tiers      map[provider.Domain]policy.Tier
	limits     Limits
	confirm    ConfirmFunc
	db         *sql.DB
	log        *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLimits overrides the default resource ceilings.
func WithLimits(l Limits) Option {
	return func(e *Executor) { e.limits = l }
}

// WithConfirm installs the confirmation handler for gated instructions.
func WithConfirm(f ConfirmFunc) Option {
	return func(e *Executor) { e.confirm = f }
}

// WithDB supplies the database handle structured queries run against.
func WithDB(db *sql.DB) Option {
	return func(e *Executor) { e.db = db }
}

// WithTier sets the security tier for one instruction domain.
func WithTier(d provider.Domain, t policy.Tier) Option {
	return func(e *Executor) { e.tiers[d] = t }
}

// NewExecutor creates an executor around a classifier. Domains default
// to the constrained tier; the confirmer defaults to AlwaysDeny.
func NewExecutor(classifier *policy.Classifier, opts ...Option) *Executor {
	e := &Executor{
		classifier: classifier,
		tiers: map[provider.Domain]policy.Tier{
			provider.DomainHostCommand:     policy.TierConstrained,
			provider.DomainStructuredQuery: policy.TierConstrained,
		},
		limits:  DefaultLimits(),
		confirm: AlwaysDeny,
		log:     logging.Get(logging.CategorySandbox),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tier returns the active tier for a domain.
func (e *Executor) Tier(d provider.Domain) policy.Tier {
	return e.tiers[d]
}

// Execute classifies an instruction, applies the confirmation gate, and
// runs it when permitted. The returned verdict is always populated; the
// outcome records what happened, including rejections. The error return
// is reserved for infrastructure faults, not command failure.
func (e *Executor) Execute(ctx context.Context, inst render.Instruction) (policy.Verdict, Outcome, error) {
	verdict := e.classifier.Classify(inst, e.tiers[inst.Domain])

	switch verdict.Decision {
	case policy.Deny:
		return verdict, Outcome{Status: StatusRejected, Reason: verdict.Reason}, nil
	case policy.RequiresConfirmation:
		if !e.confirm(inst, verdict) {
			return verdict, Outcome{Status: StatusRejected, Reason: "confirmation declined"}, nil
		}
	}

	var out Outcome
	var err error
	switch inst.Domain {
	case provider.DomainHostCommand:
		out, err = e.runHost(ctx, inst)
	case provider.DomainStructuredQuery:
		out, err = e.runQuery(ctx, inst)
	default:
		return verdict, Outcome{Status: StatusRejected, Reason: "unknown instruction domain"}, nil
	}

	e.log.Info("instruction executed",
		zap.String("request_id", inst.RequestID),
		zap.String("domain", string(inst.Domain)),
		zap.String("status", out.Status.String()),
		zap.Int("exit_code", out.ExitCode),
		zap.Duration("duration", out.Duration))
	return verdict, out, err
}

// runHost executes a shell command line inside the resource ceilings.
func (e *Executor) runHost(ctx context.Context, inst render.Instruction) (Outcome, error) {
	out := Outcome{ExitCode: -1}

	execCtx := ctx
	if e.limits.WallClock > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.limits.WallClock)
		defer cancel()
	}

	shell := shellInvocation()
	script := ulimitPrelude(e.limits) + inst.Literal
	cmd := exec.CommandContext(execCtx, shell[0], append(shell[1:], script)...)
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	maxOutput := e.limits.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = DefaultLimits().MaxOutputBytes
	}
	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: maxOutput}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: maxOutput}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	out.StartedAt = time.Now()
	err := cmd.Run()
	out.FinishedAt = time.Now()
	out.Duration = out.FinishedAt.Sub(out.StartedAt)

	out.Stdout = stdoutBuf.String()
	out.Stderr = stderrBuf.String()
	out.Truncated = stdoutLimited.truncated || stderrLimited.truncated
	out.Usage = processUsage(cmd)

	switch {
	case err == nil:
		out.Status = StatusSucceeded
		out.ExitCode = 0

	case execCtx.Err() == context.DeadlineExceeded:
		out.Status = StatusTimedOut
		out.Reason = fmt.Sprintf("killed after %s wall clock", e.limits.WallClock)

	case execCtx.Err() == context.Canceled:
		out.Status = StatusFailed
		out.Reason = "canceled"

	default:
		if exitErr, ok := err.(*exec.ExitError); ok {
			if sig, killed := resourceKillSignal(cmd); killed {
				out.Status = StatusResourceLimit
				out.Reason = fmt.Sprintf("killed by %s, resource ceiling exceeded", sig)
			} else {
				out.Status = StatusFailed
				out.ExitCode = exitErr.ExitCode()
			}
		} else {
			// The process never started.
			out.Status = StatusFailed
			out.Reason = err.Error()
			return out, err
		}
	}
	return out, nil
}

// runQuery executes a structured query with its bound parameters.
func (e *Executor) runQuery(ctx context.Context, inst render.Instruction) (Outcome, error) {
	out := Outcome{ExitCode: -1}
	if e.db == nil {
		out.Status = StatusFailed
		out.Reason = "no database handle configured"
		return out, fmt.Errorf("structured query without a database handle")
	}

	execCtx := ctx
	if e.limits.WallClock > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.limits.WallClock)
		defer cancel()
	}

	out.StartedAt = time.Now()
	var err error
	if isReadStatement(inst.Literal) {
		out.Stdout, out.Truncated, err = e.queryRows(execCtx, inst)
	} else {
		var res sql.Result
		res, err = e.db.ExecContext(execCtx, inst.Literal, inst.Params...)
		if err == nil {
			if n, aerr := res.RowsAffected(); aerr == nil {
				out.Stdout = fmt.Sprintf("%d row(s) affected\n", n)
			}
		}
	}
	out.FinishedAt = time.Now()
	out.Duration = out.FinishedAt.Sub(out.StartedAt)

	switch {
	case err == nil:
		out.Status = StatusSucceeded
		out.ExitCode = 0
	case execCtx.Err() == context.DeadlineExceeded:
		out.Status = StatusTimedOut
		out.Reason = fmt.Sprintf("killed after %s wall clock", e.limits.WallClock)
	default:
		out.Status = StatusFailed
		out.ExitCode = 1
		out.Stderr = err.Error()
	}
	return out, nil
}

// queryRows streams a result set into tab-separated text, respecting the
// output cap.
func (e *Executor) queryRows(ctx context.Context, inst render.Instruction) (string, bool, error) {
	rows, err := e.db.QueryContext(ctx, inst.Literal, inst.Params...)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", false, err
	}

	maxOutput := e.limits.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = DefaultLimits().MaxOutputBytes
	}
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, max: maxOutput}
	fmt.Fprintln(lw, strings.Join(cols, "\t"))

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return buf.String(), lw.truncated, err
		}
		fields := make([]string, len(cols))
		for i, v := range values {
			switch x := v.(type) {
			case nil:
				fields[i] = "NULL"
			case []byte:
				fields[i] = string(x)
			default:
				fields[i] = fmt.Sprint(x)
			}
		}
		fmt.Fprintln(lw, strings.Join(fields, "\t"))
		if lw.truncated {
			break
		}
	}
	return buf.String(), lw.truncated, rows.Err()
}

// isReadStatement mirrors the classifier's shallow keyword check so read
// statements go through Query and everything else through Exec.
func isReadStatement(literal string) bool {
	fields := strings.Fields(literal)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "select", "with", "explain", "show", "pragma":
		return true
	}
	return false
}

// limitedWriter caps total bytes written, discarding the rest.
type limitedWriter struct {
	w         *bytes.Buffer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	orig := len(p)
	remaining := lw.max - lw.written
	if remaining <= 0 {
		lw.truncated = true
		return orig, nil
	}
	if int64(len(p)) > remaining {
		lw.truncated = true
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	if err != nil {
		return n, err
	}
	return orig, nil
}
