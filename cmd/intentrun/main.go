package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"intentrun/internal/audit"
	"intentrun/internal/config"
	"intentrun/internal/logging"
	"intentrun/internal/policy"
	"intentrun/internal/provider"
	"intentrun/internal/render"
	"intentrun/internal/resolve"
	"intentrun/internal/sandbox"
)

var (
	// Global flags
	configPath string
	tierName   string
	domainHint string
	verbose    bool
	assumeYes  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "intentrun",
	Short: "intentrun - verb-to-instruction execution pipeline",
	Long: `intentrun resolves a verb against registered capability providers,
renders an executable instruction from the provider's template, classifies
it against a tiered security policy, and runs it inside OS-level resource
limits. Every attempt is recorded in an append-only audit log.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// runCmd resolves, renders, classifies, and executes one verb.
var runCmd = &cobra.Command{
	Use:   "run [verb] [name=value ...]",
	Short: "Execute a verb through the full pipeline",
	Long: `Resolves the verb against the provider registry (fuzzy matching
included), renders the provider's template with the given arguments,
classifies the result under the active security tier, and executes it
when the policy allows.

Examples:
  intentrun run list path=/tmp
  intentrun run search path=. pattern='*.go'
  intentrun run find-user name=ada`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerb,
}

// checkCmd classifies without executing.
var checkCmd = &cobra.Command{
	Use:   "check [verb] [name=value ...]",
	Short: "Render and classify a verb without executing it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  checkVerb,
}

// providersCmd lists registered providers and verbs.
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered capability providers and their verbs",
	RunE:  listProviders,
}

// historyCmd shows recent audit entries.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent execution attempts from the audit log",
	RunE:  showHistory,
}

var historyLimit int

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "intentrun.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVar(&tierName, "tier", "", "security tier override (permissive, constrained, readonly, strict)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "approve confirmation prompts without asking")
	rootCmd.PersistentFlags().StringVar(&domainHint, "domain", "", "expected instruction domain (host_command, structured_query)")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(historyCmd)
}

// pipeline bundles the wired components for one invocation.
type pipeline struct {
	cfg      *config.Config
	registry *provider.Registry
	resolver *resolve.Resolver
	executor *sandbox.Executor
	recorder *audit.Recorder
	db       *sql.DB

	// prompt is set for interactive invocations only.
	prompt *prompter
}

func newPipeline(interactive bool) (*pipeline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if tierName != "" {
		cfg.Tiers.HostCommand = tierName
		cfg.Tiers.StructuredQuery = tierName
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	registry := provider.NewRegistry()
	if err := registerBuiltins(registry); err != nil {
		return nil, err
	}

	db, err := openQueryDB(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	recorder, err := audit.NewRecorder(cfg.Audit.Dir)
	if err != nil {
		db.Close()
		return nil, err
	}

	var prompt *prompter
	confirm := sandbox.ConfirmFunc(sandbox.AlwaysDeny)
	if assumeYes {
		confirm = sandbox.AlwaysConfirm
	} else if interactive {
		prompt = newPrompter(os.Stdin)
		confirm = prompt.confirm
	}

	classifier := policy.NewClassifier(policy.HostRules{}, policy.QueryRules{})
	executor := sandbox.NewExecutor(classifier,
		sandbox.WithLimits(cfg.SandboxLimits()),
		sandbox.WithConfirm(confirm),
		sandbox.WithDB(db),
		sandbox.WithTier(provider.DomainHostCommand, cfg.Tier(provider.DomainHostCommand)),
		sandbox.WithTier(provider.DomainStructuredQuery, cfg.Tier(provider.DomainStructuredQuery)))

	return &pipeline{
		cfg:      cfg,
		registry: registry,
		resolver: resolve.NewResolver(registry, cfg.ResolveOptions()),
		executor: executor,
		recorder: recorder,
		db:       db,
		prompt:   prompt,
	}, nil
}

func (p *pipeline) Close() {
	p.recorder.Close()
	p.db.Close()
}

// resolveAndRender turns a verb plus arguments into an instruction.
func (p *pipeline) resolveAndRender(verb string, args map[string]any) (render.Instruction, error) {
	res, err := p.resolver.Resolve(verb)
	if err != nil {
		if errors.Is(err, resolve.ErrNotFound) {
			return render.Instruction{}, fmt.Errorf("no capability found for verb %q", verb)
		}
		return render.Instruction{}, err
	}
	if res.Fuzzy {
		fmt.Fprintf(os.Stderr, "note: resolved %q to %s (similarity %.2f)\n",
			verb, res.Canonical, res.Similarity)
	}

	inst, err := render.Render(res.Provider, res.Canonical, args)
	if err != nil {
		return render.Instruction{}, err
	}
	if domainHint != "" {
		hint := provider.Domain(domainHint)
		if !hint.Valid() {
			return render.Instruction{}, fmt.Errorf("unknown domain %q", domainHint)
		}
		if inst.Domain != hint {
			return render.Instruction{}, fmt.Errorf(
				"verb %s renders a %s instruction, but %s was requested", res.Canonical, inst.Domain, hint)
		}
	}
	return inst, nil
}

func runVerb(cmd *cobra.Command, args []string) error {
	p, err := newPipeline(true)
	if err != nil {
		return err
	}
	defer p.Close()

	verb := args[0]
	kvArgs, err := parseArgs(args[1:])
	if err != nil {
		return err
	}

	inst, err := p.resolveAndRender(verb, kvArgs)
	if err != nil {
		return err
	}

	for {
		verdict, outcome, execErr := p.executor.Execute(cmd.Context(), inst)
		if recErr := p.recorder.Record(inst, verdict, outcome); recErr != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", recErr)
		}
		if execErr != nil {
			return execErr
		}

		printOutcome(inst, verdict, outcome)

		// The edit path re-enters at the renderer with revised arguments.
		if outcome.Status == sandbox.StatusRejected && p.prompt.takeEdit() {
			revised, err := p.prompt.editArgs(kvArgs)
			if err != nil {
				return err
			}
			kvArgs = revised
			inst, err = p.resolveAndRender(verb, kvArgs)
			if err != nil {
				return err
			}
			continue
		}
		if outcome.Status == sandbox.StatusSucceeded {
			return nil
		}
		if outcome.Status == sandbox.StatusRejected {
			return fmt.Errorf("instruction rejected: %s", outcome.Reason)
		}
		return fmt.Errorf("execution %s", outcome.Status)
	}
}

func checkVerb(cmd *cobra.Command, args []string) error {
	p, err := newPipeline(false)
	if err != nil {
		return err
	}
	defer p.Close()

	kvArgs, err := parseArgs(args[1:])
	if err != nil {
		return err
	}
	inst, err := p.resolveAndRender(args[0], kvArgs)
	if err != nil {
		return err
	}

	classifier := policy.NewClassifier(policy.HostRules{}, policy.QueryRules{})
	verdict := classifier.Classify(inst, p.cfg.Tier(inst.Domain))

	fmt.Printf("instruction: %s\n", inst.RedactedLiteral())
	fmt.Printf("domain:      %s\n", inst.Domain)
	fmt.Printf("tier:        %s\n", verdict.Tier)
	fmt.Printf("decision:    %s\n", verdict.Decision)
	if verdict.Rule != "" {
		fmt.Printf("rule:        %s\n", verdict.Rule)
	}
	if verdict.Reason != "" {
		fmt.Printf("reason:      %s\n", verdict.Reason)
	}
	return nil
}

func listProviders(cmd *cobra.Command, args []string) error {
	registry := provider.NewRegistry()
	if err := registerBuiltins(registry); err != nil {
		return err
	}

	for _, name := range registry.Names() {
		p := registry.Get(name)
		if p == nil {
			continue
		}
		fmt.Printf("%s (priority %d)\n", p.Name, p.Priority)
		for _, verb := range p.Verbs {
			tpl, _ := p.Template(verb)
			fmt.Printf("  %-12s %s: %s\n", verb, tpl.Domain, tpl.Text)
		}
		for alias, target := range p.Aliases {
			fmt.Printf("  %-12s alias for %s\n", alias, target)
		}
	}
	return nil
}

func showHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	recorder, err := audit.NewRecorder(cfg.Audit.Dir)
	if err != nil {
		return err
	}
	defer recorder.Close()

	entries, err := recorder.Recent(historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no recorded attempts")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-8s %-22s %-10s %-21s %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Provider, e.Verb, e.Decision, e.Status, e.Literal)
	}
	return nil
}

// prompter asks the user to approve gated instructions and remembers
// when the last answer was "edit" so the run loop can re-render.
type prompter struct {
	in            *bufio.Reader
	editRequested bool
}

func newPrompter(r io.Reader) *prompter {
	return &prompter{in: bufio.NewReader(r)}
}

// confirm approves a gated instruction. Anything but yes declines;
// "e"/"edit" declines and flags the edit path.
func (pr *prompter) confirm(inst render.Instruction, v policy.Verdict) bool {
	fmt.Printf("about to run: %s\n", inst.RedactedLiteral())
	fmt.Printf("gated by %s: %s\n", v.Rule, v.Reason)
	fmt.Print("proceed? [y/N/e(dit)] ")

	line, err := pr.in.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "e", "edit":
		pr.editRequested = true
		return false
	default:
		return false
	}
}

// takeEdit reports and clears the pending edit request. Safe on a nil
// prompter (non-interactive invocations).
func (pr *prompter) takeEdit() bool {
	if pr == nil || !pr.editRequested {
		return false
	}
	pr.editRequested = false
	return true
}

// editArgs lets the user revise argument values one at a time.
func (pr *prompter) editArgs(args map[string]any) (map[string]any, error) {
	revised := make(map[string]any, len(args))
	for name, val := range args {
		fmt.Printf("%s [%v]: ", name, val)
		line, err := pr.in.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			revised[name] = val
		} else {
			revised[name] = line
		}
	}
	return revised, nil
}

func printOutcome(inst render.Instruction, v policy.Verdict, out sandbox.Outcome) {
	switch out.Status {
	case sandbox.StatusRejected:
		fmt.Fprintf(os.Stderr, "rejected (%s): %s\n", v.Decision, out.Reason)
	case sandbox.StatusSucceeded:
		if out.Stdout != "" {
			fmt.Print(out.Stdout)
		}
		if out.Stderr != "" {
			fmt.Fprint(os.Stderr, out.Stderr)
		}
		if out.Truncated {
			fmt.Fprintln(os.Stderr, "(output truncated)")
		}
	default:
		if out.Stdout != "" {
			fmt.Print(out.Stdout)
		}
		if out.Stderr != "" {
			fmt.Fprint(os.Stderr, out.Stderr)
		}
		fmt.Fprintf(os.Stderr, "%s", out.Status)
		if out.Reason != "" {
			fmt.Fprintf(os.Stderr, ": %s", out.Reason)
		}
		if out.ExitCode > 0 {
			fmt.Fprintf(os.Stderr, " (exit %d)", out.ExitCode)
		}
		fmt.Fprintln(os.Stderr)
	}
}

// parseArgs converts name=value pairs to an argument map.
func parseArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("argument %q is not name=value", pair)
		}
		args[name] = value
	}
	return args, nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
