package validate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/graph"
	"github.com/zero-day-ai/packgraph/queries"
)

var tracer = otel.Tracer("packgraph/validate")

// CodeInvalidContent marks files that failed to parse.
const CodeInvalidContent = "PA100"

// Result is one reported finding.
type Result struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Path     string   `json:"path"`
	Message  string   `json:"message"`
	Fixed    bool     `json:"fixed,omitempty"`
}

// RuleError records a rule that failed to execute.
type RuleError struct {
	Code string `json:"code"`
	Err  string `json:"error"`
}

// Report groups a run's outcome.
type Report struct {
	// RunID identifies this validation run in logs and artifacts.
	RunID string `json:"run_id"`

	Errors   []Result `json:"errors"`
	Warnings []Result `json:"warnings"`

	// InvalidContent lists items that could not be validated at all,
	// typically because the underlying file failed to parse.
	InvalidContent []Result `json:"invalid_content"`

	// Exceptions lists rules that crashed or errored mid-run.
	Exceptions []RuleError `json:"exceptions"`

	// Fixed counts findings repaired by auto-fix.
	Fixed int `json:"fixed"`
}

// ExitCode is 1 when error-severity findings remain, 0 otherwise.
// Warnings, invalid content and exceptions never fail the run on their own.
func (r *Report) ExitCode() int {
	if len(r.Errors) > 0 {
		return 1
	}
	return 0
}

// Write prints the report, one finding per line.
func (r *Report) Write(w io.Writer) {
	for _, res := range r.Errors {
		fmt.Fprintf(w, "[%s] %s %s\n", res.Code, res.Path, res.Message)
	}
	for _, res := range r.Warnings {
		fmt.Fprintf(w, "warning: [%s] %s %s\n", res.Code, res.Path, res.Message)
	}
	for _, res := range r.InvalidContent {
		fmt.Fprintf(w, "invalid: [%s] %s %s\n", res.Code, res.Path, res.Message)
	}
	for _, exc := range r.Exceptions {
		fmt.Fprintf(w, "rule %s failed: %s\n", exc.Code, exc.Err)
	}
	if r.Fixed > 0 {
		fmt.Fprintf(w, "fixed %d findings\n", r.Fixed)
	}
}

// Engine schedules rules over content items and the graph.
type Engine struct {
	store     graph.Store
	registry  *Registry
	config    *Config
	corePacks map[content.Marketplace][]string
	log       *slog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithRegistry replaces the builtin rule set.
func WithRegistry(reg *Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithCorePacks sets the core pack lists consulted by the core pack
// dependency check.
func WithCorePacks(core map[content.Marketplace][]string) Option {
	return func(e *Engine) { e.corePacks = core }
}

// New creates a validation engine over an open store.
func New(store graph.Store, cfg *Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	e := &Engine{
		store:    store,
		registry: Builtin(),
		config:   cfg,
		log:      slog.Default().With("component", "validate"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOptions parameterizes one validation run.
type RunOptions struct {
	// Mode selects the configuration section.
	Mode string

	// Targets are the items to validate. Graph-wide rules additionally
	// restrict their queries to these items' paths when set.
	Targets []Target

	// Fix applies auto-fixes for fixable rules before reporting.
	Fix bool

	// IgnoredCodes holds per-item suppressed codes, keyed by source path.
	// Only codes the config marks ignorable are honored.
	IgnoredCodes map[string][]string
}

// Run executes the selected rules and returns the grouped report.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	ctx, span := tracer.Start(ctx, "validate.run",
		trace.WithAttributes(
			attribute.String("mode", opts.Mode),
			attribute.Int("targets", len(opts.Targets)),
		))
	defer span.End()

	section, err := e.config.Section(opts.Mode)
	if err != nil {
		return nil, err
	}

	rc := &RunContext{
		Store:         e.store,
		Queries:       queries.NewRunner(e.store),
		SupportLevels: map[string]content.SupportLevel{},
		CorePacks:     e.corePacks,
		ExecutionMode: opts.Mode,
	}
	for _, t := range opts.Targets {
		if t.Node != nil && t.Node.SourcePath != "" {
			rc.FilePaths = append(rc.FilePaths, t.Node.SourcePath)
		}
	}
	if err := e.loadSupportLevels(ctx, rc); err != nil {
		return nil, err
	}

	report := &Report{RunID: uuid.NewString()}
	for _, target := range opts.Targets {
		if target.ParseError != "" {
			path := ""
			if target.Node != nil {
				path = target.Node.SourcePath
			}
			report.InvalidContent = append(report.InvalidContent, Result{
				Code:     CodeInvalidContent,
				Severity: SeverityError,
				Path:     path,
				Message:  target.ParseError,
			})
		}
	}
	for _, code := range section.selected(e.registry) {
		rule := e.registry.Rule(code)
		severity := section.severityFor(rule)
		if rule.UsesGraph {
			e.runOnce(ctx, rc, rule, severity, opts, report)
			continue
		}
		for _, target := range opts.Targets {
			e.runTarget(ctx, rc, rule, severity, target, opts, report)
		}
	}
	e.sortReport(report)

	e.log.Info("validation finished",
		"run_id", report.RunID,
		"mode", opts.Mode,
		"errors", len(report.Errors),
		"warnings", len(report.Warnings),
		"exceptions", len(report.Exceptions),
		"fixed", report.Fixed)
	return report, nil
}

// runOnce executes a graph-wide rule, attributing findings to the paths the
// rule reports.
func (e *Engine) runOnce(ctx context.Context, rc *RunContext, rule *Rule, severity Severity, opts RunOptions, report *Report) {
	findings, err := e.check(ctx, rc, rule, Target{})
	if err != nil {
		report.Exceptions = append(report.Exceptions, RuleError{Code: rule.ErrorCode, Err: err.Error()})
		return
	}
	for _, f := range findings {
		e.record(rc, rule, severity, f, opts, report)
	}
}

// runTarget executes an item-scoped rule against one target.
func (e *Engine) runTarget(ctx context.Context, rc *RunContext, rule *Rule, severity Severity, target Target, opts RunOptions, report *Report) {
	if target.Node == nil || target.ParseError != "" {
		return
	}
	if !rule.appliesTo(target) {
		return
	}
	level := string(rc.SupportLevels[target.Node.PackID])
	if e.config.ignoredForSupport(level, rule.ErrorCode) {
		return
	}
	if rule.ShouldRun != "" {
		prg, err := rule.condition()
		if err != nil {
			report.Exceptions = append(report.Exceptions, RuleError{Code: rule.ErrorCode, Err: err.Error()})
			return
		}
		run, err := evalCondition(prg, rc, target)
		if err != nil {
			report.Exceptions = append(report.Exceptions, RuleError{Code: rule.ErrorCode, Err: err.Error()})
			return
		}
		if !run {
			return
		}
	}

	findings, err := e.check(ctx, rc, rule, target)
	if err != nil {
		report.Exceptions = append(report.Exceptions, RuleError{Code: rule.ErrorCode, Err: err.Error()})
		return
	}
	if len(findings) > 0 && opts.Fix && rule.AutoFixable {
		fixed, fixErr := rule.Fix(ctx, rc, target)
		if fixErr != nil {
			report.Exceptions = append(report.Exceptions, RuleError{Code: rule.ErrorCode, Err: fixErr.Error()})
		} else {
			report.Fixed += len(fixed)
			// Re-check so repaired findings drop out of the report.
			findings, err = e.check(ctx, rc, rule, target)
			if err != nil {
				report.Exceptions = append(report.Exceptions, RuleError{Code: rule.ErrorCode, Err: err.Error()})
				return
			}
		}
	}
	for _, f := range findings {
		e.record(rc, rule, severity, f, opts, report)
	}
}

// check invokes the rule's check function, converting panics to errors so a
// broken rule cannot take down the run.
func (e *Engine) check(ctx context.Context, rc *RunContext, rule *Rule, target Target) (findings []Finding, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rule panicked: %v", rec)
		}
	}()
	return rule.Check(ctx, rc, target)
}

// record files one finding into the report, honoring per-item ignores.
func (e *Engine) record(rc *RunContext, rule *Rule, severity Severity, f Finding, opts RunOptions, report *Report) {
	if codes, ok := opts.IgnoredCodes[f.Path]; ok {
		if contains(codes, rule.ErrorCode) && e.config.Ignorable(rule.ErrorCode) {
			return
		}
	}
	res := Result{
		Code:     rule.ErrorCode,
		Severity: severity,
		Path:     f.Path,
		Message:  f.Message,
	}
	if severity == SeverityError {
		report.Errors = append(report.Errors, res)
	} else {
		report.Warnings = append(report.Warnings, res)
	}
}

// loadSupportLevels reads every pack node's support level once per run.
func (e *Engine) loadSupportLevels(ctx context.Context, rc *RunContext) error {
	packs, err := e.store.Nodes(ctx, content.TypePack)
	if err != nil {
		return fmt.Errorf("load packs: %w", err)
	}
	for _, p := range packs {
		if data, ok := p.Data.(*content.PackData); ok {
			rc.SupportLevels[p.ObjectID] = data.SupportLevel
		}
	}
	return nil
}

// sortReport orders findings by code then path for stable output.
func (e *Engine) sortReport(report *Report) {
	byCodePath := func(results []Result) func(i, j int) bool {
		return func(i, j int) bool {
			if results[i].Code != results[j].Code {
				return results[i].Code < results[j].Code
			}
			return results[i].Path < results[j].Path
		}
	}
	sort.Slice(report.Errors, byCodePath(report.Errors))
	sort.Slice(report.Warnings, byCodePath(report.Warnings))
	sort.Slice(report.InvalidContent, byCodePath(report.InvalidContent))
}
