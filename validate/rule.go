// Package validate discovers rule descriptors, filters them through the
// selection configuration, schedules them over content items and the graph,
// and emits a structured report. Findings print with a stable
// "[CODE] path message" prefix; the run exits nonzero only when
// error-severity findings remain.
package validate

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/google/cel-go/cel"

	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/graph"
	"github.com/zero-day-ai/packgraph/queries"
)

// Severity classifies a rule's findings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// GitStatus is a target file's state relative to the comparison branch.
type GitStatus string

const (
	StatusAdded     GitStatus = "added"
	StatusModified  GitStatus = "modified"
	StatusRenamed   GitStatus = "renamed"
	StatusDeleted   GitStatus = "deleted"
	StatusUnchanged GitStatus = "unchanged"
)

// Target is one content item under validation.
type Target struct {
	Node      *content.Node
	GitStatus GitStatus

	// ParseError, when set, marks a file that could not be parsed. Such
	// targets skip every rule and are reported as invalid content.
	ParseError string
}

// RunContext carries everything a rule may consult.
type RunContext struct {
	Store   graph.Store
	Queries *queries.Runner

	// SupportLevels maps pack id to its support level.
	SupportLevels map[string]content.SupportLevel

	// CorePacks lists the core pack ids per marketplace.
	CorePacks map[content.Marketplace][]string

	// ExecutionMode is the section the run was configured from
	// (path_based, use_git, all_files or a custom category).
	ExecutionMode string

	// FilePaths limits graph queries to the targeted files.
	FilePaths []string
}

// Finding is one failed check.
type Finding struct {
	Path    string
	Message string
}

// CheckFunc runs one rule against one target. Graph-wide rules receive the
// zero Target and are invoked once per run.
type CheckFunc func(ctx context.Context, rc *RunContext, target Target) ([]Finding, error)

// FixFunc repairs what a rule found. Returns a description per applied fix.
type FixFunc func(ctx context.Context, rc *RunContext, target Target) ([]Finding, error)

// Rule is a validation rule descriptor.
type Rule struct {
	// ErrorCode is two capital letters followed by three digits.
	ErrorCode string

	Severity    Severity
	Description string
	Rationale   string

	// ErrorMessage and FixMessage are templates expanded per finding.
	ErrorMessage string
	FixMessage   string

	// ApplicableTypes limits the rule to these content types; empty means
	// every type.
	ApplicableTypes []content.ContentType

	// ExpectedGitStatuses limits git-driven runs; empty means any status.
	ExpectedGitStatuses []GitStatus

	// UsesGraph marks rules that query the graph. They run once per
	// invocation instead of once per item.
	UsesGraph bool

	// AutoFixable marks rules implementing Fix.
	AutoFixable bool

	// ShouldRun is an optional CEL condition over `item` (the node's
	// property map), `support_level` and `execution_mode`. An empty
	// condition always runs.
	ShouldRun string

	Check CheckFunc
	Fix   FixFunc

	// program is the compiled ShouldRun condition, cached by Validate so
	// runs never recompile per target.
	program cel.Program
}

var errorCodeRe = regexp.MustCompile(`^[A-Z]{2}\d{3}$`)

// Validate checks the descriptor's contract.
func (r *Rule) Validate() error {
	if !errorCodeRe.MatchString(r.ErrorCode) {
		return fmt.Errorf("rule error code %q must match %s", r.ErrorCode, errorCodeRe)
	}
	if r.Severity != SeverityError && r.Severity != SeverityWarning {
		return fmt.Errorf("rule %s: unknown severity %q", r.ErrorCode, r.Severity)
	}
	if r.Check == nil {
		return fmt.Errorf("rule %s: no check function", r.ErrorCode)
	}
	if r.AutoFixable && r.Fix == nil {
		return fmt.Errorf("rule %s: marked fixable without a fix function", r.ErrorCode)
	}
	if r.ShouldRun != "" && r.program == nil {
		prg, err := compileCondition(r.ShouldRun)
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.ErrorCode, err)
		}
		r.program = prg
	}
	return nil
}

// condition returns the compiled ShouldRun program, compiling on first use
// for rules that bypassed registration.
func (r *Rule) condition() (cel.Program, error) {
	if r.program == nil {
		prg, err := compileCondition(r.ShouldRun)
		if err != nil {
			return nil, err
		}
		r.program = prg
	}
	return r.program, nil
}

// appliesTo reports whether the rule is applicable to the target's type and
// git status.
func (r *Rule) appliesTo(target Target) bool {
	if len(r.ApplicableTypes) > 0 {
		found := false
		for _, ct := range r.ApplicableTypes {
			if target.Node != nil && target.Node.Type == ct {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(r.ExpectedGitStatuses) > 0 && target.GitStatus != "" {
		for _, st := range r.ExpectedGitStatuses {
			if st == target.GitStatus {
				return true
			}
		}
		return false
	}
	return true
}

// Registry holds the known rules by error code.
type Registry struct {
	rules map[string]*Rule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]*Rule)}
}

// Register adds a rule, rejecting invalid descriptors and duplicates.
func (reg *Registry) Register(rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if _, exists := reg.rules[rule.ErrorCode]; exists {
		return fmt.Errorf("rule %s registered twice", rule.ErrorCode)
	}
	reg.rules[rule.ErrorCode] = rule
	return nil
}

// MustRegister panics on registration failure, for package-level rule sets.
func (reg *Registry) MustRegister(rule *Rule) {
	if err := reg.Register(rule); err != nil {
		panic(err)
	}
}

// Rule returns the rule with the given code, or nil.
func (reg *Registry) Rule(code string) *Rule {
	return reg.rules[code]
}

// Codes returns every registered error code, sorted.
func (reg *Registry) Codes() []string {
	out := make([]string, 0, len(reg.rules))
	for code := range reg.rules {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// celEnv is shared by every condition; conditions are pure expressions over
// the declared variables.
func celEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("item", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("support_level", cel.StringType),
		cel.Variable("execution_mode", cel.StringType),
	)
}

func compileCondition(expr string) (cel.Program, error) {
	env, err := celEnv()
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile condition: %w", iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("condition %q is not boolean", expr)
	}
	return env.Program(ast)
}

// evalCondition runs a compiled condition for one target.
func evalCondition(prg cel.Program, rc *RunContext, target Target) (bool, error) {
	item := map[string]any{}
	supportLevel := ""
	if target.Node != nil {
		item = target.Node.Properties()
		supportLevel = string(rc.SupportLevels[target.Node.PackID])
	}
	out, _, err := prg.Eval(map[string]any{
		"item":           item,
		"support_level":  supportLevel,
		"execution_mode": rc.ExecutionMode,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition produced %T, want bool", out.Value())
	}
	return b, nil
}
