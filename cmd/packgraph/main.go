// Command packgraph builds, updates and queries the content graph of a
// security content repository.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/zero-day-ai/packgraph"
	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/deps"
	"github.com/zero-day-ai/packgraph/graph"
	"github.com/zero-day-ai/packgraph/update"
)

// Exit codes. Usage errors exit with 2 via kong.
const (
	exitOK               = 0
	exitFailure          = 1
	exitStoreUnavailable = 3
)

type cliContext struct {
	ctx    context.Context
	engine *packgraph.Engine
	log    *slog.Logger
}

type createCmd struct {
	Repo           string `help:"Content repository root." default:"." type:"path"`
	Output         string `short:"o" help:"Directory receiving the graph export." type:"path"`
	NoDependencies bool   `help:"Skip pack dependency calculation."`
}

func (c *createCmd) Run(cli *cliContext) error {
	summary, err := cli.engine.CreateGraph(cli.ctx, update.Options{
		RepoRoot:       c.Repo,
		OutputDir:      c.Output,
		NoDependencies: c.NoDependencies,
	})
	if err != nil {
		return err
	}
	cli.log.Info("graph created", "packs", len(summary.Packs), "commit", summary.Commit)
	printDiagnostics(summary, cli.log)
	return nil
}

type updateCmd struct {
	Repo           string   `help:"Content repository root." default:"." type:"path"`
	Output         string   `short:"o" help:"Directory receiving the graph export." type:"path"`
	ImportedPath   string   `help:"Directory holding a previously exported graph to start from." type:"path"`
	Packs          []string `short:"p" help:"Pack ids to refresh."`
	UseGit         bool     `short:"g" help:"Derive the packs to refresh from git."`
	NoDependencies bool     `help:"Skip pack dependency calculation."`
}

func (c *updateCmd) Run(cli *cliContext) error {
	summary, err := cli.engine.UpdateGraph(cli.ctx, update.Options{
		RepoRoot:       c.Repo,
		OutputDir:      c.Output,
		ImportPath:     c.ImportedPath,
		Packs:          c.Packs,
		UseGit:         c.UseGit,
		NoDependencies: c.NoDependencies,
	})
	if err != nil {
		return err
	}
	cli.log.Info("graph updated", "mode", summary.Mode, "packs", len(summary.Packs))
	printDiagnostics(summary, cli.log)
	return nil
}

type getRelationshipsCmd struct {
	Path         string `arg:"" help:"Source path of the content item."`
	Relationship string `short:"r" help:"Relationship type to traverse." default:"USES"`
	Depth        int    `short:"d" help:"Maximum traversal depth." default:"1"`
}

func (c *getRelationshipsCmd) Run(cli *cliContext) error {
	view, err := cli.engine.Relationships(cli.ctx, c.Path, content.RelationshipType(c.Relationship), c.Depth)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, view)
}

type getDependenciesCmd struct {
	Pack           string `arg:"" help:"Pack id to query."`
	Marketplace    string `short:"m" help:"Restrict traversal to one marketplace."`
	MandatoryOnly  bool   `help:"Report only mandatory dependencies."`
	AllLevelDeps   bool   `help:"Traverse dependencies transitively." xor:"level"`
	FirstLevelDeps bool   `help:"Report only direct dependencies." xor:"level"`
	IncludeTests   bool   `help:"Include test dependencies."`
	Output         string `short:"o" help:"File receiving the JSON result instead of stdout." type:"path"`
}

func (c *getDependenciesCmd) Run(cli *cliContext) error {
	out, err := cli.engine.Dependencies(cli.ctx, c.Pack, deps.QueryOptions{
		Marketplace:   content.Marketplace(c.Marketplace),
		MandatoryOnly: c.MandatoryOnly,
		IncludeTests:  c.IncludeTests,
	}, c.AllLevelDeps)
	if err != nil {
		return err
	}
	if c.Output != "" {
		f, err := os.Create(c.Output)
		if err != nil {
			return err
		}
		defer packgraph.CloseWithLog(f, cli.log, "dependencies output")
		return printJSON(f, out)
	}
	return printJSON(os.Stdout, out)
}

type validateCmd struct {
	Category string   `short:"c" help:"Configuration section to run." default:"all_files"`
	Paths    []string `help:"Restrict validation to these source paths."`
	Fix      bool     `help:"Apply auto-fixes where rules support them."`
}

func (c *validateCmd) Run(cli *cliContext) error {
	report, err := cli.engine.Validate(cli.ctx, c.Category, c.Paths, c.Fix)
	if err != nil {
		return err
	}
	report.Write(os.Stdout)
	if report.ExitCode() != 0 {
		return errValidationFailed
	}
	return nil
}

var errValidationFailed = errors.New("validation failed")

type graphCmd struct {
	Create           createCmd           `cmd:"" help:"Parse the repository and build the graph from scratch."`
	Update           updateCmd           `cmd:"" help:"Refresh the graph from a baseline, falling back to a full build."`
	GetRelationships getRelationshipsCmd `cmd:"" name:"get-relationships" help:"Print the nodes connected to a content item."`
	GetDependencies  getDependenciesCmd  `cmd:"" name:"get-dependencies" help:"Print a pack's dependencies."`
}

type rootCmd struct {
	Verbose          bool        `short:"v" help:"Enable debug logging."`
	ValidationConfig string      `help:"Path of the validation configuration file." type:"path"`
	Graph            graphCmd    `cmd:"" help:"Graph lifecycle and query commands."`
	Validate         validateCmd `cmd:"" help:"Run validation rules over the graph."`
}

func main() {
	_ = godotenv.Load()

	var root rootCmd
	parsed := kong.Parse(&root,
		kong.Name("packgraph"),
		kong.Description("Content graph builder for security content repositories."),
		kong.UsageOnError(),
	)

	level := slog.LevelInfo
	if root.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg := packgraph.ConfigFromEnv()
	if root.ValidationConfig != "" {
		cfg.ValidationConfig = root.ValidationConfig
	}
	engine, err := packgraph.NewEngine(cfg, packgraph.WithEngineLogger(log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if err := engine.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to close graph store", "error", err)
		}
	}()

	if err := parsed.Run(&cliContext{ctx: ctx, engine: engine, log: log}); err != nil {
		os.Exit(exitCode(err, log))
	}
	os.Exit(exitOK)
}

// exitCode maps an error to the process exit code.
func exitCode(err error, log *slog.Logger) int {
	switch {
	case errors.Is(err, errValidationFailed):
		return exitFailure
	case errors.Is(err, graph.ErrStoreUnavailable):
		log.Error("graph store unavailable", "error", err)
		return exitStoreUnavailable
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitFailure
}

func printDiagnostics(summary *update.Summary, log *slog.Logger) {
	for _, d := range summary.Diagnostics {
		log.Warn("file skipped", "path", d.Path, "error", d.Err)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
