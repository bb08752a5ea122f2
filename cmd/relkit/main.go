// Package main provides the relkit CLI.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"relkit/internal/analyze"
	"relkit/internal/audit"
	"relkit/internal/config"
	"relkit/internal/depgraph"
	"relkit/internal/execute"
	"relkit/internal/gitio"
	"relkit/internal/history"
	"relkit/internal/lint"
	"relkit/internal/plan"
	"relkit/internal/render"
	"relkit/internal/workspace"
)

// Version is the current relkit version.
var Version = "0.3.0"

var (
	flagRepo    string
	flagFormat  string
	flagVerbose bool

	flagPlanDiff  bool
	flagPlanFixed bool

	flagLintStrict bool

	flagReleaseDryRun      bool
	flagReleaseYes         bool
	flagReleaseSkipPublish bool

	flagHistoryLimit int
)

// exitError carries an explicit process exit code through Execute.
type exitError struct {
	code int
	msg  string
}

func (e exitError) Error() string { return e.msg }

var rootCmd = &cobra.Command{
	Use:           "relkit",
	Short:         "Release automation for npm-style workspaces",
	Long:          `relkit scans workspace manifests, analyzes conventional commits since the last release, plans version bumps with dependency cascades, lints release compliance, and executes releases: manifest edits, changelogs, tags, and npm publishes.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .relkit.yaml",
	RunE:  runInit,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the workspace packages",
	RunE:  runScan,
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the internal dependency graph",
	RunE:  runGraph,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Show pending commits per package since the last release",
	RunE:  runAnalyze,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Forecast the next release",
	Long: `Compute the release plan: direct bumps from conventional commits,
cascade bumps for dependents, and the manifest edits they imply.
Nothing is written.`,
	RunE: runPlan,
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Check release compliance",
	Long: `Run the built-in rule set over the pending commits, manifests, and
dependency graph. Exits 1 on error findings; with --strict, warnings
fail too.`,
	RunE: runLint,
}

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Execute the release plan",
	Long: `Apply the current plan: write bumped manifests and changelogs,
create the release commit and tags, publish public packages, and
record the run.`,
	RunE: runRelease,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded release runs",
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the relkit version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("relkit", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagRepo, "repo", "r", ".", "workspace root")
	rootCmd.PersistentFlags().StringVarP(&flagFormat, "format", "f", "text", "output format (text|tree|json)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")

	planCmd.Flags().BoolVar(&flagPlanDiff, "diff", false, "show manifest edit previews")
	planCmd.Flags().BoolVar(&flagPlanFixed, "fixed", false, "plan in fixed versioning mode")

	lintCmd.Flags().BoolVar(&flagLintStrict, "strict", false, "warnings fail too")

	releaseCmd.Flags().BoolVar(&flagReleaseDryRun, "dry-run", false, "log every step, touch nothing")
	releaseCmd.Flags().BoolVarP(&flagReleaseYes, "yes", "y", false, "skip the confirmation prompt")
	releaseCmd.Flags().BoolVar(&flagReleaseSkipPublish, "skip-publish", false, "apply everything except npm publish")

	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "maximum runs to show")

	rootCmd.AddCommand(initCmd, scanCmd, graphCmd, analyzeCmd, planCmd, lintCmd, releaseCmd, historyCmd, versionCmd)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return exitError{code: 2, msg: err.Error()}
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, "relkit:", msg)
		}
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an Execute error to a process exit code. Flag
// errors carry 2 through SetFlagErrorFunc; cobra reports an unknown
// subcommand as a plain error, which is a usage error too.
func exitCodeFor(err error) int {
	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if strings.HasPrefix(err.Error(), "unknown command") {
		return 2
	}
	return 1
}

// newRenderer validates --format and wraps stdout.
func newRenderer() (*render.Renderer, error) {
	format, err := render.ParseFormat(flagFormat)
	if err != nil {
		return nil, exitError{code: 2, msg: err.Error()}
	}
	return render.New(os.Stdout, format), nil
}

// loadWorkspace scans the workspace at --repo with its config.
func loadWorkspace() (*workspace.Workspace, *config.Config, error) {
	root, err := filepath.Abs(flagRepo)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, err
	}
	ws, err := workspace.Scan(root)
	if err != nil {
		return nil, nil, err
	}
	return ws, cfg, nil
}

// analyzeWorkspace runs the git history analysis for a workspace.
func analyzeWorkspace(ws *workspace.Workspace, cfg *config.Config) (*gitio.Repository, *analyze.Analysis, error) {
	repo, err := gitio.Open(ws.Root)
	if err != nil {
		return nil, nil, err
	}
	analysis, err := analyze.New(repo, ws, cfg).Run()
	if err != nil {
		return nil, nil, err
	}
	return repo, analysis, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(flagRepo)
	if err != nil {
		return err
	}
	path := filepath.Join(root, config.FileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", config.FileName)
	}
	if err := config.DefaultConfig().Save(root); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	r, err := newRenderer()
	if err != nil {
		return err
	}
	ws, _, err := loadWorkspace()
	if err != nil {
		return err
	}
	return r.Workspace(ws)
}

func runGraph(cmd *cobra.Command, args []string) error {
	r, err := newRenderer()
	if err != nil {
		return err
	}
	ws, _, err := loadWorkspace()
	if err != nil {
		return err
	}
	return r.Graph(depgraph.Build(ws))
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	r, err := newRenderer()
	if err != nil {
		return err
	}
	ws, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	_, analysis, err := analyzeWorkspace(ws, cfg)
	if err != nil {
		return err
	}
	return r.Analysis(ws.Names(), analysis)
}

// buildPlan runs the analyze+plan pipeline shared by plan and release.
func buildPlan(ws *workspace.Workspace, cfg *config.Config) (*gitio.Repository, *analyze.Analysis, *plan.Plan, error) {
	repo, analysis, err := analyzeWorkspace(ws, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	planner := plan.New(ws, depgraph.Build(ws), cfg)
	if cfg.SkipUnchanged {
		store, err := history.Open(ws.Root)
		if err != nil {
			return nil, nil, nil, err
		}
		defer store.Close()
		planner.WithFingerprints(store)
	}

	p, err := planner.Run(analysis)
	if err != nil {
		return nil, nil, nil, err
	}
	return repo, analysis, p, nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	r, err := newRenderer()
	if err != nil {
		return err
	}
	ws, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	if flagPlanFixed {
		cfg.Mode = config.ModeFixed
	}

	_, _, p, err := buildPlan(ws, cfg)
	if err != nil {
		return err
	}
	if err := r.Plan(p); err != nil {
		return err
	}

	if flagPlanDiff {
		diffs, err := p.ManifestDiffs()
		if err != nil {
			return err
		}
		return r.Diffs(diffs)
	}
	return nil
}

// lintEnvironment gathers the facts rule preconditions gate on.
func lintEnvironment(repo *gitio.Repository, ws *workspace.Workspace) lint.Environment {
	env := lint.Environment{
		WorkspaceMode: len(ws.Packages) > 1,
		CI:            os.Getenv("CI") != "",
	}
	if tags, err := repo.Tags(); err == nil {
		env.HasTags = len(tags) > 0
	}
	if clean, err := repo.IsClean(); err == nil {
		env.CleanWorktree = clean
	}
	return env
}

func runLint(cmd *cobra.Command, args []string) error {
	r, err := newRenderer()
	if err != nil {
		return err
	}
	ws, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	repo, analysis, err := analyzeWorkspace(ws, cfg)
	if err != nil {
		return err
	}

	report := lint.NewEngine().Run(&lint.Context{
		Workspace: ws,
		Graph:     depgraph.Build(ws),
		Analysis:  analysis,
		Config:    cfg,
		Env:       lintEnvironment(repo, ws),
	})
	if err := r.Lint(report); err != nil {
		return err
	}
	if report.Failed(flagLintStrict) {
		return exitError{code: 1}
	}
	return nil
}

func runRelease(cmd *cobra.Command, args []string) error {
	r, err := newRenderer()
	if err != nil {
		return err
	}
	ws, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}

	repo, _, p, err := buildPlan(ws, cfg)
	if err != nil {
		return err
	}
	if p.Empty() {
		fmt.Println("nothing to release")
		return nil
	}

	if !flagReleaseDryRun {
		clean, err := repo.IsClean()
		if err != nil {
			return err
		}
		if !clean {
			return fmt.Errorf("worktree has uncommitted changes")
		}
	}

	if err := r.Plan(p); err != nil {
		return err
	}
	if !flagReleaseYes && !flagReleaseDryRun {
		if !confirm(fmt.Sprintf("release %d package(s)?", len(p.Releases))) {
			return exitError{code: 1, msg: "aborted"}
		}
	}

	store, err := history.Open(ws.Root)
	if err != nil {
		return err
	}
	defer store.Close()

	runID := history.NewRunID()
	var log *audit.Logger
	if !flagReleaseDryRun || flagVerbose {
		log, err = audit.Open(ws.Root, runID)
		if err != nil {
			return err
		}
		defer log.Close()
	}

	exec := execute.New(ws, cfg, repo, store, log, execute.Options{
		RunID:       runID,
		DryRun:      flagReleaseDryRun,
		SkipPublish: flagReleaseSkipPublish,
	})
	res, err := exec.Run(p)
	for _, action := range res.Actions {
		fmt.Println(action)
	}
	if err != nil {
		return err
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	r, err := newRenderer()
	if err != nil {
		return err
	}
	root, err := filepath.Abs(flagRepo)
	if err != nil {
		return err
	}

	store, err := history.Open(root)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(flagHistoryLimit)
	if err != nil {
		return err
	}
	return r.History(runs)
}

// confirm prompts on stdin for a y/N answer.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
