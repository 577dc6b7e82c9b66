package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cliengineer/cliengineer/internal/agenticloop"
	"github.com/cliengineer/cliengineer/internal/artifact"
	"github.com/cliengineer/cliengineer/internal/config"
	"github.com/cliengineer/cliengineer/internal/contextmgr"
	"github.com/cliengineer/cliengineer/internal/dashboard"
	"github.com/cliengineer/cliengineer/internal/events"
	"github.com/cliengineer/cliengineer/internal/executor"
	"github.com/cliengineer/cliengineer/internal/interpreter"
	"github.com/cliengineer/cliengineer/internal/llmmanager"
	"github.com/cliengineer/cliengineer/internal/logger"
	"github.com/cliengineer/cliengineer/internal/planner"
	"github.com/cliengineer/cliengineer/internal/provider"
	"github.com/cliengineer/cliengineer/internal/reviewer"
)

// Exit codes returned to the shell.
const (
	exitSuccess      = 0
	exitLoopFailed   = 1
	exitConfigError  = 2
	exitProviderError = 3
)

var (
	flagVerbose     bool
	flagNoDashboard bool
	flagConfigPath  string
)

var rootCmd = &cobra.Command{
	Use:   "cli_engineer",
	Short: "An autonomous coding agent driven by a configurable LLM provider",
	Long: `cli_engineer interprets a natural-language request, plans a sequence
of steps, executes them against an LLM provider, and reviews the result,
iterating until the review is satisfied or the iteration budget runs out.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "write a detailed run log to cli_engineer_<timestamp>.log")
	rootCmd.PersistentFlags().BoolVar(&flagNoDashboard, "no-dashboard", false, "disable the terminal dashboard in favor of one-line stderr output")
	rootCmd.PersistentFlags().StringVarP(&flagConfigPath, "config", "c", "", "path to cli_engineer.toml")

	rootCmd.AddCommand(
		newRunCommand("code", "Generate new code for the given prompt", true),
		newRunCommand("refactor", "Refactor existing code", false),
		newRunCommand("review", "Review existing code and report issues", false),
		newRunCommand("docs", "Generate or update documentation", false),
		newRunCommand("security", "Run a security-focused review", false),
	)
}

// commandCategory forces each subcommand's interpreter category rather
// than letting interpreter.Interpret guess one from the command word;
// "code", "docs", and "security" aren't keywords the heuristic
// recognizes and would otherwise fall through to "completion".
var commandCategory = map[string]string{
	"code":     interpreter.CategoryCreation,
	"refactor": interpreter.CategoryRefactor,
	"review":   interpreter.CategoryReview,
	"docs":     interpreter.CategoryDocumentation,
	"security": interpreter.CategoryReview,
}

func newRunCommand(use, short string, requiresArg bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [prompt]",
		Short: short,
		Args: func(cmd *cobra.Command, args []string) error {
			if requiresArg && len(args) == 0 {
				return fmt.Errorf("%s requires a prompt", use)
			}
			return cobra.MaximumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := ""
			if len(args) > 0 {
				prompt = args[0]
			}
			code := runCommand(use, prompt)
			if code != exitSuccess {
				os.Exit(code)
			}
			return nil
		},
	}
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitLoopFailed
	}
	return exitSuccess
}

// runCommand wires every control-plane component together for a single
// invocation and drives the agentic loop to completion.
func runCommand(command, prompt string) int {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	cfg.Verbose = flagVerbose
	cfg.NoDashboard = flagNoDashboard

	if flagVerbose {
		path := logger.RunLogPath(".", time.Now())
		if err := logger.Init(logger.LevelDebug, path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open run log: %v\n", err)
		} else if h := logger.NewSlogHandler(logger.Global()); h != nil {
			// Routes any SDK that logs via log/slog (provider clients) into the
			// same run log instead of directly to stderr.
			slog.SetDefault(slog.New(h))
		}
	}

	ctx := context.Background()

	bus := events.New(0)

	var stopDashboard func()
	if cfg.NoDashboard {
		stopDashboard = dashboard.StderrFallback(bus, os.Stderr)
	} else {
		d := dashboard.New(bus, os.Stdout)
		stopDashboard = d.Stop
	}
	defer stopDashboard()

	p, err := provider.FromConfig(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitProviderError
	}

	var costIn, costOut float64
	if _, pc, ok := config.EnabledProvider(cfg); ok {
		costIn, costOut = pc.CostPer1MInputTokens, pc.CostPer1MOutputTokens
	}
	llm := llmmanager.New(p, bus, costIn, costOut)
	ctxMgr := contextmgr.New(llm, bus, cfg.Context.MaxTokens, cfg.Context.CompressionThreshold)

	artifactMgr, err := artifact.New(cfg.Execution.ArtifactDir, bus)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}

	pl := planner.New(llm)
	ex := executor.New(ctxMgr, llm, artifactMgr, bus)
	rv := reviewer.New(llm)

	loop := agenticloop.New(pl, ex, rv, ctxMgr, artifactMgr, bus,
		cfg.Execution.MaxIterations, cfg.Execution.CleanupOnExit, cfg.Execution.ArtifactDir)

	input := fmt.Sprintf("%s: %s", command, prompt)
	result := loop.Run(ctx, input, commandCategory[command])

	if result.Status == agenticloop.StatusDone {
		return exitSuccess
	}
	return exitLoopFailed
}
