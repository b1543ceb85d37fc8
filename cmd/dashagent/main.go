package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	policyFlag string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dashagent",
	Short: "dashagent - edit a dashboard layout with JSON commands",
	Long: `dashagent applies JSON commands to a dashboard project: it edits the
layout document (tabs and panels), writes project files and inspects
dataset columns.

Every mutation is preceded by a backup, so any change can be rolled back.

Run without arguments to start the interactive shell.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The shell owns the terminal; log lines would corrupt it.
		if isShell(cmd) {
			logger = zap.NewNop()
			return nil
		}

		config := zap.NewProductionConfig()
		config.OutputPaths = []string{"stderr"}
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runShell,
}

// isShell reports whether cmd starts the interactive shell: the root
// command without a subcommand, or "shell".
func isShell(cmd *cobra.Command) bool {
	return !cmd.HasParent() || cmd.Name() == "shell"
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Project directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.dashagent/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&policyFlag, "policy", "", "Failure policy: stop, continue or atomic (overrides config)")

	registerCommands(rootCmd)
}

// exitError carries a process exit code without an error message; the
// command has already reported the failure.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func exitCode(code int) error {
	if code == 0 {
		return nil
	}
	return &exitError{code: code}
}

func main() {
	os.Exit(execute(context.Background()))
}

func execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}

// withApp opens the workspace for the duration of fn. The context is
// cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(appOptions{
		Workspace:  workspace,
		ConfigPath: configPath,
		Policy:     policyFlag,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}
