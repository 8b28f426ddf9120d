package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"skillforge/internal/config"
	"skillforge/internal/logging"
)

var (
	// Global flags
	configPath string
	workspace  string
	verbose    bool
	jsonOutput bool
	timeout    time.Duration

	// cfg is loaded once per invocation by the root command.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "skillforge - builds small programs from goals, one tested iteration at a time",
	Long: `skillforge turns a natural-language goal into a working skill.

Each iteration asks a language model for code, checks it against a denylist,
runs it in a child process with a hard timeout and asks for a verdict on the
output. Failures are remembered in the workspace ledger and fed back into the
next attempt.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if workspace != "" {
			loaded.Workspace.Root = workspace
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		if err := logging.Initialize(loaded.Logging.Backend()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		logging.BootDebug("Config loaded: workspace=%s provider=%s model=%s",
			cfg.Workspace.RootPath(), cfg.Reasoning.Provider, cfg.Reasoning.Model)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "forge.yaml", "Config file (missing file means defaults)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall operation timeout")

	runCmd.Flags().StringVar(&skillName, "skill", "", "Skill name (derived from the goal when empty)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Controller mode: pipeline or delegated")

	directiveCmd.AddCommand(directiveAddCmd, directiveCompleteCmd, directiveListCmd, directiveRunCmd)
	templatesCmd.AddCommand(templatesListCmd, templatesRenderCmd, templatesAssembleCmd)
	templatesRenderCmd.Flags().StringArrayVarP(&templateParams, "param", "p", nil, "Placeholder value (key=value, repeatable)")
	templatesAssembleCmd.Flags().StringArrayVarP(&templateParams, "param", "p", nil, "Placeholder value (key=value, repeatable)")
	failuresCmd.Flags().IntVarP(&failureLimit, "limit", "n", 5, "Number of failures to show")
	checkCmd.AddCommand(checkPathCmd, checkCodeCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(directiveCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(failuresCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(purgeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context bounded by --timeout and cancelled on
// SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}
