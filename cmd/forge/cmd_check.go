package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"skillforge/internal/reasoning"
	"skillforge/internal/safety"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the safety gate by hand",
}

var checkPathCmd = &cobra.Command{
	Use:   "path [path]",
	Short: "Check whether a path stays inside the workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  checkPath,
}

var checkCodeCmd = &cobra.Command{
	Use:   "code [file|-]",
	Short: "Check code against the denylist (reads stdin for -)",
	Args:  cobra.ExactArgs(1),
	RunE:  checkCode,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the reasoning backend is reachable and serves the model",
	RunE:  checkHealth,
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove ephemeral files left in the exec directory",
	RunE:  purgeExec,
}

// errRejected makes a rejected check exit non-zero after printing the reason.
var errRejected = errors.New("rejected by safety gate")

func checkPath(cmd *cobra.Command, args []string) error {
	f, err := openForge(cfg)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if safe, reason := f.gate.IsPathSafe(args[0]); !safe {
		fmt.Fprintf(w, "UNSAFE: %s\n", reason)
		return errRejected
	}
	fmt.Fprintf(w, "SAFE: %s is inside %s\n", args[0], f.gate.Root())
	return nil
}

func checkCode(cmd *cobra.Command, args []string) error {
	f, err := openForge(cfg)
	if err != nil {
		return err
	}

	var code []byte
	if args[0] == "-" {
		code, err = io.ReadAll(cmd.InOrStdin())
	} else {
		code, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read code: %w", err)
	}

	w := cmd.OutOrStdout()
	if err := f.gate.CheckCode(string(code)); err != nil {
		var v *safety.Violation
		if errors.As(err, &v) {
			fmt.Fprintf(w, "UNSAFE [%s]: %s\n", v.Category, v.Reason)
		} else {
			fmt.Fprintf(w, "UNSAFE: %v\n", err)
		}
		return errRejected
	}
	fmt.Fprintf(w, "SAFE: no denylist match (%d rules)\n", len(f.gate.Rules()))
	return nil
}

func checkHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, err := reasoning.NewClient(ctx, cfg.Reasoning)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	hc, ok := client.(reasoning.HealthChecker)
	if !ok {
		fmt.Fprintf(w, "%s client configured for %s (no health endpoint)\n", cfg.Reasoning.Provider, cfg.Reasoning.Model)
		return nil
	}
	if err := hc.Health(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s is serving %s\n", cfg.Reasoning.Provider, cfg.Reasoning.Model)
	return nil
}

func purgeExec(cmd *cobra.Command, args []string) error {
	f, err := openForge(cfg)
	if err != nil {
		return err
	}
	if err := f.withSandbox(); err != nil {
		return err
	}
	defer f.Close()

	n, err := f.sandbox.PurgeExecDir()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) from %s\n", n, f.cfg.Workspace.ExecPath())
	return nil
}
