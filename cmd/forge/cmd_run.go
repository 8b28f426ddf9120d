package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"skillforge/internal/controller"
)

var (
	skillName string
	runMode   string
)

// runCmd builds one skill from a goal
var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Build a skill for a goal",
	Long: `Runs the plan, write, test and analyze loop until the skill works or the
iteration budget is spent.

Examples:
  forge run "Calculate the factorial of a number"
  forge run --skill fib --mode delegated "Print the first 10 Fibonacci numbers"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

var directiveCmd = &cobra.Command{
	Use:   "directive",
	Short: "Manage queued goals in the ledger",
}

var directiveAddCmd = &cobra.Command{
	Use:   "add [goal]",
	Short: "Queue a goal as a pending directive",
	Args:  cobra.MinimumNArgs(1),
	RunE:  directiveAdd,
}

var directiveCompleteCmd = &cobra.Command{
	Use:   "complete [index]",
	Short: "Mark a directive completed (out-of-range indexes are ignored)",
	Args:  cobra.ExactArgs(1),
	RunE:  directiveComplete,
}

var directiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List directives",
	RunE:  directiveList,
}

var directiveRunCmd = &cobra.Command{
	Use:   "run [index]",
	Short: "Run a directive's goal and complete it on success",
	Args:  cobra.ExactArgs(1),
	RunE:  directiveRun,
}

func runGoal(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if runMode != "" {
		cfg.Controller.Mode = runMode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	f, err := openForge(cfg)
	if err != nil {
		return err
	}
	defer f.Close()

	ctrl, err := f.controller(ctx)
	if err != nil {
		return err
	}

	out, err := ctrl.Run(ctx, joinArgs(args), skillName)
	if out != nil {
		if perr := printOutcome(cmd.OutOrStdout(), out); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("skill %s failed after %d iteration(s)", out.SkillName, out.Iterations)
	}
	return nil
}

func directiveAdd(cmd *cobra.Command, args []string) error {
	f, err := openForge(cfg)
	if err != nil {
		return err
	}
	idx, err := f.ledger.AddDirective(joinArgs(args))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Directive #%d added\n", idx)
	return nil
}

func directiveComplete(cmd *cobra.Command, args []string) error {
	idx, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	f, err := openForge(cfg)
	if err != nil {
		return err
	}
	if err := f.ledger.CompleteDirective(idx); err != nil {
		return err
	}
	d, ok, err := f.ledger.Directive(idx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "No directive #%d; nothing changed\n", idx)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Directive #%d %s\n", idx, d.Status)
	return nil
}

func directiveList(cmd *cobra.Command, args []string) error {
	f, err := openForge(cfg)
	if err != nil {
		return err
	}
	doc, err := f.ledger.Read()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(w, doc.Directives)
	}
	if len(doc.Directives) == 0 {
		fmt.Fprintln(w, "No directives")
		return nil
	}
	for i, d := range doc.Directives {
		fmt.Fprintf(w, "#%-3d %-9s %s\n", i, d.Status, d.Goal)
	}
	return nil
}

func directiveRun(cmd *cobra.Command, args []string) error {
	idx, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	f, err := openForge(cfg)
	if err != nil {
		return err
	}
	defer f.Close()

	ctrl, err := f.controller(ctx)
	if err != nil {
		return err
	}
	out, err := ctrl.RunDirective(ctx, idx)
	if out != nil {
		if perr := printOutcome(cmd.OutOrStdout(), out); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("directive #%d failed", idx)
	}
	return nil
}

func printOutcome(w io.Writer, out *controller.Outcome) error {
	if jsonOutput {
		return writeJSON(w, out)
	}

	status := "FAILED"
	if out.Success {
		status = "SUCCESS"
	}
	fmt.Fprintf(w, "%s: %s (%d iteration(s), %s)\n", status, out.SkillName, out.Iterations, out.Duration.Round(time.Millisecond))
	switch {
	case out.DirectAnswer:
		fmt.Fprintf(w, "\n%s\n", out.Answer)
	case out.Success:
		if out.SkillPath != "" {
			fmt.Fprintf(w, "Skill: %s\n", out.SkillPath)
		}
		if out.Verdict != "" {
			fmt.Fprintf(w, "Verdict: %s\n", out.Verdict)
		}
	default:
		fmt.Fprintf(w, "Last error: %s\n", out.LastError)
	}
	for _, h := range out.History {
		mark := "x"
		if h.OK {
			mark = "ok"
		}
		fmt.Fprintf(w, "  %2d %-16s %-2s %s\n", h.Iteration, h.Action, mark, h.Summary)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
	if err != nil {
		return 0, fmt.Errorf("invalid directive index %q", s)
	}
	return idx, nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
