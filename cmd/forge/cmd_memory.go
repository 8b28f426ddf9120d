package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"skillforge/internal/ledger"
)

var failureLimit int

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List skills recorded in the ledger",
	RunE:  listSkills,
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Show the ledger document",
	RunE:  showMemory,
}

var failuresCmd = &cobra.Command{
	Use:   "failures [skill]",
	Short: "Show recent failures for a skill",
	Long: `Shows the most recent failures recorded for a skill, oldest first.
The controller's own decision failures are recorded under __controller__.`,
	Args: cobra.ExactArgs(1),
	RunE: showFailures,
}

func listSkills(cmd *cobra.Command, args []string) error {
	f, err := openForge(cfg)
	if err != nil {
		return err
	}
	skills, err := f.ledger.ListSkills()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(w, skills)
	}
	if len(skills) == 0 {
		fmt.Fprintln(w, "No skills yet")
		return nil
	}
	for _, s := range skills {
		fmt.Fprintf(w, "%-32s %-9s %s\n", s.Name, s.Status, s.Description)
	}
	return nil
}

func showMemory(cmd *cobra.Command, args []string) error {
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
		return writeJSON(w, doc)
	}

	counts := map[ledger.SkillStatus]int{}
	for _, s := range doc.Skills {
		counts[s.Status]++
	}
	pending := 0
	for _, d := range doc.Directives {
		if d.Status == ledger.DirectivePending {
			pending++
		}
	}

	fmt.Fprintf(w, "Ledger:     %s (version %d)\n", f.ledger.Path(), doc.Version)
	fmt.Fprintf(w, "Updated:    %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Skills:     %d (%d working, %d failed, %d untested)\n", len(doc.Skills),
		counts[ledger.StatusWorking], counts[ledger.StatusFailed], counts[ledger.StatusUntested])
	fmt.Fprintf(w, "Failures:   %d retained\n", len(doc.Failures))
	fmt.Fprintf(w, "Directives: %d (%d pending)\n", len(doc.Directives), pending)
	return nil
}

func showFailures(cmd *cobra.Command, args []string) error {
	f, err := openForge(cfg)
	if err != nil {
		return err
	}
	failures, err := f.ledger.GetRelevantFailures(args[0], failureLimit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(w, failures)
	}
	if len(failures) == 0 {
		fmt.Fprintf(w, "No failures recorded for %s\n", args[0])
		return nil
	}
	for _, fr := range failures {
		fmt.Fprintf(w, "[%s] %s\n", fr.Timestamp.Format("2006-01-02 15:04:05"), fr.Error)
		if fr.CodeSnippet != "" {
			for _, line := range strings.Split(ledger.Excerpt(fr.CodeSnippet, 200), "\n") {
				fmt.Fprintf(w, "    | %s\n", line)
			}
		}
	}
	return nil
}
