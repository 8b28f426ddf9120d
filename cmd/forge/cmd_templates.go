package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var templateParams []string

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect and assemble code templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered templates (embedded defaults plus <workspace>/templates)",
	RunE:  templatesList,
}

var templatesRenderCmd = &cobra.Command{
	Use:   "render [name]",
	Short: "Render one template with placeholder values",
	Args:  cobra.ExactArgs(1),
	RunE:  templatesRender,
}

var templatesAssembleCmd = &cobra.Command{
	Use:   "assemble [name...]",
	Short: "Assemble templates in order and safety-check the result",
	Long: `Renders each named template with the given parameters, concatenates them
and runs the code denylist over the artifact.

Example:
  forge templates assemble python_generator -p function_name=add -p params="a, b"`,
	Args: cobra.MinimumNArgs(1),
	RunE: templatesAssemble,
}

func templatesList(cmd *cobra.Command, args []string) error {
	f, err := openForge(cfg)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	var all []any
	for _, name := range f.registry.List() {
		t, _ := f.registry.Get(name)
		if jsonOutput {
			all = append(all, t)
			continue
		}
		fmt.Fprintf(w, "%-20s %-6s %-8s %s\n", t.Name, t.Kind, t.Language, t.Description)
		if p := t.Placeholders(); len(p) > 0 {
			fmt.Fprintf(w, "%-20s placeholders: %s\n", "", strings.Join(p, ", "))
		}
	}
	if jsonOutput {
		return writeJSON(w, all)
	}
	return nil
}

func templatesRender(cmd *cobra.Command, args []string) error {
	f, err := openForge(cfg)
	if err != nil {
		return err
	}
	t, ok := f.registry.Get(args[0])
	if !ok {
		return fmt.Errorf("template %q not found (have: %s)", args[0], strings.Join(f.registry.List(), ", "))
	}
	params, err := parseParams(templateParams)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), t.Render(params))
	return nil
}

func templatesAssemble(cmd *cobra.Command, args []string) error {
	f, err := openForge(cfg)
	if err != nil {
		return err
	}
	params, err := parseParams(templateParams)
	if err != nil {
		return err
	}
	assembly, err := f.assembler.Assemble(args, params)

	w := cmd.OutOrStdout()
	if jsonOutput {
		if werr := writeJSON(w, assembly); werr != nil {
			return werr
		}
		return err
	}
	if err != nil {
		return errors.New(assembly.Message)
	}
	fmt.Fprint(w, assembly.Code)
	fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", assembly.Message)
	return nil
}

// parseParams splits key=value pairs. Values may contain commas and further
// equals signs.
func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", p)
		}
		params[key] = value
	}
	return params, nil
}
