package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var renderFlags *DataFlags
var renderOut string

var renderCmd = &cobra.Command{
	Use:     "render [template]",
	Aliases: []string{"r"},
	Short:   "Render a template file",
	Long: `Render compiles a template through the full pipeline and renders it
against the given data context.

The data context comes from --data (inline JSON or @file.json) or
--data-file (JSON or YAML). Partials in the --partials directory are
registered by their path relative to that directory, without extension.

Examples:
  quill render page.html --data '{"user":{"name":"Ada"}}'
  quill render page.html --data-file context.yml --partials ./partials
  quill render page.html -d @context.json --out dist/page.html`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderFlags = AddDataFlags(renderCmd)
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Write output to file instead of stdout")
	AddFlagValidation(renderCmd, "data-file", ValidateFileExists)
}

func runRender(cmd *cobra.Command, args []string) error {
	log := newLogger()
	eng, _, err := newEngine(log)
	if err != nil {
		return err
	}

	if err := registerPartials(eng, renderFlags.PartialsDir); err != nil {
		return err
	}

	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading template %s: %w", args[0], err)
	}

	data, err := renderFlags.ParseData()
	if err != nil {
		return err
	}

	output, err := eng.Render(string(source), data)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", args[0], err)
	}

	if renderOut != "" {
		if err := os.WriteFile(renderOut, []byte(output), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", renderOut, err)
		}
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), output)
	return nil
}
