package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	qerrors "github.com/conneroisu/quill/internal/errors"
)

var validateFormat string
var validatePartials string

var validateCmd = &cobra.Command{
	Use:     "validate [templates...]",
	Aliases: []string{"v"},
	Short:   "Validate templates without rendering",
	Long: `Validate runs each template through the lexer, parser and security
validator and reports every diagnostic found. The command exits
non-zero when any template fails.

Examples:
  quill validate page.html
  quill validate templates/*.html --output json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateFormat, "output", "o", "text", "Output format (text|json)")
	validateCmd.Flags().StringVar(&validatePartials, "partials", "", "Directory of partial templates, registered by basename")
}

func runValidate(cmd *cobra.Command, args []string) error {
	log := newLogger()
	eng, _, err := newEngine(log)
	if err != nil {
		return err
	}

	if err := registerPartials(eng, validatePartials); err != nil {
		return err
	}

	collector := qerrors.NewErrorCollector()
	checked := 0

	for _, path := range args {
		source, err := os.ReadFile(path)
		if err != nil {
			collector.Add(path, fmt.Errorf("reading template: %w", err))
			continue
		}
		checked++
		if _, err := eng.Compile(string(source)); err != nil {
			collector.Add(path, err)
		}
	}

	diagnostics := collector.Diagnostics()

	switch validateFormat {
	case "json":
		type jsonDiag struct {
			Source string `json:"source"`
			Error  string `json:"error"`
		}
		out := struct {
			Checked int        `json:"checked"`
			Errors  []jsonDiag `json:"errors"`
		}{Checked: checked, Errors: make([]jsonDiag, 0, len(diagnostics))}
		for _, d := range diagnostics {
			out.Errors = append(out.Errors, jsonDiag{Source: d.Source, Error: d.Err.Error()})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	default:
		for _, d := range diagnostics {
			fmt.Fprintln(cmd.OutOrStdout(), d.String())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d template(s) checked, %d error(s)\n", checked, len(diagnostics))
	}

	if collector.HasErrors() {
		return fmt.Errorf("validation failed for %d template(s)", len(diagnostics))
	}
	return nil
}
