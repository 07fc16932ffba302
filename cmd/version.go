package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/quill/internal/version"
)

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.GetBuildInfo()

		if versionFormat == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "quill %s\n", info.Version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit:     %s\n", info.GitCommit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(cmd.OutOrStdout(), "  go version: %s\n", info.GoVersion)
		fmt.Fprintf(cmd.OutOrStdout(), "  platform:   %s\n", info.Platform)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().StringVarP(&versionFormat, "output", "o", "text", "Output format (text|json)")
}
