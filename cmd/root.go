// Package cmd provides the command-line interface for quill with
// configuration management supporting multiple configuration sources.
//
// Configuration sources, highest priority first:
//  1. Command-line flags (--config, --port, ...)
//  2. QUILL_CONFIG_FILE environment variable - custom config file path
//  3. Individual environment variables (QUILL_SERVER_PORT, ...)
//  4. Configuration file (.quill.yml)
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "A secure HTML template compiler",
	Long: `Quill compiles mustache-style templates into cached render programs
with contextual HTML escaping and compile-time security validation.

Quick Start:
  quill render page.html --data '{"name":"World"}'
  quill validate page.html
  quill serve ./templates

Templates are validated before compilation: script elements, inline
event handlers and unsafe URL schemes are rejected at compile time.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .quill.yml, can also use QUILL_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes the configuration system.
//
// Loading priority, highest to lowest: the --config flag, the
// QUILL_CONFIG_FILE environment variable, then .quill.yml in the current
// directory. Environment variables with the QUILL_ prefix override file
// values (QUILL_SERVER_PORT, QUILL_ENGINE_STRICT_MODE, ...).
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("QUILL_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".quill")
	}

	viper.SetEnvPrefix("QUILL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Missing or malformed config files degrade to defaults
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
