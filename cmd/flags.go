package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// DataFlags carries the template data inputs shared by render-style
// commands.
type DataFlags struct {
	// Data is inline JSON, or @file.json to read from a file.
	Data string
	// DataFile is a JSON or YAML file with the render context.
	DataFile string
	// PartialsDir holds partial templates registered by file basename.
	PartialsDir string
}

// AddDataFlags attaches the shared data flags to a command.
func AddDataFlags(cmd *cobra.Command) *DataFlags {
	flags := &DataFlags{}
	cmd.Flags().StringVarP(&flags.Data, "data", "d", "", "Render context (JSON or @file.json)")
	cmd.Flags().StringVar(&flags.DataFile, "data-file", "", "Render context file (JSON or YAML)")
	cmd.Flags().StringVar(&flags.PartialsDir, "partials", "", "Directory of partial templates, registered by basename")
	return flags
}

// ParseData resolves the render context from the flag combination.
func (f *DataFlags) ParseData() (map[string]interface{}, error) {
	if f.Data != "" && f.DataFile != "" {
		return nil, fmt.Errorf("cannot specify both --data and --data-file")
	}

	if f.DataFile != "" {
		return parseDataFile(f.DataFile)
	}

	if strings.HasPrefix(f.Data, "@") {
		return parseDataFile(strings.TrimPrefix(f.Data, "@"))
	}

	if f.Data != "" {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(f.Data), &data); err != nil {
			return nil, fmt.Errorf("invalid JSON in --data: %w", err)
		}
		return data, nil
	}

	return make(map[string]interface{}), nil
}

func parseDataFile(filename string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file %s: %w", filename, err)
	}

	var data map[string]interface{}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", filename, err)
		}
	default:
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %w", filename, err)
		}
	}
	return data, nil
}

// AddFlagValidation wraps a flag value so bad input fails at parse time
// instead of deep inside the command.
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	originalSet := flag.Value.Set
	flag.Value = &validatingValue{
		Value:       flag.Value,
		validator:   validator,
		originalSet: originalSet,
	}
}

type validatingValue struct {
	pflag.Value
	validator   func(string) error
	originalSet func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.originalSet(val)
}

// ValidatePort checks a port flag value.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateFileExists checks an optional file flag value.
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}
	return nil
}
