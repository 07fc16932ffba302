package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/conneroisu/quill/internal/config"
	"github.com/conneroisu/quill/internal/engine"
	"github.com/conneroisu/quill/internal/logging"
)

func newLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(viper.GetString("log-level")),
		Format: "text",
		Output: os.Stderr,
	})
}

func newEngine(log logging.Logger) (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	return engine.New(cfg, log), cfg, nil
}

// registerPartials registers every template under dir as a global
// partial, named by its path relative to dir without the extension.
func registerPartials(eng *engine.Engine, dir string) error {
	if dir == "" {
		return nil
	}
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))

		source, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading partial %s: %w", path, err)
		}
		if err := eng.RegisterPartial(name, string(source)); err != nil {
			return fmt.Errorf("compiling partial %s: %w", name, err)
		}
		return nil
	})
}
