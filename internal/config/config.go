// Package config provides configuration management for quill using Viper
// for flexible loading from files, environment variables and command-line
// flags.
//
// Configuration sources, highest priority first: command-line flags, QUILL_
// prefixed environment variables, and a .quill.yml file. Missing files
// degrade to defaults without failing.
package config

import (
	"github.com/spf13/viper"
)

// Config is the full quill configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Server ServerConfig `yaml:"server"`
	Watch  WatchConfig  `yaml:"watch"`
}

// EngineConfig controls the compilation pipeline and caches.
type EngineConfig struct {
	// StrictMode promotes unresolved data paths from blank output to
	// render errors.
	StrictMode bool `yaml:"strict_mode"`
	// CacheCapacity bounds the compiled-template LRU cache.
	CacheCapacity int `yaml:"cache_capacity"`
	// RenderCacheCapacity bounds the rendered-output cache; zero
	// disables output memoization entirely.
	RenderCacheCapacity int `yaml:"render_cache_capacity"`
	// RawOutput permits the {{& expr}} raw marker.
	RawOutput bool `yaml:"raw_output"`
	// AllowedTags overrides the validator's element allow-list.
	AllowedTags []string `yaml:"allowed_tags"`
	// AllowedAttributes restricts attribute names when non-empty.
	AllowedAttributes []string `yaml:"allowed_attributes"`
}

// ServerConfig controls the preview server.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	Open           bool     `yaml:"open"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WatchConfig controls template file watching in serve mode.
type WatchConfig struct {
	DebounceMs int      `yaml:"debounce_ms"`
	Extensions []string `yaml:"extensions"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			CacheCapacity:       256,
			RenderCacheCapacity: 0,
			RawOutput:           true,
		},
		Server: ServerConfig{
			Port: 8780,
			Host: "localhost",
		},
		Watch: WatchConfig{
			DebounceMs: 100,
			Extensions: []string{".quill", ".html", ".tmpl"},
		},
	}
}

// Load builds the configuration from viper's merged sources on top of
// the defaults.
func Load() (*Config, error) {
	config := DefaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}

	// Viper's Unmarshal does not reliably apply env/flag overrides for
	// bools and slices that were set after binding; re-read the ones
	// that matter explicitly.
	if viper.IsSet("engine.strict_mode") {
		config.Engine.StrictMode = viper.GetBool("engine.strict_mode")
	}
	if viper.IsSet("engine.raw_output") {
		config.Engine.RawOutput = viper.GetBool("engine.raw_output")
	}
	if viper.IsSet("engine.cache_capacity") {
		config.Engine.CacheCapacity = viper.GetInt("engine.cache_capacity")
	}
	if viper.IsSet("engine.render_cache_capacity") {
		config.Engine.RenderCacheCapacity = viper.GetInt("engine.render_cache_capacity")
	}
	if viper.IsSet("engine.allowed_tags") && len(config.Engine.AllowedTags) == 0 {
		config.Engine.AllowedTags = viper.GetStringSlice("engine.allowed_tags")
	}
	if viper.IsSet("engine.allowed_attributes") && len(config.Engine.AllowedAttributes) == 0 {
		config.Engine.AllowedAttributes = viper.GetStringSlice("engine.allowed_attributes")
	}
	if viper.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = viper.GetStringSlice("server.allowed_origins")
	}
	if viper.IsSet("watch.extensions") && len(config.Watch.Extensions) == 0 {
		config.Watch.Extensions = viper.GetStringSlice("watch.extensions")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// TagSet converts the configured tag list into the validator's set form.
// Nil means the built-in default allow-list.
func (c *Config) TagSet() map[string]bool {
	return toSet(c.Engine.AllowedTags)
}

// AttributeSet converts the configured attribute list into set form.
func (c *Config) AttributeSet() map[string]bool {
	return toSet(c.Engine.AllowedAttributes)
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}
