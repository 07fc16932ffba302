package config

import (
	"fmt"
	"strings"
)

// Validate rejects configurations the engine cannot run with. Errors
// name the offending key so they surface usefully from the CLI.
func (c *Config) Validate() error {
	if c.Engine.CacheCapacity < 1 {
		return fmt.Errorf("engine.cache_capacity must be at least 1, got %d", c.Engine.CacheCapacity)
	}
	if c.Engine.RenderCacheCapacity < 0 {
		return fmt.Errorf("engine.render_cache_capacity must not be negative, got %d", c.Engine.RenderCacheCapacity)
	}
	for _, tag := range c.Engine.AllowedTags {
		if strings.EqualFold(tag, "script") {
			return fmt.Errorf("engine.allowed_tags must not include script")
		}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server.host must not be empty")
	}
	if c.Watch.DebounceMs < 0 {
		return fmt.Errorf("watch.debounce_ms must not be negative, got %d", c.Watch.DebounceMs)
	}
	for _, ext := range c.Watch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("watch.extensions entries must start with a dot, got %q", ext)
		}
	}
	return nil
}
