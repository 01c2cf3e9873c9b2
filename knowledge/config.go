// CLAUDE:SUMMARY Service configuration (fetch tiers, normalize, scheduler, cache) and YAML loaders for config and source imports.
package knowledge

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures the knowledge service.
type Config struct {
	Fetch     FetchConfig     `yaml:"fetch"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cache     CacheConfig     `yaml:"cache"`
}

// FetchConfig controls the retrieval tiers.
type FetchConfig struct {
	// Timeout bounds one source fetch across every tier. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`
	// MaxBytes caps a response body. Default: 10MB.
	MaxBytes int64 `yaml:"max_bytes"`
	// UserAgent sent by the HTTP tiers.
	UserAgent string `yaml:"user_agent"`
	// RelayURL enables the relay tier when set.
	RelayURL string `yaml:"relay_url"`
	// Render enables the headless browser tier.
	Render RenderConfig `yaml:"render"`
}

// RenderConfig controls the headless browser tier.
type RenderConfig struct {
	Enabled    bool          `yaml:"enabled"`
	RemoteURL  string        `yaml:"remote_url"`
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

// NormalizeConfig controls body normalization.
type NormalizeConfig struct {
	// KeepRawHTML stores HTML as fetched instead of converting it to markdown.
	KeepRawHTML bool `yaml:"keep_raw_html"`
}

// SchedulerConfig controls bulk fetching.
type SchedulerConfig struct {
	// Parallelism is the number of concurrent fetches in a bulk run. Default: 1.
	Parallelism int `yaml:"parallelism"`
	// Interval between automatic runs in `kbase serve`. Zero disables them.
	Interval time.Duration `yaml:"interval"`
}

// CacheConfig controls the compiled corpus cache.
type CacheConfig struct {
	// TTL of a compiled corpus. Default: 5m.
	TTL time.Duration `yaml:"ttl"`
}

func (c *Config) defaults() {
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "Mozilla/5.0 (compatible; kbase/1.0; +https://github.com/hazyhaar/kbase)"
	}
	if c.Fetch.Render.NavTimeout <= 0 {
		c.Fetch.Render.NavTimeout = 20 * time.Second
	}
	if c.Scheduler.Parallelism <= 0 {
		c.Scheduler.Parallelism = 1
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 5 * time.Minute
	}
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// LoadConfigFile reads a YAML config file. Missing fields take defaults when
// the config is passed to New.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SourcesFile is the YAML import format:
//
//	sources:
//	  - id: faq-opening-hours
//	    name: Opening hours
//	    content: ...
//	  - name: Tax agency news
//	    source_type: webpage
//	    source_url: https://example.org/news
//	    fetch_frequency: daily
//	    auto_fetch: true
//
// is_active defaults to true. Credentials cannot be imported.
type SourcesFile struct {
	Sources []yaml.Node `yaml:"sources"`
}

// LoadSourcesFile reads a YAML sources file for UpsertSources.
func LoadSourcesFile(path string) ([]*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSources(data)
}

// ParseSources decodes the SourcesFile format.
func ParseSources(data []byte) ([]*Source, error) {
	var f SourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	out := make([]*Source, len(f.Sources))
	for i := range f.Sources {
		src := &Source{IsActive: true}
		if err := f.Sources[i].Decode(src); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		out[i] = src
	}
	return out, nil
}
