package knowledge

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("timeout: %v", cfg.Fetch.Timeout)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("ttl: %v", cfg.Cache.TTL)
	}
	if cfg.Scheduler.Parallelism != 1 {
		t.Errorf("parallelism: %d", cfg.Scheduler.Parallelism)
	}
	if cfg.Fetch.RelayURL != "" || cfg.Fetch.Render.Enabled {
		t.Error("optional tiers must be off by default")
	}
}

func TestLoadConfigFile(t *testing.T) {
	// WHAT: YAML durations and nested blocks decode; unset fields stay zero until New.
	// WHY: Operators tune tiers and cadence from kbase.yaml.
	path := filepath.Join(t.TempDir(), "kbase.yaml")
	os.WriteFile(path, []byte(`
fetch:
  timeout: 10s
  relay_url: https://relay.example/fetch
  render:
    enabled: true
scheduler:
  parallelism: 4
  interval: 6h
`), 0644)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Fetch.Timeout != 10*time.Second || cfg.Fetch.RelayURL != "https://relay.example/fetch" {
		t.Errorf("fetch: %+v", cfg.Fetch)
	}
	if !cfg.Fetch.Render.Enabled || cfg.Scheduler.Parallelism != 4 || cfg.Scheduler.Interval != 6*time.Hour {
		t.Errorf("decoded: %+v", cfg)
	}
	if cfg.Cache.TTL != 0 {
		t.Errorf("ttl should stay unset: %v", cfg.Cache.TTL)
	}

	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should error")
	}
}

func TestParseSources(t *testing.T) {
	// WHAT: Import files default is_active to true and keep explicit false.
	// WHY: A seed file listing sources means "use them" unless told otherwise.
	srcs, err := ParseSources([]byte(`
sources:
  - id: hours
    name: Opening hours
    content: Mon-Fri 9-17
    keywords: [hours, open]
    priority: 3
  - name: News
    source_type: webpage
    source_url: https://example.org/news
    fetch_frequency: daily
    auto_fetch: true
    is_active: false
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(srcs) != 2 {
		t.Fatalf("count: %d", len(srcs))
	}
	if !srcs[0].IsActive || srcs[0].ID != "hours" || len(srcs[0].Keywords) != 2 || srcs[0].Priority != 3 {
		t.Errorf("first: %+v", srcs[0])
	}
	if srcs[1].IsActive || !srcs[1].AutoFetch || srcs[1].FetchFrequency != FrequencyDaily {
		t.Errorf("second: %+v", srcs[1])
	}

	if _, err := ParseSources([]byte("sources: [")); err == nil {
		t.Error("malformed yaml should error")
	}
}
