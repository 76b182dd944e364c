// Package config loads and validates stagehand configuration from YAML,
// with environment overrides for secrets and paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"stagehand/internal/quality"
)

// Config is the top-level configuration.
type Config struct {
	Name string `yaml:"name"`

	Generation GenerationConfig `yaml:"generation"`
	Store      StoreConfig      `yaml:"store"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Resilience ResilienceConfig `yaml:"resilience"`

	Gates     []quality.Gate              `yaml:"gates"`
	Manifests map[string]quality.Manifest `yaml:"manifests"`

	Logging LoggingConfig `yaml:"logging"`
}

// GenerationConfig selects the model provider.
type GenerationConfig struct {
	Provider        string `yaml:"provider"`
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	Timeout         string `yaml:"timeout"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

// StoreConfig locates the local database.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// WorkflowConfig shapes the stage pipeline.
type WorkflowConfig struct {
	Stages          []string        `yaml:"stages"`
	MustSucceed     []string        `yaml:"must_succeed"`
	Handoff         HandoffConfig   `yaml:"handoff"`
	EventBuffer     int             `yaml:"event_buffer"`
}

// HandoffConfig tunes handoff validation.
type HandoffConfig struct {
	MinScore float64 `yaml:"min_score"`
	TTL      string  `yaml:"ttl"`
}

// ResilienceConfig tunes retries and breakers.
type ResilienceConfig struct {
	MaxRetries       int    `yaml:"max_retries"`
	BaseDelay        string `yaml:"base_delay"`
	MaxDelay         string `yaml:"max_delay"`
	FailureThreshold int    `yaml:"failure_threshold"`
	OpenTimeout      string `yaml:"open_timeout"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "stagehand",
		Generation: GenerationConfig{
			Provider:        "gemini",
			Model:           "gemini-2.5-flash",
			Timeout:         "2m",
			MaxOutputTokens: 8192,
		},
		Store: StoreConfig{
			DatabasePath: ".stagehand/stagehand.db",
		},
		Workflow: WorkflowConfig{
			Stages: []string{"research", "generate", "review", "document"},
			Handoff: HandoffConfig{
				MinScore: 0.3,
				TTL:      "10m",
			},
			EventBuffer: 64,
		},
		Resilience: ResilienceConfig{
			MaxRetries:       3,
			BaseDelay:        "500ms",
			MaxDelay:         "30s",
			FailureThreshold: 3,
			OpenTimeout:      "30s",
		},
		Gates: []quality.Gate{
			{ID: "generate-quality", MetricType: "generate", Threshold: 60, Enabled: true, Blocking: true},
			{ID: "review-quality", MetricType: "review", Threshold: 50, Enabled: true, Blocking: false},
		},
		Manifests: map[string]quality.Manifest{
			"review": {ExpectedFields: []string{"verdict", "findings"}},
		},
	}
}

// Load reads the configuration file, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Generation.APIKey = key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" && c.Generation.APIKey == "" {
		c.Generation.APIKey = key
	}
	if path := os.Getenv("STAGEHAND_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if os.Getenv("STAGEHAND_DEBUG") != "" {
		c.Logging.Debug = true
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if len(c.Workflow.Stages) == 0 {
		return fmt.Errorf("workflow.stages must not be empty")
	}
	seen := make(map[string]bool, len(c.Workflow.Stages))
	for _, stage := range c.Workflow.Stages {
		if seen[stage] {
			return fmt.Errorf("workflow.stages contains duplicate stage %q", stage)
		}
		seen[stage] = true
	}
	for _, stage := range c.Workflow.MustSucceed {
		if !seen[stage] {
			return fmt.Errorf("workflow.must_succeed names unknown stage %q", stage)
		}
	}
	if c.Workflow.Handoff.MinScore < 0 || c.Workflow.Handoff.MinScore > 1 {
		return fmt.Errorf("workflow.handoff.min_score must be in [0,1]")
	}
	for _, g := range c.Gates {
		if g.ID == "" || g.MetricType == "" {
			return fmt.Errorf("every gate needs an id and metric_type")
		}
		if g.Threshold < 0 || g.Threshold > 100 {
			return fmt.Errorf("gate %s: threshold must be in [0,100]", g.ID)
		}
	}
	if c.Resilience.MaxRetries < 0 {
		return fmt.Errorf("resilience.max_retries must not be negative")
	}
	if _, err := c.durations(); err != nil {
		return err
	}
	return nil
}

type parsedDurations struct {
	genTimeout  time.Duration
	handoffTTL  time.Duration
	baseDelay   time.Duration
	maxDelay    time.Duration
	openTimeout time.Duration
}

func (c *Config) durations() (parsedDurations, error) {
	var out parsedDurations
	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"generation.timeout", c.Generation.Timeout, &out.genTimeout},
		{"workflow.handoff.ttl", c.Workflow.Handoff.TTL, &out.handoffTTL},
		{"resilience.base_delay", c.Resilience.BaseDelay, &out.baseDelay},
		{"resilience.max_delay", c.Resilience.MaxDelay, &out.maxDelay},
		{"resilience.open_timeout", c.Resilience.OpenTimeout, &out.openTimeout},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return out, fmt.Errorf("%s: invalid duration %q", d.name, d.value)
		}
		*d.dst = parsed
	}
	return out, nil
}

// GenerationTimeout returns the parsed per-call model timeout.
func (c *Config) GenerationTimeout() time.Duration {
	d, err := c.durations()
	if err != nil || d.genTimeout <= 0 {
		return 2 * time.Minute
	}
	return d.genTimeout
}

// HandoffTTL returns the parsed pending-handoff lifetime.
func (c *Config) HandoffTTL() time.Duration {
	d, err := c.durations()
	if err != nil || d.handoffTTL <= 0 {
		return 10 * time.Minute
	}
	return d.handoffTTL
}

// RetryDelays returns the parsed backoff bounds.
func (c *Config) RetryDelays() (base, max time.Duration) {
	d, err := c.durations()
	if err != nil {
		return 500 * time.Millisecond, 30 * time.Second
	}
	base, max = d.baseDelay, d.maxDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return base, max
}

// BreakerOpenTimeout returns the parsed open-state wait.
func (c *Config) BreakerOpenTimeout() time.Duration {
	d, err := c.durations()
	if err != nil || d.openTimeout <= 0 {
		return 30 * time.Second
	}
	return d.openTimeout
}

// MustSucceedSet returns the must-succeed stages as a lookup set.
func (c *Config) MustSucceedSet() map[string]bool {
	out := make(map[string]bool, len(c.Workflow.MustSucceed))
	for _, stage := range c.Workflow.MustSucceed {
		out[stage] = true
	}
	return out
}
