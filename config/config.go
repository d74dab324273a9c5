package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied by Load when the file leaves fields unset.
const (
	DefaultBaseURL           = "https://api.openai.com/v1"
	DefaultModel             = "gpt-4"
	DefaultMaxTokens         = 4096
	DefaultMaxRounds         = 8
	DefaultMaxParallelTools  = 4
	DefaultRetryAttempts     = 3
	DefaultRetryBackoff      = 500 * time.Millisecond
	DefaultToolTimeout       = 30 * time.Second
	DefaultCompletionTimeout = 120 * time.Second
)

// Error reports an invalid or missing configuration value. It is fatal at
// startup for the affected component.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// Duration wraps time.Duration with YAML decoding from strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the process-wide configuration. It is immutable after Load.
type Config struct {
	// Primary model endpoint credentials.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Generation parameters for the primary conversation.
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int64   `yaml:"max_tokens"`
	SystemPrompt string  `yaml:"system_prompt"`

	// MaxRounds bounds completion/tool round-trips per turn; exceeding it
	// fails the turn instead of looping forever.
	MaxRounds int `yaml:"max_rounds"`

	// MaxParallelTools caps concurrent tool dispatch within one round.
	MaxParallelTools int `yaml:"max_parallel_tools"`

	// Retry policy for the primary completion request.
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryBackoff  Duration `yaml:"retry_backoff"`

	// Per-operation timeouts.
	CompletionTimeout Duration `yaml:"completion_timeout"`
	ToolTimeout       Duration `yaml:"tool_timeout"`

	// Tools holds the exclusion list and per-tool configurations.
	Tools ToolsConfig `yaml:"tools"`
}

// ToolsConfig groups the tool exclusion list with individual tool configs.
// Any key other than "exclude" is interpreted as a tool name.
type ToolsConfig struct {
	// Exclude lists tool names disabled regardless of their own config.
	Exclude []string `yaml:"exclude"`

	// Configs maps tool name to its configuration.
	Configs map[string]ToolConfig `yaml:",inline"`
}

// Default returns a Config with all defaults applied and no tool overrides.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(raw []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.MaxParallelTools == 0 {
		c.MaxParallelTools = DefaultMaxParallelTools
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = Duration(DefaultRetryBackoff)
	}
	if c.CompletionTimeout == 0 {
		c.CompletionTimeout = Duration(DefaultCompletionTimeout)
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = Duration(DefaultToolTimeout)
	}
}

// Validate checks the configuration for startup errors. Delegation settings
// are verified here so a misconfigured tool fails fast rather than at call
// time.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return &Error{Field: "api_key", Reason: "missing primary API key"}
	}
	for name, tc := range c.Tools.Configs {
		if !tc.IsEnabled() || !tc.Delegate {
			continue
		}
		if c.IsExcluded(name) {
			continue
		}
		if tc.Model == "" {
			return &Error{Field: "tools." + name + ".model", Reason: "delegating tool requires a model"}
		}
		if tc.APIKey == "" {
			return &Error{Field: "tools." + name + ".api_key", Reason: "delegating tool requires an API key"}
		}
	}
	return nil
}

// IsExcluded reports whether the tool name is on the exclusion list.
func (c *Config) IsExcluded(name string) bool {
	for _, excluded := range c.Tools.Exclude {
		if excluded == name {
			return true
		}
	}
	return false
}

// ToolConfigFor resolves the effective configuration for a tool. Unconfigured
// tools get the zero ToolConfig (enabled, not delegated); excluded tools are
// returned disabled.
func (c *Config) ToolConfigFor(name string) ToolConfig {
	tc := c.Tools.Configs[name]
	if c.IsExcluded(name) {
		disabled := false
		tc.Enabled = &disabled
	}
	if tc.Timeout == 0 {
		tc.Timeout = c.ToolTimeout
	}
	return tc
}

// DelegatingTools returns the names of enabled tools configured for
// delegation, in no particular order.
func (c *Config) DelegatingTools() []string {
	var names []string
	for name, tc := range c.Tools.Configs {
		if tc.IsEnabled() && tc.Delegate && !c.IsExcluded(name) {
			names = append(names, name)
		}
	}
	return names
}
