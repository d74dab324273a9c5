package config

// ToolConfig configures an individual tool: whether it is enabled, whether
// its calls are delegated to a specialized model, and the credentials and
// prompt used for delegation. Tool-specific extensions land in Settings.
type ToolConfig struct {
	// Enabled defaults to true when unset.
	Enabled *bool `yaml:"enabled"`

	// Delegate routes this tool's calls to a sub-conversation on its own
	// model instead of invoking the capability directly.
	Delegate bool `yaml:"delegate"`

	// Credentials and model for the delegated endpoint. These may point at
	// an entirely different provider than the primary conversation.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Temperature overrides the delegated model's sampling temperature.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens bounds the delegated response length (0 = provider default).
	MaxTokens int64 `yaml:"max_tokens"`

	// SystemPrompt seeds the delegated sub-conversation.
	SystemPrompt string `yaml:"system_prompt"`

	// Timeout overrides the global per-tool timeout.
	Timeout Duration `yaml:"timeout"`

	// Settings collects tool-specific extension keys (for example a
	// max_results limit for a knowledge-synthesis tool). Unrecognized keys
	// end up here and are ignored unless the tool asks for them.
	Settings map[string]any `yaml:",inline"`
}

// IsEnabled reports whether the tool may be dispatched. Unset means enabled.
func (tc ToolConfig) IsEnabled() bool {
	return tc.Enabled == nil || *tc.Enabled
}

// ShouldDelegate reports whether calls route through a delegated
// sub-conversation. Requires credentials and a model; Validate rejects
// configurations where Delegate is set without them.
func (tc ToolConfig) ShouldDelegate() bool {
	return tc.Delegate && tc.APIKey != "" && tc.Model != ""
}

// Setting returns a raw extension value by key.
func (tc ToolConfig) Setting(key string) (any, bool) {
	v, ok := tc.Settings[key]
	return v, ok
}

// SettingInt returns an integer extension value, or fallback when absent or
// not a number.
func (tc ToolConfig) SettingInt(key string, fallback int) int {
	v, ok := tc.Settings[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// SettingString returns a string extension value, or fallback when absent.
func (tc ToolConfig) SettingString(key string, fallback string) string {
	if v, ok := tc.Settings[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}
