package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// configDirEnv overrides the configuration directory.
const configDirEnv = "TALK2DATA_CONFIG_DIR"

// UserConfig represents ~/.talk2data/config.yaml.
type UserConfig struct {
	CurrentProfile string             `yaml:"current-profile" json:"current_profile"`
	Profiles       map[string]Profile `yaml:"profiles" json:"profiles"`
}

// Profile is a named set of CLI defaults.
type Profile struct {
	SchemaDir string `yaml:"schema-dir,omitempty" json:"schema_dir,omitempty"`
	User      string `yaml:"user,omitempty" json:"user,omitempty"`
	Output    string `yaml:"output,omitempty" json:"output,omitempty"`
	Model     string `yaml:"model,omitempty" json:"model,omitempty"`
	BaseURL   string `yaml:"base-url,omitempty" json:"base_url,omitempty"`
	APIKey    string `yaml:"api-key,omitempty" json:"api_key,omitempty"`
}

// ActiveProfile returns the profile named by override, or the current
// profile when override is empty. A missing current profile yields an empty
// Profile; a missing override is an error.
func (c *UserConfig) ActiveProfile(override string) (Profile, error) {
	if override != "" {
		p, ok := c.Profiles[override]
		if !ok {
			return Profile{}, fmt.Errorf("profile %q not found", override)
		}
		return p, nil
	}
	return c.Profiles[c.CurrentProfile], nil
}

// ConfigDir returns $TALK2DATA_CONFIG_DIR or ~/.talk2data.
func ConfigDir() string {
	if dir := os.Getenv(configDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".talk2data"
	}
	return filepath.Join(home, ".talk2data")
}

// ConfigPath returns the path of config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LoadUserConfig reads config.yaml. A missing file yields an empty config
// with a "default" current profile.
func LoadUserConfig() (*UserConfig, error) {
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &UserConfig{CurrentProfile: "default", Profiles: map[string]Profile{}}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg UserConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	if cfg.CurrentProfile == "" {
		cfg.CurrentProfile = "default"
	}
	return &cfg, nil
}

// SaveUserConfig writes config.yaml with owner-only permissions.
func SaveUserConfig(cfg *UserConfig) error {
	if err := os.MkdirAll(ConfigDir(), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o600)
}
