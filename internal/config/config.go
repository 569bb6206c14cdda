// Package config manages aqua's configuration through a viper
// singleton. Precedence: command-line flags (handled by the CLI) >
// AQUA_* environment variables > .aqua/config.yaml > built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AquaDir is the per-project state directory.
const AquaDir = ".aqua"

// DBFile is the database filename inside AquaDir.
const DBFile = "aqua.db"

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Walk up from CWD to find the project .aqua/config.yaml so
	// commands work from subdirectories.
	configFileSet := false
	if root, err := FindProjectRoot(); err == nil {
		configPath := filepath.Join(root, AquaDir, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			configFileSet = true
		}
	}

	// Environment variables take precedence over the config file.
	// E.g. AQUA_JSON, AQUA_DB, AQUA_DEAD_THRESHOLD.
	v.SetEnvPrefix("AQUA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("db", "")

	// Coordination timing knobs.
	v.SetDefault("dead-threshold", "300s")
	v.SetDefault("claim-timeout", "1800s")
	v.SetDefault("leader-lease", "30s")
	v.SetDefault("heartbeat-interval", "60s")
	v.SetDefault("busy-timeout", "5s")
	v.SetDefault("max-retries", 3)

	// Daemon settings.
	v.SetDefault("daemon.recovery-interval", "60s")
	v.SetDefault("daemon.log-max-size-mb", 10)
	v.SetDefault("daemon.log-max-backups", 3)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// FindProjectRoot walks up from the working directory looking for an
// .aqua directory. Returns the directory containing it.
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		if info, err := os.Stat(filepath.Join(dir, AquaDir)); err == nil && info.IsDir() {
			return dir, nil
		}
		if dir == filepath.Dir(dir) {
			return "", fmt.Errorf("no %s directory found from %s upward", AquaDir, cwd)
		}
	}
}

// DBPath resolves the database file path. An explicit db setting (flag,
// env, or config file) wins; otherwise the project root's .aqua/aqua.db
// is used, falling back to the working directory when no project has
// been initialized yet.
func DBPath() string {
	if explicit := GetString("db"); explicit != "" {
		return explicit
	}
	if root, err := FindProjectRoot(); err == nil {
		return filepath.Join(root, AquaDir, DBFile)
	}
	return filepath.Join(AquaDir, DBFile)
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a configuration value for this process (flag handling).
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns the effective configuration as a map.
func AllSettings() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}

// SetAndWrite persists one key into the project config.yaml, creating
// the file if needed, and applies it to the running process.
func SetAndWrite(key string, value any) error {
	root, err := FindProjectRoot()
	if err != nil {
		return err
	}
	configPath := filepath.Join(root, AquaDir, "config.yaml")

	settings := map[string]any{}
	if raw, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(raw, &settings); err != nil {
			return fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	}
	settings[key] = value

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configPath, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	Set(key, value)
	return nil
}
