// Package config holds the viper configuration singleton.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the configuration singleton. Call once at startup.
//
// Precedence: IDSE_* environment variables > workspace .idse/config.yaml >
// ~/.config/idse/config.yaml > defaults.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	// Walk up from CWD so commands work from subdirectories.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".idse", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "idse", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// IDSE_REMOTE_ANCHOR maps to "remote.anchor", and so on.
	v.SetEnvPrefix("IDSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("json", false)
	v.SetDefault("actor", "")
	v.SetDefault("db", "")

	v.SetDefault("storage_backend", "sqlite")
	v.SetDefault("sync_backend", "none")

	v.SetDefault("remote.anchor", "")
	v.SetDefault("remote.endpoint", "")
	v.SetDefault("remote.credentials_dir", "")
	v.SetDefault("remote.schema_map", "")
	v.SetDefault("remote.concurrency", 4)

	v.SetDefault("promotion.temporal_stability_days", 7.0)
	v.SetDefault("promotion.duplicate_similarity_threshold", 0.98)

	// validation.required_sections.<stage> overrides the built-in
	// per-stage section lists.
	v.SetDefault("validation.required_sections", map[string][]string{})

	v.SetDefault("lock_timeout", "30s")
}

func ensure() *viper.Viper {
	if v == nil {
		_ = Initialize()
	}
	return v
}

// GetString returns a string config value.
func GetString(key string) string {
	return ensure().GetString(key)
}

// GetBool returns a boolean config value.
func GetBool(key string) bool {
	return ensure().GetBool(key)
}

// GetInt returns an integer config value.
func GetInt(key string) int {
	return ensure().GetInt(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	return ensure().GetFloat64(key)
}

// GetStringMapStringSlice returns a map-of-string-lists config value.
func GetStringMapStringSlice(key string) map[string][]string {
	return ensure().GetStringMapStringSlice(key)
}

// Set overrides a config value at runtime (flag binding, tests).
func Set(key string, value any) {
	ensure().Set(key, value)
}
