// Package config holds the layered runtime configuration of dcat.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/dogcat/dogcat/internal/debug"
)

// DirName is the project store directory searched for by Initialize.
const DirName = ".dogcats"

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	return InitializeFrom(cwd)
}

// InitializeFrom is Initialize with an explicit starting directory.
// Precedence: project .dogcats/config.yaml > legacy .dogcats/config.toml >
// $XDG_CONFIG_HOME/dcat/config.yaml.
func InitializeFrom(start string) error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFile, configType := locate(start)
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType(configType)
	}

	// DCAT_JSON, DCAT_ACTOR, DCAT_AUTO_COMPACT, ...
	v.SetEnvPrefix("DCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("actor", "")
	v.SetDefault("dir", "")
	v.SetDefault("issue_prefix", "")
	v.SetDefault("debug", false)
	v.SetDefault("log-file", "")
	v.SetDefault("auto-compact", true)
	v.SetDefault("visible_namespaces", []string{})
	v.SetDefault("hidden_namespaces", []string{})
	v.SetDefault("stream.poll-interval", "1s")

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("loaded config from %s", v.ConfigFileUsed())
	} else {
		debug.Logf("no config.yaml found; using defaults and environment variables")
	}
	return nil
}

func locate(start string) (path, kind string) {
	if start != "" {
		for dir := start; ; dir = filepath.Dir(dir) {
			for _, c := range []struct{ name, kind string }{
				{"config.yaml", "yaml"},
				{"config.toml", "toml"},
			} {
				p := filepath.Join(dir, DirName, c.name)
				if _, err := os.Stat(p); err == nil {
					return p, c.kind
				}
			}
			if dir == filepath.Dir(dir) {
				break
			}
		}
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		p := filepath.Join(configDir, "dcat", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, "yaml"
		}
	}
	return "", ""
}

// ResetForTesting clears the config state, allowing Initialize() to be called again.
func ResetForTesting() {
	v = nil
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetStringSlice retrieves a list value. A comma separated string, as
// set through the environment, is split.
func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	var out []string
	for _, s := range v.GetStringSlice(key) {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Set sets a configuration value
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// ConfigFileUsed returns the path to the config file that was loaded, or "".
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}
