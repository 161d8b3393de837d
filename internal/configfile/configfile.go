// Package configfile reads and writes the per-project .dogcats/config.yaml.
package configfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dogcat/dogcat/internal/types"
	"github.com/dogcat/dogcat/internal/utils"
)

const ConfigFileName = "config.yaml"

// LegacyConfigFileName is read when config.yaml is missing and migrated on load.
const LegacyConfigFileName = "config.toml"

// Config is the project configuration. Keys this version does not know
// are kept in Extra and written back unchanged.
type Config struct {
	IssuePrefix       string         `yaml:"issue_prefix,omitempty"`
	VisibleNamespaces []string       `yaml:"visible_namespaces,omitempty"`
	HiddenNamespaces  []string       `yaml:"hidden_namespaces,omitempty"`
	AutoCompact       *bool          `yaml:"auto-compact,omitempty"`
	Extra             map[string]any `yaml:",inline"`
}

func DefaultConfig(prefix string) *Config {
	return &Config{IssuePrefix: prefix}
}

func ConfigPath(dogcatsDir string) string {
	return filepath.Join(dogcatsDir, ConfigFileName)
}

// Load reads the project config. A missing file returns (nil, nil).
func Load(dogcatsDir string) (*Config, error) {
	configPath := ConfigPath(dogcatsDir)

	data, err := os.ReadFile(configPath) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		legacyPath := filepath.Join(dogcatsDir, LegacyConfigFileName)
		if _, err := os.Stat(legacyPath); os.IsNotExist(err) {
			return nil, nil
		}
		cfg, err := loadLegacy(legacyPath)
		if err != nil {
			return nil, fmt.Errorf("reading legacy config: %w", err)
		}
		if err := cfg.Save(dogcatsDir); err != nil {
			return nil, fmt.Errorf("migrating config to %s: %w", ConfigFileName, err)
		}
		_ = os.Remove(legacyPath)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// loadLegacy reads a TOML config through viper's decoder and maps it onto Config.
func loadLegacy(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	// viper lowercases keys; round-trip through yaml to fill the typed fields
	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config with owner-only permissions.
func (c *Config) Save(dogcatsDir string) error {
	configPath := ConfigPath(dogcatsDir)

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(dogcatsDir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Get returns the value of key as a string, and whether it is set.
func (c *Config) Get(key string) (string, bool) {
	switch key {
	case "issue_prefix":
		return c.IssuePrefix, c.IssuePrefix != ""
	case "visible_namespaces":
		return strings.Join(c.VisibleNamespaces, ","), len(c.VisibleNamespaces) > 0
	case "hidden_namespaces":
		return strings.Join(c.HiddenNamespaces, ","), len(c.HiddenNamespaces) > 0
	case "auto-compact":
		if c.AutoCompact == nil {
			return "", false
		}
		return strconv.FormatBool(*c.AutoCompact), true
	}
	v, ok := c.Extra[key]
	if !ok {
		return "", false
	}
	return fmt.Sprint(v), true
}

// Set assigns key from its command-line form. List keys take a comma
// separated value; booleans and integers in Extra keep their type.
func (c *Config) Set(key, value string) error {
	switch key {
	case "issue_prefix":
		if value == "" || strings.ContainsAny(value, " \t") {
			return fmt.Errorf("invalid issue_prefix %q", value)
		}
		c.IssuePrefix = value
	case "visible_namespaces":
		c.VisibleNamespaces = splitList(value)
	case "hidden_namespaces":
		c.HiddenNamespaces = splitList(value)
	case "auto-compact":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("auto-compact must be true or false: %w", err)
		}
		c.AutoCompact = &b
	default:
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[key] = scalar(value)
	}
	return nil
}

// Unset removes key. It reports whether the key was set.
func (c *Config) Unset(key string) bool {
	_, was := c.Get(key)
	switch key {
	case "issue_prefix":
		c.IssuePrefix = ""
	case "visible_namespaces":
		c.VisibleNamespaces = nil
	case "hidden_namespaces":
		c.HiddenNamespaces = nil
	case "auto-compact":
		c.AutoCompact = nil
	default:
		delete(c.Extra, key)
	}
	return was
}

// RenameNamespace replaces from with to in the prefix and namespace lists.
// It reports whether anything changed.
func (c *Config) RenameNamespace(from, to string) bool {
	changed := false
	if c.IssuePrefix == from {
		c.IssuePrefix = to
		changed = true
	}
	for _, list := range []*[]string{&c.VisibleNamespaces, &c.HiddenNamespaces} {
		if i := slices.Index(*list, from); i >= 0 {
			(*list)[i] = to
			changed = true
		}
	}
	return changed
}

// IssuePrefix returns the namespace for new issues: the configured prefix,
// else the most common prefix in the log, else the project directory
// name, else the default.
func IssuePrefix(dogcatsDir string) string {
	if cfg, err := Load(dogcatsDir); err == nil && cfg != nil && cfg.IssuePrefix != "" {
		return cfg.IssuePrefix
	}
	if p := prefixFromIssues(filepath.Join(dogcatsDir, "issues.jsonl")); p != "" {
		return p
	}
	if p := prefixFromDirectory(dogcatsDir); p != "" {
		return p
	}
	return types.DefaultNamespace
}

func prefixFromIssues(path string) string {
	f, err := os.Open(path) // #nosec G304 - controlled path from config
	if err != nil {
		return ""
	}
	defer f.Close()

	counts := map[string]int{}
	var order []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec struct {
			ID        string  `json:"id"`
			Namespace *string `json:"namespace"`
		}
		if json.Unmarshal(line, &rec) != nil || rec.ID == "" {
			continue
		}
		prefix := ""
		if rec.Namespace != nil {
			prefix = *rec.Namespace
		} else {
			prefix = utils.ExtractNamespace(rec.ID)
		}
		if prefix == "" {
			continue
		}
		if counts[prefix] == 0 {
			order = append(order, prefix)
		}
		counts[prefix]++
	}

	best := ""
	for _, p := range order {
		if counts[p] > counts[best] {
			best = p
		}
	}
	return best
}

func prefixFromDirectory(dogcatsDir string) string {
	abs, err := filepath.Abs(dogcatsDir)
	if err != nil {
		return ""
	}
	name := strings.ToLower(filepath.Base(filepath.Dir(abs)))
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" && !slices.Contains(out, part) {
			out = append(out, part)
		}
	}
	return out
}

func scalar(value string) any {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return value
}
