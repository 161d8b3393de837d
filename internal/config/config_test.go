package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// isolate clears DCAT_ variables and points the user config dir at an
// empty directory for the duration of the test.
func isolate(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "DCAT_") {
			key, _, _ := strings.Cut(env, "=")
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(ResetForTesting)
}

func writeConfig(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestDefaults(t *testing.T) {
	isolate(t)
	if err := InitializeFrom(t.TempDir()); err != nil {
		t.Fatalf("InitializeFrom() returned error: %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"json", false, func(k string) interface{} { return GetBool(k) }},
		{"actor", "", func(k string) interface{} { return GetString(k) }},
		{"auto-compact", true, func(k string) interface{} { return GetBool(k) }},
		{"debug", false, func(k string) interface{} { return GetBool(k) }},
		{"stream.poll-interval", "1s", func(k string) interface{} { return GetString(k) }},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
	if got := GetStringSlice("hidden_namespaces"); len(got) != 0 {
		t.Errorf("hidden_namespaces = %v, want empty", got)
	}
	if ConfigFileUsed() != "" {
		t.Errorf("ConfigFileUsed() = %q, want none", ConfigFileUsed())
	}
}

func TestProjectConfigFoundFromSubdirectory(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeConfig(t, root, "config.yaml", "issue_prefix: app\nauto-compact: false\nhidden_namespaces:\n  - ops\n")
	sub := filepath.Join(root, "src", "pkg")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}

	if err := InitializeFrom(sub); err != nil {
		t.Fatal(err)
	}
	if got := GetString("issue_prefix"); got != "app" {
		t.Errorf("issue_prefix = %q, want app", got)
	}
	if GetBool("auto-compact") {
		t.Error("auto-compact = true, want false from config")
	}
	if diff := cmp.Diff([]string{"ops"}, GetStringSlice("hidden_namespaces")); diff != "" {
		t.Errorf("hidden_namespaces mismatch (-want +got):\n%s", diff)
	}
}

func TestLegacyTOMLConfig(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeConfig(t, root, "config.toml", "issue_prefix = \"old\"\n")

	if err := InitializeFrom(root); err != nil {
		t.Fatal(err)
	}
	if got := GetString("issue_prefix"); got != "old" {
		t.Errorf("issue_prefix = %q, want old", got)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeConfig(t, root, "config.yaml", "actor: file-user\n")
	t.Setenv("DCAT_ACTOR", "env-user")
	t.Setenv("DCAT_VISIBLE_NAMESPACES", "a, b")

	if err := InitializeFrom(root); err != nil {
		t.Fatal(err)
	}
	if got := GetString("actor"); got != "env-user" {
		t.Errorf("actor = %q, want env-user", got)
	}
	if diff := cmp.Diff([]string{"a", "b"}, GetStringSlice("visible_namespaces")); diff != "" {
		t.Errorf("visible_namespaces mismatch (-want +got):\n%s", diff)
	}
}

func TestSetOverrides(t *testing.T) {
	isolate(t)
	if err := InitializeFrom(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	Set("json", true)
	if !GetBool("json") {
		t.Error("json = false after Set")
	}
}

func TestUninitialized(t *testing.T) {
	ResetForTesting()
	if GetString("actor") != "" || GetBool("json") || GetStringSlice("x") != nil {
		t.Error("getters should return zero values before Initialize")
	}
	if len(AllSettings()) != 0 {
		t.Error("AllSettings should be empty before Initialize")
	}
}
