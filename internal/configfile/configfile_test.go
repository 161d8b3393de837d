package configfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadSaveRoundtrip(t *testing.T) {
	tmpDir := t.TempDir()
	dogcatsDir := filepath.Join(tmpDir, ".dogcats")

	cfg := DefaultConfig("web")
	cfg.VisibleNamespaces = []string{"web", "api"}
	if err := cfg.Set("editor.theme", "dark"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Save(dogcatsDir); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	info, err := os.Stat(ConfigPath(dogcatsDir))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config permissions = %o, want 600", perm)
	}

	loaded, err := Load(dogcatsDir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load() returned nil config")
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() returned error for nonexistent config: %v", err)
	}
	if cfg != nil {
		t.Errorf("Load() = %v, want nil for nonexistent config", cfg)
	}
}

func TestLoadMigratesLegacyToml(t *testing.T) {
	dir := t.TempDir()
	legacy := "issue_prefix = \"ops\"\nhidden_namespaces = [\"scratch\"]\n"
	if err := os.WriteFile(filepath.Join(dir, LegacyConfigFileName), []byte(legacy), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.IssuePrefix != "ops" || len(cfg.HiddenNamespaces) != 1 || cfg.HiddenNamespaces[0] != "scratch" {
		t.Errorf("migrated config = %+v", cfg)
	}
	if _, err := os.Stat(ConfigPath(dir)); err != nil {
		t.Errorf("config.yaml not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LegacyConfigFileName)); !os.IsNotExist(err) {
		t.Errorf("legacy config still present: %v", err)
	}
}

func TestSetGetUnset(t *testing.T) {
	cfg := &Config{}
	tests := []struct {
		key, value, want string
	}{
		{"issue_prefix", "api", "api"},
		{"visible_namespaces", "a, b,,a", "a,b"},
		{"auto-compact", "false", "false"},
		{"custom", "42", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := cfg.Set(tt.key, tt.value); err != nil {
				t.Fatalf("Set(%s) failed: %v", tt.key, err)
			}
			got, ok := cfg.Get(tt.key)
			if !ok || got != tt.want {
				t.Errorf("Get(%s) = %q, %v, want %q", tt.key, got, ok, tt.want)
			}
			if !cfg.Unset(tt.key) {
				t.Errorf("Unset(%s) reported not set", tt.key)
			}
			if _, ok := cfg.Get(tt.key); ok {
				t.Errorf("%s still set after Unset", tt.key)
			}
		})
	}

	if err := cfg.Set("auto-compact", "sometimes"); err == nil {
		t.Error("Set(auto-compact, sometimes) succeeded")
	}
}

func TestRenameNamespace(t *testing.T) {
	cfg := &Config{IssuePrefix: "old", VisibleNamespaces: []string{"x", "old"}}
	if !cfg.RenameNamespace("old", "new") {
		t.Fatal("RenameNamespace reported no change")
	}
	if cfg.IssuePrefix != "new" || cfg.VisibleNamespaces[1] != "new" {
		t.Errorf("renamed config = %+v", cfg)
	}
	if cfg.RenameNamespace("missing", "other") {
		t.Error("RenameNamespace changed an unrelated config")
	}
}

func TestIssuePrefix(t *testing.T) {
	project := filepath.Join(t.TempDir(), "My Project")
	dir := filepath.Join(project, ".dogcats")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}

	if got := IssuePrefix(dir); got != "my-project" {
		t.Errorf("prefix from directory = %q", got)
	}

	log := `{"id":"a1","namespace":"api"}
{"id":"b2","namespace":"web"}
{"id":"c3","namespace":"web"}
{"id":"legacy-d4"}
`
	if err := os.WriteFile(filepath.Join(dir, "issues.jsonl"), []byte(log), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := IssuePrefix(dir); got != "web" {
		t.Errorf("prefix from issues = %q", got)
	}

	if err := DefaultConfig("cfg").Save(dir); err != nil {
		t.Fatal(err)
	}
	if got := IssuePrefix(dir); got != "cfg" {
		t.Errorf("prefix from config = %q", got)
	}
}
