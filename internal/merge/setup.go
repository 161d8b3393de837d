package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dogcat/dogcat/internal/git"
)

// DriverName is the merge driver id used in git config and .gitattributes.
const DriverName = "dogcat"

// DriverCommand is what git runs for a conflicted log file.
const DriverCommand = "dcat git merge-driver %O %A %B"

// Attribute returns the .gitattributes line routing the logs in relDir
// (relative to the repository root) through the driver.
func Attribute(relDir string) string {
	return filepath.ToSlash(filepath.Join(relDir, "*.jsonl")) + " merge=" + DriverName
}

// Installed reports whether git config and .gitattributes both route the
// logs in relDir through the driver.
func Installed(ctx context.Context, repoRoot, relDir string) bool {
	driver, err := git.ConfigGet(ctx, repoRoot, "merge."+DriverName+".driver")
	if err != nil || driver == "" {
		return false
	}
	content, err := os.ReadFile(filepath.Join(repoRoot, ".gitattributes"))
	if err != nil {
		return false
	}
	return strings.Contains(string(content), Attribute(relDir))
}

// Install configures the driver in the repository's git config and adds
// the attribute line to .gitattributes when missing.
func Install(ctx context.Context, repoRoot, relDir string) error {
	if err := git.ConfigSet(ctx, repoRoot, "merge."+DriverName+".driver", DriverCommand); err != nil {
		return fmt.Errorf("failed to configure git merge driver: %w", err)
	}
	if err := git.ConfigSet(ctx, repoRoot, "merge."+DriverName+".name", "dcat JSONL merge driver"); err != nil {
		return fmt.Errorf("failed to set merge driver name: %w", err)
	}

	path := filepath.Join(repoRoot, ".gitattributes")
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read .gitattributes: %w", err)
	}
	attr := Attribute(relDir)
	if strings.Contains(string(existing), attr) {
		return nil
	}
	content := string(existing)
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += "\n# Use dcat to merge dogcat JSONL files\n" + attr + "\n"
	// #nosec G306 - .gitattributes needs to be readable
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to update .gitattributes: %w", err)
	}
	return nil
}
