// Package sqlite writes a read-only SQLite snapshot of a dogcat store.
//
// The JSONL log stays the source of truth. An export is a disposable
// database for ad-hoc SQL: current issues, live edges, labels, comments,
// events and proposals, plus a ready_issues view.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/dogcat/dogcat/internal/debug"
	"github.com/dogcat/dogcat/internal/types"
)

// setupWASMCache configures WASM compilation caching to reduce SQLite startup time.
// Returns the cache directory path (empty string if using in-memory cache).
//
// Cache behavior:
//   - Location: ~/.cache/dcat/wasm/ (platform-specific via os.UserCacheDir)
//   - Version management: wazero keys the cache by its version
//   - Fallback: in-memory cache if the directory cannot be created
func setupWASMCache() string {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "dcat", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
		cacheDir = ""
	}

	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
	return cacheDir
}

func init() {
	if dir := setupWASMCache(); dir == "" {
		debug.Logf("sqlite: WASM cache in memory only")
	}
}

// Snapshot is the state written by Export.
type Snapshot struct {
	Issues       []*types.Issue
	Dependencies []types.Dependency
	Links        []types.Link
	Events       []*types.Event
	Proposals    []*types.Proposal
}

// ExportStats counts the rows written per table.
type ExportStats struct {
	Path         string `json:"path"`
	Issues       int    `json:"issues"`
	Dependencies int    `json:"dependencies"`
	Links        int    `json:"links"`
	Labels       int    `json:"labels"`
	Comments     int    `json:"comments"`
	Events       int    `json:"events"`
	Proposals    int    `json:"proposals"`
}

// Open opens the database at path, creating its directory when needed.
func Open(path string) (*sql.DB, error) {
	var connStr string
	if path == ":memory:" {
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps the transaction and later reads on one handle
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Export writes snap to a new database at path. The file is built next
// to path and renamed into place, so an existing export is replaced only
// once the new one is complete.
func Export(ctx context.Context, path string, snap Snapshot) (*ExportStats, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	tmp := abs + ".tmp"
	_ = os.Remove(tmp)

	stats, err := write(ctx, tmp, snap)
	if err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, abs); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("failed to move export into place: %w", err)
	}
	stats.Path = abs
	return stats, nil
}

func write(ctx context.Context, path string, snap Snapshot) (*ExportStats, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := verifySchemaCompatibility(db); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stats := &ExportStats{}
	if err := insertIssues(ctx, tx, snap.Issues, stats); err != nil {
		return nil, err
	}
	for _, dep := range snap.Dependencies {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO dependencies (issue_id, depends_on_id, type, created_at, created_by) VALUES (?, ?, ?, ?, ?)`,
			dep.IssueID, dep.DependsOnID, string(dep.Type), timeValue(dep.CreatedAt), nullString(dep.CreatedBy),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert dependency %s -> %s: %w", dep.IssueID, dep.DependsOnID, err)
		}
		stats.Dependencies += rowsAffected(res)
	}
	for _, link := range snap.Links {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO links (from_id, to_id, link_type, created_at, created_by) VALUES (?, ?, ?, ?, ?)`,
			link.FromID, link.ToID, link.LinkType, timeValue(link.CreatedAt), nullString(link.CreatedBy),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert link %s -> %s: %w", link.FromID, link.ToID, err)
		}
		stats.Links += rowsAffected(res)
	}
	for _, e := range snap.Events {
		changes, err := json.Marshal(e.Changes)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event changes: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (issue_id, event_type, actor, title, changes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			e.IssueID, string(e.EventType), nullString(e.By), nullString(e.Title), string(changes), timeValue(e.Time()),
		); err != nil {
			return nil, fmt.Errorf("failed to insert event: %w", err)
		}
		stats.Events++
	}
	for _, p := range snap.Proposals {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO proposals (id, namespace, title, description, status, proposed_by, source_repo,
				resolved_issue, close_reason, created_at, closed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.FullID(), p.Namespace, p.Title, p.Description, string(p.Status), nullString(p.ProposedBy),
			nullString(p.SourceRepo), nullString(p.ResolvedIssue), nullString(p.CloseReason),
			timeValue(p.CreatedAt), timePtr(p.ClosedAt),
		); err != nil {
			return nil, fmt.Errorf("failed to insert proposal %s: %w", p.FullID(), err)
		}
		stats.Proposals++
	}

	meta := map[string]string{
		"dcat_version": types.Version,
		"exported_at":  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, k, v); err != nil {
			return nil, fmt.Errorf("failed to write metadata: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit export: %w", err)
	}
	return stats, nil
}

func insertIssues(ctx context.Context, tx *sql.Tx, issues []*types.Issue, stats *ExportStats) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO issues (
			id, namespace, short_id, title, description, design, acceptance, notes,
			status, priority, issue_type, owner, parent, duplicate_of, external_ref,
			close_reason, delete_reason, original_type, metadata,
			created_at, created_by, updated_at, updated_by,
			closed_at, closed_by, deleted_at, deleted_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare issue insert: %w", err)
	}
	defer stmt.Close()

	for _, issue := range issues {
		var metadata any
		if len(issue.Metadata) > 0 {
			b, err := json.Marshal(issue.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata of %s: %w", issue.FullID(), err)
			}
			metadata = string(b)
		}
		id := issue.FullID()
		if _, err := stmt.ExecContext(ctx,
			id, issue.Namespace, issue.ID, issue.Title, issue.Description, issue.Design, issue.Acceptance, issue.Notes,
			string(issue.Status), issue.Priority, string(issue.IssueType), nullString(issue.Owner),
			nullString(issue.Parent), nullString(issue.DuplicateOf), nullString(issue.ExternalRef),
			nullString(issue.CloseReason), nullString(issue.DeleteReason), nullString(string(issue.OriginalType)), metadata,
			timeValue(issue.CreatedAt), nullString(issue.CreatedBy), timeValue(issue.UpdatedAt), nullString(issue.UpdatedBy),
			timePtr(issue.ClosedAt), nullString(issue.ClosedBy), timePtr(issue.DeletedAt), nullString(issue.DeletedBy),
		); err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return fmt.Errorf("duplicate issue %s in snapshot: %w", id, err)
			}
			return fmt.Errorf("failed to insert issue %s: %w", id, err)
		}
		stats.Issues++

		for _, label := range issue.Labels {
			res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)`, id, label)
			if err != nil {
				return fmt.Errorf("failed to insert label: %w", err)
			}
			stats.Labels += rowsAffected(res)
		}
		for _, c := range issue.Comments {
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO comments (id, issue_id, author, text, created_at) VALUES (?, ?, ?, ?, ?)`,
				c.ID, id, nullString(c.Author), c.Text, timeValue(c.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to insert comment: %w", err)
			}
			stats.Comments += rowsAffected(res)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func rowsAffected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeValue(*t)
}

// ErrNotExported is returned by Counts for a file that is not an export.
var ErrNotExported = errors.New("not a dcat export")

// Counts reads the number of rows per table from an existing export.
func Counts(ctx context.Context, path string) (map[string]int, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if err := verifySchemaCompatibility(db); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotExported, err)
	}
	counts := map[string]int{}
	for table := range expectedSchema {
		var n int
		// #nosec G201 - table names come from expectedSchema
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, err
		}
		counts[table] = n
	}
	return counts, nil
}

// Verify re-reads an export and checks its row counts against stats.
func Verify(ctx context.Context, stats *ExportStats) error {
	counts, err := Counts(ctx, stats.Path)
	if err != nil {
		return err
	}
	want := map[string]int{
		"issues":       stats.Issues,
		"dependencies": stats.Dependencies,
		"links":        stats.Links,
		"labels":       stats.Labels,
		"comments":     stats.Comments,
		"events":       stats.Events,
		"proposals":    stats.Proposals,
	}
	tables := make([]string, 0, len(want))
	for table := range want {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		if counts[table] != want[table] {
			return fmt.Errorf("export %s: %s has %d rows, expected %d", stats.Path, table, counts[table], want[table])
		}
	}
	return nil
}
