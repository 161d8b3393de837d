package sqlite

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// ErrSchemaIncompatible is returned when a database lacks the export schema.
var ErrSchemaIncompatible = fmt.Errorf("database schema is incompatible")

// expectedSchema defines all expected tables and their required columns
var expectedSchema = map[string][]string{
	"issues": {
		"id", "namespace", "short_id", "title", "description", "design", "acceptance", "notes",
		"status", "priority", "issue_type", "owner", "parent", "duplicate_of", "external_ref",
		"close_reason", "delete_reason", "original_type", "metadata",
		"created_at", "created_by", "updated_at", "updated_by",
		"closed_at", "closed_by", "deleted_at", "deleted_by",
	},
	"dependencies": {"issue_id", "depends_on_id", "type", "created_at", "created_by"},
	"links":        {"from_id", "to_id", "link_type", "created_at", "created_by"},
	"labels":       {"issue_id", "label"},
	"comments":     {"id", "issue_id", "author", "text", "created_at"},
	"events":       {"id", "issue_id", "event_type", "actor", "title", "changes", "created_at"},
	"proposals": {
		"id", "namespace", "title", "description", "status", "proposed_by", "source_repo",
		"resolved_issue", "close_reason", "created_at", "closed_at",
	},
	"metadata": {"key", "value"},
}

// SchemaProbeResult contains the results of a schema compatibility check
type SchemaProbeResult struct {
	Compatible     bool
	MissingTables  []string
	MissingColumns map[string][]string // table -> missing columns
	ErrorMessage   string
}

// probeSchema verifies all expected tables and columns exist
func probeSchema(db *sql.DB) SchemaProbeResult {
	result := SchemaProbeResult{
		Compatible:     true,
		MissingTables:  []string{},
		MissingColumns: make(map[string][]string),
	}

	tables := make([]string, 0, len(expectedSchema))
	for table := range expectedSchema {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		expectedCols := expectedSchema[table]
		// #nosec G201 - identifiers come from expectedSchema
		query := fmt.Sprintf("SELECT %s FROM %s LIMIT 0", strings.Join(expectedCols, ", "), table)
		_, err := db.Exec(query)
		if err == nil {
			continue
		}
		errMsg := err.Error()
		switch {
		case strings.Contains(errMsg, "no such table"):
			result.Compatible = false
			result.MissingTables = append(result.MissingTables, table)
		case strings.Contains(errMsg, "no such column"):
			result.Compatible = false
			if missing := findMissingColumns(db, table, expectedCols); len(missing) > 0 {
				result.MissingColumns[table] = missing
			}
		}
	}

	if !result.Compatible {
		var parts []string
		if len(result.MissingTables) > 0 {
			parts = append(parts, fmt.Sprintf("missing tables: %s", strings.Join(result.MissingTables, ", ")))
		}
		for _, table := range tables {
			if cols, ok := result.MissingColumns[table]; ok {
				parts = append(parts, fmt.Sprintf("missing columns in %s: %s", table, strings.Join(cols, ", ")))
			}
		}
		result.ErrorMessage = strings.Join(parts, "; ")
	}
	return result
}

// findMissingColumns determines which columns are missing from a table
func findMissingColumns(db *sql.DB, table string, expectedCols []string) []string {
	missing := []string{}
	for _, col := range expectedCols {
		// #nosec G201 - identifiers come from expectedSchema
		query := fmt.Sprintf("SELECT %s FROM %s LIMIT 0", col, table)
		if _, err := db.Exec(query); err != nil && strings.Contains(err.Error(), "no such column") {
			missing = append(missing, col)
		}
	}
	return missing
}

// verifySchemaCompatibility runs schema probe and returns detailed error on failure
func verifySchemaCompatibility(db *sql.DB) error {
	result := probeSchema(db)
	if !result.Compatible {
		return fmt.Errorf("%w: %s", ErrSchemaIncompatible, result.ErrorMessage)
	}
	return nil
}
