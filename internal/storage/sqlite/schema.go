package sqlite

const schema = `
-- Issues table: one row per live or tombstoned issue
CREATE TABLE IF NOT EXISTS issues (
    id TEXT PRIMARY KEY,
    namespace TEXT NOT NULL,
    short_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    design TEXT NOT NULL DEFAULT '',
    acceptance TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'open',
    priority INTEGER NOT NULL DEFAULT 2 CHECK(priority >= 0 AND priority <= 4),
    issue_type TEXT NOT NULL DEFAULT 'task',
    owner TEXT,
    parent TEXT,
    duplicate_of TEXT,
    external_ref TEXT,
    close_reason TEXT,
    delete_reason TEXT,
    original_type TEXT,
    metadata TEXT,
    created_at DATETIME,
    created_by TEXT,
    updated_at DATETIME,
    updated_by TEXT,
    closed_at DATETIME,
    closed_by TEXT,
    deleted_at DATETIME,
    deleted_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
CREATE INDEX IF NOT EXISTS idx_issues_priority ON issues(priority);
CREATE INDEX IF NOT EXISTS idx_issues_namespace ON issues(namespace);
CREATE INDEX IF NOT EXISTS idx_issues_parent ON issues(parent);

-- Dependencies table: live edges only
CREATE TABLE IF NOT EXISTS dependencies (
    issue_id TEXT NOT NULL,
    depends_on_id TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'blocks',
    created_at DATETIME,
    created_by TEXT,
    PRIMARY KEY (issue_id, depends_on_id, type)
);

CREATE INDEX IF NOT EXISTS idx_dependencies_depends_on ON dependencies(depends_on_id);

-- Links table: live edges only
CREATE TABLE IF NOT EXISTS links (
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    link_type TEXT NOT NULL DEFAULT 'relates_to',
    created_at DATETIME,
    created_by TEXT,
    PRIMARY KEY (from_id, to_id, link_type)
);

-- Labels table
CREATE TABLE IF NOT EXISTS labels (
    issue_id TEXT NOT NULL,
    label TEXT NOT NULL,
    PRIMARY KEY (issue_id, label)
);

CREATE INDEX IF NOT EXISTS idx_labels_label ON labels(label);

-- Comments table
CREATE TABLE IF NOT EXISTS comments (
    id TEXT PRIMARY KEY,
    issue_id TEXT NOT NULL,
    author TEXT,
    text TEXT NOT NULL,
    created_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_comments_issue ON comments(issue_id);

-- Events table (audit trail); changes is the JSON object from the log
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    issue_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    actor TEXT,
    title TEXT,
    changes TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_events_issue ON events(issue_id);

-- Proposals table (inbox)
CREATE TABLE IF NOT EXISTS proposals (
    id TEXT PRIMARY KEY,
    namespace TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'open',
    proposed_by TEXT,
    source_repo TEXT,
    resolved_issue TEXT,
    close_reason TEXT,
    created_at DATETIME,
    closed_at DATETIME
);

-- Export metadata
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Ready work: open or in-progress, not draft, with no blocker that is
-- still open, in progress or blocked
CREATE VIEW IF NOT EXISTS ready_issues AS
SELECT i.*
FROM issues i
WHERE i.status IN ('open', 'in_progress')
  AND i.issue_type != 'draft'
  AND NOT EXISTS (
    SELECT 1 FROM dependencies d
    JOIN issues blocker ON d.depends_on_id = blocker.id
    WHERE d.issue_id = i.id
      AND blocker.status IN ('open', 'in_progress', 'blocked')
  );
`
