package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quillworks/quill/pkg/models"
)

// DB is the SQLite-backed ledger. Writes are serialized through a mutex and
// a transaction so concurrent appends never lose updates; WAL mode keeps
// reads concurrent.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultDBPath returns the path to the ledger database under XDG data.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "quill", "ledger.db")
}

// Open opens the ledger database at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Entries},
		{2, migrationV2Workflows},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Entries = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	ts DATETIME NOT NULL,
	kind TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	workflow_id TEXT,
	invocation_id TEXT,
	approval_id TEXT,
	grant_id TEXT,
	detail TEXT,
	units INTEGER NOT NULL DEFAULT 0,
	cost REAL NOT NULL DEFAULT 0.0
);

CREATE INDEX IF NOT EXISTS idx_entries_subject ON ledger_entries(subject_id, ts);
CREATE INDEX IF NOT EXISTS idx_entries_invocation ON ledger_entries(invocation_id);
CREATE INDEX IF NOT EXISTS idx_entries_grant ON ledger_entries(grant_id, kind, ts);
`

const migrationV2Workflows = `
CREATE TABLE IF NOT EXISTS workflows (
	workflow_id TEXT PRIMARY KEY,
	external_id TEXT UNIQUE,
	subject_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workflows_subject ON workflows(subject_id);
`

// Append durably records an entry and returns it with Seq assigned.
func (db *DB) Append(entry models.LedgerEntry) (models.LedgerEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	res, err := db.conn.Exec(`
		INSERT INTO ledger_entries
			(ts, kind, subject_id, workflow_id, invocation_id, approval_id, grant_id, detail, units, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, formatTime(entry.Timestamp), string(entry.Kind), entry.SubjectID,
		entry.WorkflowID, entry.InvocationID, entry.ApprovalID, entry.GrantID,
		entry.Detail, entry.Units, entry.Cost)
	if err != nil {
		return entry, fmt.Errorf("append ledger entry: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return entry, fmt.Errorf("get sequence: %w", err)
	}
	entry.Seq = seq

	return entry, nil
}

// BySubject returns entries for a subject within [from, to), oldest first.
func (db *DB) BySubject(subjectID string, from, to time.Time) ([]models.LedgerEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT seq, ts, kind, subject_id, workflow_id, invocation_id, approval_id, grant_id, detail, units, cost
		FROM ledger_entries
		WHERE subject_id = ? AND ts >= ? AND ts < ?
		ORDER BY seq ASC
	`, subjectID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("query by subject: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByInvocation returns all entries for an invocation, oldest first.
func (db *DB) ByInvocation(invocationID string) ([]models.LedgerEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT seq, ts, kind, subject_id, workflow_id, invocation_id, approval_id, grant_id, detail, units, cost
		FROM ledger_entries
		WHERE invocation_id = ?
		ORDER BY seq ASC
	`, invocationID)
	if err != nil {
		return nil, fmt.Errorf("query by invocation: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// SumCharges returns committed units and cost for a subject/grant pair
// within [from, to). Only quota_charged entries count toward quotas.
func (db *DB) SumCharges(subjectID, grantID string, from, to time.Time) (int64, float64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT COALESCE(SUM(units), 0), COALESCE(SUM(cost), 0.0)
		FROM ledger_entries
		WHERE subject_id = ? AND grant_id = ? AND kind = ? AND ts >= ? AND ts < ?
	`, subjectID, grantID, string(models.LedgerQuotaCharged), formatTime(from), formatTime(to))

	var units int64
	var cost float64
	if err := row.Scan(&units, &cost); err != nil {
		return 0, 0, fmt.Errorf("sum charges: %w", err)
	}
	return units, cost, nil
}

// BindWorkflow records the external-ID-to-workflow binding, returning the
// already-bound workflow ID when the external ID was seen before.
func (db *DB) BindWorkflow(externalID, workflowID string) (string, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if externalID != "" {
		var existing string
		err := db.conn.QueryRow(
			"SELECT workflow_id FROM workflows WHERE external_id = ?", externalID,
		).Scan(&existing)
		if err == nil {
			return existing, false, nil
		}
		if err != sql.ErrNoRows {
			return "", false, fmt.Errorf("lookup external id: %w", err)
		}
	}

	_, err := db.conn.Exec(`
		INSERT INTO workflows (workflow_id, external_id, subject_id, status, created_at)
		VALUES (?, ?, '', 'pending', ?)
	`, workflowID, nullIfEmpty(externalID), formatTime(time.Now()))
	if err != nil {
		return "", false, fmt.Errorf("bind workflow: %w", err)
	}

	return workflowID, true, nil
}

// LookupWorkflow returns the workflow bound to an external ID, or "".
func (db *DB) LookupWorkflow(externalID string) (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var id string
	err := db.conn.QueryRow(
		"SELECT workflow_id FROM workflows WHERE external_id = ?", externalID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup workflow: %w", err)
	}
	return id, nil
}

// UpdateWorkflowStatus records the terminal status on the workflow index row.
func (db *DB) UpdateWorkflowStatus(workflowID, status string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		"UPDATE workflows SET status = ? WHERE workflow_id = ?", status, workflowID,
	)
	if err != nil {
		return fmt.Errorf("update workflow status: %w", err)
	}
	return nil
}

// RecentWorkflows returns the most recent workflow bindings, newest first.
func (db *DB) RecentWorkflows(limit int) ([]WorkflowRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`
		SELECT workflow_id, COALESCE(external_id, ''), subject_id, status, created_at
		FROM workflows
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent workflows: %w", err)
	}
	defer rows.Close()

	var records []WorkflowRecord
	for rows.Next() {
		var rec WorkflowRecord
		var created string
		if err := rows.Scan(&rec.WorkflowID, &rec.ExternalID, &rec.SubjectID, &rec.Status, &created); err != nil {
			return nil, fmt.Errorf("scan workflow record: %w", err)
		}
		if t, err := parseTime(created); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// scanEntries reads ledger rows into entries.
func scanEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var ts string
		var kind string
		var workflowID, invocationID, approvalID, grantID, detail sql.NullString
		if err := rows.Scan(&e.Seq, &ts, &kind, &e.SubjectID,
			&workflowID, &invocationID, &approvalID, &grantID, &detail,
			&e.Units, &e.Cost); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Kind = models.LedgerEventKind(kind)
		e.WorkflowID = workflowID.String
		e.InvocationID = invocationID.String
		e.ApprovalID = approvalID.String
		e.GrantID = grantID.String
		e.Detail = detail.String
		if t, err := parseTime(ts); err == nil {
			e.Timestamp = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
