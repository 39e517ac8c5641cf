// Package registry is the durable task and run-summary store. It is
// the only state that outlives a single run; everything else is
// reconstructed from the filesystem.
package registry

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tkoster/inkbridge/internal/task"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// historyKeep bounds the per-bridge run history.
const historyKeep = 200

// Store wraps a SQLite database holding tasks, sync records, and
// bridge run summaries.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the registry database in dataDir and runs
// pending migrations. Pass ":memory:" as dataDir for an in-memory
// database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "inkbridge.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection: concurrent note workers funnel through it,
	// which keeps insert-if-absent semantics race-free.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// AppliedMigrations returns applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// UpsertTasks inserts newly seen tasks. Existing rows (same local id)
// are left untouched so prior sync state is never clobbered.
func (s *Store) UpsertTasks(tasks []task.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO tasks
		(local_id, bridge, vault, note_path, line_no, title, completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, t := range tasks {
		if _, err := stmt.Exec(t.LocalID, t.Bridge, t.Vault, t.NotePath, t.Line, t.Title, boolInt(t.Completed), now); err != nil {
			return fmt.Errorf("inserting task %s: %w", t.LocalID, err)
		}
	}
	return tx.Commit()
}

// PendingForProvider returns open tasks eligible for (re)submission to
// the named provider: no sync record yet, or a record still pending or
// failed. Tasks already created and completed tasks never appear.
func (s *Store) PendingForProvider(provider string) ([]task.Task, error) {
	rows, err := s.db.Query(`
		SELECT t.local_id, t.bridge, t.vault, t.note_path, t.line_no, t.title, t.completed
		FROM tasks t
		LEFT JOIN task_syncs s ON s.local_id = t.local_id AND s.provider = ?
		WHERE t.completed = 0
		  AND (s.status IS NULL OR s.status IN (?, ?))
		ORDER BY t.local_id`,
		provider, StatusPending, StatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		var t task.Task
		var completed int
		if err := rows.Scan(&t.LocalID, &t.Bridge, &t.Vault, &t.NotePath, &t.Line, &t.Title, &completed); err != nil {
			return nil, err
		}
		t.Completed = completed != 0
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// RecordResult writes or updates the sync record for one (task,
// provider) pair in its own transaction.
func (s *Store) RecordResult(res SyncResult) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`INSERT INTO task_syncs
		(local_id, provider, external_id, status, last_error, last_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id, provider) DO UPDATE SET
			external_id     = excluded.external_id,
			status          = excluded.status,
			last_error      = excluded.last_error,
			last_attempt_at = excluded.last_attempt_at`,
		res.LocalID, res.Provider, nullable(res.ExternalID), res.Status, nullable(res.Error), now)
	if err != nil {
		return fmt.Errorf("recording result for %s: %w", res.LocalID, err)
	}
	return nil
}

// MarkSkippedLocal records completed tasks as skipped for the provider
// without ever downgrading an existing record: a task that was synced
// and later completed keeps its created status.
func (s *Store) MarkSkippedLocal(localIDs []string, provider string) error {
	if len(localIDs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO task_syncs
		(local_id, provider, external_id, status, last_error, last_attempt_at)
		VALUES (?, ?, NULL, ?, NULL, ?)
		ON CONFLICT(local_id, provider) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, id := range localIDs {
		if _, err := stmt.Exec(id, provider, StatusSkipped, now); err != nil {
			return fmt.Errorf("marking %s skipped: %w", id, err)
		}
	}
	return tx.Commit()
}

// SyncStatus returns the sync record for one (task, provider) pair.
func (s *Store) SyncStatus(localID, provider string) (SyncResult, error) {
	var res SyncResult
	var extID, lastErr sql.NullString
	err := s.db.QueryRow(`SELECT local_id, provider, external_id, status, last_error
		FROM task_syncs WHERE local_id = ? AND provider = ?`,
		localID, provider).Scan(&res.LocalID, &res.Provider, &extID, &res.Status, &lastErr)
	if err == sql.ErrNoRows {
		return SyncResult{}, ErrNotFound
	}
	if err != nil {
		return SyncResult{}, err
	}
	res.ExternalID = extID.String
	res.Error = lastErr.String
	return res, nil
}

// ListTaskStates returns tasks joined with their sync record for the
// named provider, newest first, for CLI and status API consumption.
func (s *Store) ListTaskStates(provider string, limit int) ([]TaskState, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT t.local_id, t.bridge, t.note_path, t.line_no, t.title, t.completed,
		       COALESCE(s.status, ''), COALESCE(s.external_id, ''), COALESCE(s.last_error, '')
		FROM tasks t
		LEFT JOIN task_syncs s ON s.local_id = t.local_id AND s.provider = ?
		ORDER BY t.created_at DESC, t.local_id
		LIMIT ?`, provider, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []TaskState
	for rows.Next() {
		var st TaskState
		var completed int
		if err := rows.Scan(&st.LocalID, &st.Bridge, &st.NotePath, &st.Line, &st.Title,
			&completed, &st.Status, &st.ExternalID, &st.LastError); err != nil {
			return nil, err
		}
		st.Completed = completed != 0
		states = append(states, st)
	}
	return states, rows.Err()
}

// TaskCountsFor returns task totals for one bridge.
func (s *Store) TaskCountsFor(bridge string) (TaskCounts, error) {
	var c TaskCounts
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN completed = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN completed = 1 THEN 1 ELSE 0 END), 0)
		FROM tasks WHERE bridge = ?`, bridge).Scan(&c.Total, &c.Open, &c.Completed)
	return c, err
}

// SaveRunSummary overwrites the bridge's latest snapshot and appends to
// the bounded history log in one transaction.
func (s *Store) SaveRunSummary(sum RunSummary) error {
	if sum.ID == "" {
		sum.ID = uuid.New().String()
	}
	finished := sum.FinishedAt.UTC().Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO bridge_runs_latest
		(bridge, finished_at, notes_found, converted, skipped, no_text,
		 tool_missing, tool_failed, tasks_total, tasks_open, tasks_completed,
		 source_missing, vault_missing)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bridge) DO UPDATE SET
			finished_at     = excluded.finished_at,
			notes_found     = excluded.notes_found,
			converted       = excluded.converted,
			skipped         = excluded.skipped,
			no_text         = excluded.no_text,
			tool_missing    = excluded.tool_missing,
			tool_failed     = excluded.tool_failed,
			tasks_total     = excluded.tasks_total,
			tasks_open      = excluded.tasks_open,
			tasks_completed = excluded.tasks_completed,
			source_missing  = excluded.source_missing,
			vault_missing   = excluded.vault_missing`,
		sum.Bridge, finished, sum.NotesFound, sum.Converted, sum.Skipped, sum.NoText,
		sum.ToolMissing, sum.ToolFailed, sum.TasksTotal, sum.TasksOpen, sum.TasksCompleted,
		boolInt(sum.SourceMissing), boolInt(sum.VaultMissing)); err != nil {
		return fmt.Errorf("saving latest summary: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO bridge_runs_history
		(id, bridge, finished_at, notes_found, converted, skipped, no_text,
		 tool_missing, tool_failed, tasks_total, tasks_open, tasks_completed,
		 source_missing, vault_missing)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.Bridge, finished, sum.NotesFound, sum.Converted, sum.Skipped, sum.NoText,
		sum.ToolMissing, sum.ToolFailed, sum.TasksTotal, sum.TasksOpen, sum.TasksCompleted,
		boolInt(sum.SourceMissing), boolInt(sum.VaultMissing)); err != nil {
		return fmt.Errorf("appending run history: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM bridge_runs_history
		WHERE bridge = ? AND id NOT IN (
			SELECT id FROM bridge_runs_history
			WHERE bridge = ?
			ORDER BY finished_at DESC, id DESC
			LIMIT ?)`,
		sum.Bridge, sum.Bridge, historyKeep); err != nil {
		return fmt.Errorf("pruning run history: %w", err)
	}

	return tx.Commit()
}

// LatestSummaries returns the latest snapshot for every bridge.
func (s *Store) LatestSummaries() ([]RunSummary, error) {
	rows, err := s.db.Query(`SELECT bridge, finished_at, notes_found, converted,
		skipped, no_text, tool_missing, tool_failed, tasks_total, tasks_open,
		tasks_completed, source_missing, vault_missing
		FROM bridge_runs_latest ORDER BY bridge`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows, false)
}

// History returns the most recent run summaries for one bridge, newest
// first.
func (s *Store) History(bridge string, limit int) ([]RunSummary, error) {
	if limit <= 0 || limit > historyKeep {
		limit = historyKeep
	}
	rows, err := s.db.Query(`SELECT id, bridge, finished_at, notes_found, converted,
		skipped, no_text, tool_missing, tool_failed, tasks_total, tasks_open,
		tasks_completed, source_missing, vault_missing
		FROM bridge_runs_history
		WHERE bridge = ?
		ORDER BY finished_at DESC, id DESC
		LIMIT ?`, bridge, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows, true)
}

func scanSummaries(rows *sql.Rows, withID bool) ([]RunSummary, error) {
	var out []RunSummary
	for rows.Next() {
		var sum RunSummary
		var finished string
		var srcMissing, vaultMissing int
		dest := []any{}
		if withID {
			dest = append(dest, &sum.ID)
		}
		dest = append(dest, &sum.Bridge, &finished, &sum.NotesFound, &sum.Converted,
			&sum.Skipped, &sum.NoText, &sum.ToolMissing, &sum.ToolFailed,
			&sum.TasksTotal, &sum.TasksOpen, &sum.TasksCompleted, &srcMissing, &vaultMissing)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, finished); err == nil {
			sum.FinishedAt = t
		}
		sum.SourceMissing = srcMissing != 0
		sum.VaultMissing = vaultMissing != 0
		out = append(out, sum)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
