package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so that created_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository stores records in a SQLite database in WAL mode.
type SQLiteRepository struct {
	db   *sql.DB
	path string
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	repo := &SQLiteRepository{db: db, path: dbPath}
	if err := repo.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func (s *SQLiteRepository) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS prompt_records (
		id            TEXT PRIMARY KEY,
		prompt_text   TEXT NOT NULL,
		response_text TEXT NOT NULL,
		project_name  TEXT NOT NULL DEFAULT '',
		project_goal  TEXT NOT NULL DEFAULT '',
		terminal_type TEXT NOT NULL DEFAULT '',
		session_id    TEXT NOT NULL DEFAULT '',
		labels        TEXT NOT NULL DEFAULT '[]',
		metadata      TEXT NOT NULL DEFAULT '{}',
		created_at    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_prompt_records_session ON prompt_records(session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_prompt_records_project ON prompt_records(project_name, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteRepository) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteRepository) Add(ctx context.Context, r *PromptRecord) (*PromptRecord, error) {
	rec := prepare(r, time.Now())
	labels, err := json.Marshal(nonNilLabels(rec.Labels))
	if err != nil {
		return nil, fmt.Errorf("encode labels: %w", err)
	}
	meta, err := json.Marshal(nonNilMeta(rec.Metadata))
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prompt_records (id, prompt_text, response_text, project_name, project_goal,
			terminal_type, session_id, labels, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PromptText, rec.ResponseText, rec.ProjectName, rec.ProjectGoal,
		rec.TerminalType, rec.SessionID, string(labels), string(meta),
		rec.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert prompt record: %w", err)
	}
	return rec, nil
}

const selectColumns = `SELECT id, prompt_text, response_text, project_name, project_goal,
	terminal_type, session_id, labels, metadata, created_at FROM prompt_records`

func (s *SQLiteRepository) Get(ctx context.Context, id string) (*PromptRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id=?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load prompt record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteRepository) FindBySession(ctx context.Context, sessionID string) ([]*PromptRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE session_id=? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find by session: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteRepository) List(ctx context.Context, opts ListOptions) ([]*PromptRecord, error) {
	var (
		where []string
		args  []any
	)
	if opts.ProjectName != "" {
		where = append(where, "project_name=?")
		args = append(args, opts.ProjectName)
	}
	if opts.SessionID != "" {
		where = append(where, "session_id=?")
		args = append(args, opts.SessionID)
	}
	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list prompt records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*PromptRecord, error) {
	var (
		rec       PromptRecord
		labels    string
		meta      string
		createdAt string
	)
	if err := row.Scan(&rec.ID, &rec.PromptText, &rec.ResponseText, &rec.ProjectName, &rec.ProjectGoal,
		&rec.TerminalType, &rec.SessionID, &labels, &meta, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(labels), &rec.Labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("decode timestamp: %w", err)
	}
	rec.Timestamp = ts
	if len(rec.Labels) == 0 {
		rec.Labels = nil
	}
	if len(rec.Metadata) == 0 {
		rec.Metadata = nil
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*PromptRecord, error) {
	var out []*PromptRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nonNilLabels(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}

func nonNilMeta(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
