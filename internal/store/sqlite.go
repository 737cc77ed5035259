package store

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

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JonMunkholm/remap/internal/core"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS mapping_templates (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		mapping    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS batch_history (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		template_id TEXT NOT NULL DEFAULT '',
		client_ip   TEXT NOT NULL DEFAULT '',
		user_agent  TEXT NOT NULL DEFAULT '',
		files       TEXT NOT NULL,
		skipped     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_batch_history_started ON batch_history(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_batch_history_finished ON batch_history(finished_at)`,
}

// SQLite is a Store in a single SQLite file.
//
// Timestamps are stored as fixed-width UTC RFC3339 strings so that text
// comparison orders them correctly.
type SQLite struct {
	db *sql.DB
}

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// OpenSQLite opens (or creates) the database at path. An empty path or
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps a :memory: database on one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *SQLite) migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(sqliteTimeLayout, s) }

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (s *SQLite) CreateTemplate(ctx context.Context, t core.MappingTemplate) error {
	mapping, err := json.Marshal(t.Mapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mapping_templates (id, name, mapping, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, string(mapping), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if isSQLiteUnique(err) {
		return core.ErrTemplateExists
	}
	return err
}

func (s *SQLite) GetTemplate(ctx context.Context, id string) (core.MappingTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, mapping, created_at, updated_at FROM mapping_templates WHERE id = ?`, id)
	t, err := scanSQLiteTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MappingTemplate{}, core.ErrTemplateNotFound
	}
	return t, err
}

func (s *SQLite) ListTemplates(ctx context.Context) ([]core.MappingTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, mapping, created_at, updated_at FROM mapping_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.MappingTemplate{}
	for rows.Next() {
		t, err := scanSQLiteTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateTemplate(ctx context.Context, t core.MappingTemplate) error {
	mapping, err := json.Marshal(t.Mapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE mapping_templates SET name = ?, mapping = ?, updated_at = ? WHERE id = ?`,
		t.Name, string(mapping), formatTime(t.UpdatedAt), t.ID,
	)
	if isSQLiteUnique(err) {
		return core.ErrTemplateExists
	}
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLite) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mapping_templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrTemplateNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTemplate(row scanner) (core.MappingTemplate, error) {
	var (
		t                    core.MappingTemplate
		mapping              string
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &t.Name, &mapping, &createdAt, &updatedAt); err != nil {
		return core.MappingTemplate{}, err
	}
	if err := json.Unmarshal([]byte(mapping), &t.Mapping); err != nil {
		return core.MappingTemplate{}, fmt.Errorf("unmarshal mapping: %w", err)
	}

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.MappingTemplate{}, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.MappingTemplate{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return t, nil
}

func (s *SQLite) RecordBatch(ctx context.Context, b core.BatchSummary) error {
	files, skipped, err := marshalSummary(b)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batch_history (id, started_at, finished_at, template_id, client_ip, user_agent, files, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, formatTime(b.StartedAt), formatTime(b.FinishedAt), b.TemplateID, b.ClientIP, b.UserAgent,
		string(files), string(skipped),
	)
	return err
}

func (s *SQLite) ListBatches(ctx context.Context, limit int) ([]core.BatchSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, template_id, client_ip, user_agent, files, skipped
		 FROM batch_history ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.BatchSummary{}
	for rows.Next() {
		var (
			b                     core.BatchSummary
			startedAt, finishedAt string
			files, skipped        string
		)
		if err := rows.Scan(&b.ID, &startedAt, &finishedAt, &b.TemplateID, &b.ClientIP, &b.UserAgent, &files, &skipped); err != nil {
			return nil, err
		}
		if b.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if b.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		if err := unmarshalSummary(&b, []byte(files), []byte(skipped)); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLite) PurgeBatchesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM batch_history WHERE finished_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }
