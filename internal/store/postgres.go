package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/remap/internal/core"
)

const pgUniqueViolation = "23505"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS mapping_templates (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL,
		mapping    JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT mapping_templates_name_unique UNIQUE (name)
	)`,
	`CREATE TABLE IF NOT EXISTS batch_history (
		id          UUID PRIMARY KEY,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		template_id UUID,
		client_ip   TEXT NOT NULL DEFAULT '',
		user_agent  TEXT NOT NULL DEFAULT '',
		files       JSONB NOT NULL,
		skipped     JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS batch_history_started_at_idx ON batch_history (started_at DESC)`,
	`CREATE INDEX IF NOT EXISTS batch_history_finished_at_idx ON batch_history (finished_at)`,
}

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and ensures the schema.
func OpenPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func pgUUID(id string) (pgtype.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: uid, Valid: true}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (p *Postgres) CreateTemplate(ctx context.Context, t core.MappingTemplate) error {
	id, err := pgUUID(t.ID)
	if err != nil {
		return fmt.Errorf("template id: %w", err)
	}
	mapping, err := json.Marshal(t.Mapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO mapping_templates (id, name, mapping, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, t.Name, mapping, t.CreatedAt, t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return core.ErrTemplateExists
	}
	return err
}

func (p *Postgres) GetTemplate(ctx context.Context, id string) (core.MappingTemplate, error) {
	uid, err := pgUUID(id)
	if err != nil {
		return core.MappingTemplate{}, core.ErrTemplateNotFound
	}

	row := p.pool.QueryRow(ctx,
		`SELECT id, name, mapping, created_at, updated_at FROM mapping_templates WHERE id = $1`, uid)
	t, err := scanPgTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.MappingTemplate{}, core.ErrTemplateNotFound
	}
	return t, err
}

func (p *Postgres) ListTemplates(ctx context.Context) ([]core.MappingTemplate, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, mapping, created_at, updated_at FROM mapping_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.MappingTemplate{}
	for rows.Next() {
		t, err := scanPgTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateTemplate(ctx context.Context, t core.MappingTemplate) error {
	id, err := pgUUID(t.ID)
	if err != nil {
		return core.ErrTemplateNotFound
	}
	mapping, err := json.Marshal(t.Mapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE mapping_templates SET name = $2, mapping = $3, updated_at = $4 WHERE id = $1`,
		id, t.Name, mapping, t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return core.ErrTemplateExists
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrTemplateNotFound
	}
	return nil
}

func (p *Postgres) DeleteTemplate(ctx context.Context, id string) error {
	uid, err := pgUUID(id)
	if err != nil {
		return core.ErrTemplateNotFound
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM mapping_templates WHERE id = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrTemplateNotFound
	}
	return nil
}

func scanPgTemplate(row pgx.Row) (core.MappingTemplate, error) {
	var (
		id      pgtype.UUID
		t       core.MappingTemplate
		mapping []byte
	)
	if err := row.Scan(&id, &t.Name, &mapping, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return core.MappingTemplate{}, err
	}
	if err := json.Unmarshal(mapping, &t.Mapping); err != nil {
		return core.MappingTemplate{}, fmt.Errorf("unmarshal mapping: %w", err)
	}
	t.ID = uuid.UUID(id.Bytes).String()
	return t, nil
}

func (p *Postgres) RecordBatch(ctx context.Context, s core.BatchSummary) error {
	id, err := pgUUID(s.ID)
	if err != nil {
		return fmt.Errorf("batch id: %w", err)
	}
	var templateID pgtype.UUID
	if s.TemplateID != "" {
		if templateID, err = pgUUID(s.TemplateID); err != nil {
			return fmt.Errorf("template id: %w", err)
		}
	}
	files, skipped, err := marshalSummary(s)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO batch_history (id, started_at, finished_at, template_id, client_ip, user_agent, files, skipped)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, s.StartedAt, s.FinishedAt, templateID, s.ClientIP, s.UserAgent, files, skipped,
	)
	return err
}

func (p *Postgres) ListBatches(ctx context.Context, limit int) ([]core.BatchSummary, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, started_at, finished_at, template_id, client_ip, user_agent, files, skipped
		 FROM batch_history ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.BatchSummary{}
	for rows.Next() {
		var (
			s              core.BatchSummary
			id, templateID pgtype.UUID
			files, skipped []byte
		)
		if err := rows.Scan(&id, &s.StartedAt, &s.FinishedAt, &templateID, &s.ClientIP, &s.UserAgent, &files, &skipped); err != nil {
			return nil, err
		}
		s.ID = uuid.UUID(id.Bytes).String()
		if templateID.Valid {
			s.TemplateID = uuid.UUID(templateID.Bytes).String()
		}
		if err := unmarshalSummary(&s, files, skipped); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) PurgeBatchesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM batch_history WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
