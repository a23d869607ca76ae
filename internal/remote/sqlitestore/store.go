// Package sqlitestore is a remote backed by a single SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/systemshift/memex-vc/internal/dag"
	"github.com/systemshift/memex-vc/internal/model"
	"github.com/systemshift/memex-vc/internal/remote"
	"github.com/systemshift/memex-vc/internal/remote/sqlitestore/migrations"
)

// Store provides SQLite-backed entity and perspective persistence.
type Store struct {
	id    string
	sqlDB *sql.DB
}

// Open opens a SQLite remote and applies migrations.
func Open(id, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{id: id, sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ID() string { return s.id }

func (s *Store) GetEntity(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT object FROM entities WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("entity", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	if !dag.VerifyID(id, data) {
		return nil, fmt.Errorf("entity %s: content does not match id", id)
	}
	return data, nil
}

func (s *Store) PutEntity(ctx context.Context, data []byte) (string, error) {
	id, err := dag.ComputeID(data)
	if err != nil {
		return "", err
	}
	if err := putEntity(ctx, s.sqlDB, id, data); err != nil {
		return "", err
	}
	return id, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putEntity(ctx context.Context, db execer, id string, data []byte) error {
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO entities (id, object) VALUES (?, ?)`, id, data)
	if err != nil {
		return fmt.Errorf("put entity %s: %w", id, err)
	}
	return nil
}

func (s *Store) GetHead(ctx context.Context, perspectiveID string) (string, bool, error) {
	return getHead(ctx, s.sqlDB, perspectiveID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getHead(ctx context.Context, db queryer, perspectiveID string) (string, bool, error) {
	var head string
	err := db.QueryRowContext(ctx, `SELECT head_id FROM heads WHERE perspective_id = ?`, perspectiveID).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get head %s: %w", perspectiveID, err)
	}
	return head, true, nil
}

// Apply validates and writes m inside one transaction.
func (s *Store) Apply(ctx context.Context, m *model.Mutation) (err error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	plan, err := remote.NewPlan(ctx, m, func(ctx context.Context, id string) (string, bool, error) {
		return getHead(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	for _, sp := range plan.Headers {
		data, err := model.Encode(&sp.Object)
		if err != nil {
			return err
		}
		if err := putEntity(ctx, tx, sp.ID, data); err != nil {
			return err
		}
	}
	for id, head := range plan.Final() {
		if head == "" {
			_, err = tx.ExecContext(ctx, `DELETE FROM heads WHERE perspective_id = ?`, id)
		} else {
			_, err = tx.ExecContext(ctx, `
INSERT INTO heads (perspective_id, head_id) VALUES (?, ?)
ON CONFLICT(perspective_id) DO UPDATE SET head_id = excluded.head_id
`, id, head)
		}
		if err != nil {
			return fmt.Errorf("write head %s: %w", id, err)
		}
	}
	now := time.Now().UTC().UnixMilli()
	for _, e := range plan.RefLogEntries() {
		_, err = tx.ExecContext(ctx, `
INSERT INTO reflog (perspective_id, old_head, new_head, from_perspective, action, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, e.Perspective, e.OldHead, e.NewHead, e.From, e.Action, now)
		if err != nil {
			return fmt.Errorf("record reflog: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply: %w", err)
	}
	return nil
}

// Reflog returns the head moves of a perspective, newest first.
func (s *Store) Reflog(ctx context.Context, perspectiveID string) ([]dag.RefLogEntry, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT old_head, new_head, from_perspective, action, created_at
FROM reflog WHERE perspective_id = ? ORDER BY seq DESC
`, perspectiveID)
	if err != nil {
		return nil, fmt.Errorf("list reflog: %w", err)
	}
	defer rows.Close()

	var out []dag.RefLogEntry
	for rows.Next() {
		e := dag.RefLogEntry{Perspective: perspectiveID}
		var created int64
		if err := rows.Scan(&e.OldHead, &e.NewHead, &e.From, &e.Action, &created); err != nil {
			return nil, fmt.Errorf("scan reflog: %w", err)
		}
		e.Timestamp = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Perspectives lists the ids that currently have a head.
func (s *Store) Perspectives(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT perspective_id FROM heads ORDER BY perspective_id`)
	if err != nil {
		return nil, fmt.Errorf("list heads: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan head: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// applyMigrations runs each embedded .sql file at most once.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var n int
		if err := sqlDB.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, file).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if n > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			file, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upSection returns the SQL in the -- +migrate Up section.
func upSection(content string) string {
	up := strings.Index(content, "-- +migrate Up")
	if up == -1 {
		return content
	}
	body := content[up+len("-- +migrate Up"):]
	if down := strings.Index(body, "-- +migrate Down"); down != -1 {
		body = body[:down]
	}
	return body
}
