// Package sqlite stores field schemas in the api_field_spec and
// api_field_object tables.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/danmuck/wireconv/internal/protocol/schema"
	"github.com/danmuck/wireconv/internal/store"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const DriverName = "sqlite3"

const createTables = `
CREATE TABLE IF NOT EXISTS api_field_spec (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	api_code     TEXT    NOT NULL,
	field_order  INTEGER NOT NULL,
	field_name   TEXT    NOT NULL,
	field_length INTEGER,
	field_type   TEXT    NOT NULL,
	group_name   TEXT,
	is_list      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_api_field_spec_code ON api_field_spec (api_code, field_order);
CREATE TABLE IF NOT EXISTS api_field_object (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	api_code          TEXT    NOT NULL,
	parent_field_name TEXT    NOT NULL,
	field_order       INTEGER NOT NULL,
	field_name        TEXT    NOT NULL,
	field_length      INTEGER NOT NULL DEFAULT 0,
	field_type        TEXT    NOT NULL,
	is_list           INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_api_field_object_parent ON api_field_object (api_code, parent_field_name, field_order);
`

// Store is a schema Source backed by a SQLite database.
type Store struct {
	db *sql.DB
}

var _ store.Source = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the tables exist.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite store: empty path")
	}
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store open (%s): %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store ping (%s): %w", path, err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Str("path", path).Msg("sqlite store opened")
	return s, nil
}

// New wraps an existing handle. The caller owns migration.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTables); err != nil {
		return fmt.Errorf("sqlite store migrate: %w", err)
	}
	return nil
}

// TopLevelSpecs returns all top-level specs ordered by type code and order.
func (s *Store) TopLevelSpecs(ctx context.Context) ([]schema.FieldSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, api_code, field_order, field_name, field_length, field_type, group_name
		FROM api_field_spec
		ORDER BY api_code ASC, field_order ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store query api_field_spec: %w", err)
	}
	defer rows.Close()

	var out []schema.FieldSpec
	for rows.Next() {
		var (
			id     int64
			spec   schema.FieldSpec
			length sql.NullInt64
			code   string
			group  sql.NullString
		)
		if err := rows.Scan(&id, &spec.TypeCode, &spec.Order, &spec.Name, &length, &code, &group); err != nil {
			return nil, fmt.Errorf("sqlite store scan api_field_spec: %w", err)
		}
		kind, err := schema.ParseKind(strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("sqlite store api_field_spec id=%d: %w", id, err)
		}
		spec.Kind = kind
		spec.Length = int(length.Int64)
		spec.Group = group.String
		out = append(out, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store iterate api_field_spec: %w", err)
	}
	return out, nil
}

// ChildSpecs returns all nested specs.
func (s *Store) ChildSpecs(ctx context.Context) ([]schema.ChildFieldSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, api_code, parent_field_name, field_order, field_name, field_length, field_type
		FROM api_field_object
		ORDER BY api_code ASC, parent_field_name ASC, field_order ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store query api_field_object: %w", err)
	}
	defer rows.Close()

	var out []schema.ChildFieldSpec
	for rows.Next() {
		var (
			id    int64
			child schema.ChildFieldSpec
			code  string
		)
		if err := rows.Scan(&id, &child.TypeCode, &child.Parent, &child.Order, &child.Name, &child.Length, &code); err != nil {
			return nil, fmt.Errorf("sqlite store scan api_field_object: %w", err)
		}
		kind, err := schema.ParseKind(strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("sqlite store api_field_object id=%d: %w", id, err)
		}
		child.Kind = kind
		out = append(out, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store iterate api_field_object: %w", err)
	}
	return out, nil
}

// Replace swaps the stored specs of every type code present in specs or
// children for the given rows, in one transaction.
func (s *Store) Replace(ctx context.Context, specs []schema.FieldSpec, children []schema.ChildFieldSpec) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	codes := make(map[string]struct{})
	for _, spec := range specs {
		codes[spec.TypeCode] = struct{}{}
	}
	for _, child := range children {
		codes[child.TypeCode] = struct{}{}
	}
	for code := range codes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM api_field_spec WHERE api_code = ?`, code); err != nil {
			return fmt.Errorf("sqlite store clear api_field_spec %q: %w", code, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM api_field_object WHERE api_code = ?`, code); err != nil {
			return fmt.Errorf("sqlite store clear api_field_object %q: %w", code, err)
		}
	}

	for _, spec := range specs {
		if err := insertSpec(ctx, tx, spec); err != nil {
			return err
		}
	}
	for _, child := range children {
		if err := insertChild(ctx, tx, child); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store commit: %w", err)
	}
	log.Info().Int("type_codes", len(codes)).Int("specs", len(specs)).Int("children", len(children)).Msg("sqlite store replaced")
	return nil
}

func insertSpec(ctx context.Context, tx *sql.Tx, spec schema.FieldSpec) error {
	code := spec.Kind.Code()
	if code == "" {
		return fmt.Errorf("sqlite store insert %s.%s: %w", spec.TypeCode, spec.Name, schema.ErrUnknownKind)
	}
	var length sql.NullInt64
	if spec.Length > 0 || spec.Kind.Scalar() {
		length = sql.NullInt64{Int64: int64(spec.Length), Valid: true}
	}
	var group sql.NullString
	if spec.Group != "" {
		group = sql.NullString{String: spec.Group, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO api_field_spec (api_code, field_order, field_name, field_length, field_type, group_name, is_list)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		spec.TypeCode, spec.Order, spec.Name, length, code, group, spec.Kind == schema.KindArray,
	)
	if err != nil {
		return fmt.Errorf("sqlite store insert api_field_spec %s.%s: %w", spec.TypeCode, spec.Name, err)
	}
	return nil
}

func insertChild(ctx context.Context, tx *sql.Tx, child schema.ChildFieldSpec) error {
	code := child.Kind.Code()
	if code == "" {
		return fmt.Errorf("sqlite store insert %s.%s.%s: %w", child.TypeCode, child.Parent, child.Name, schema.ErrUnknownKind)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO api_field_object (api_code, parent_field_name, field_order, field_name, field_length, field_type, is_list)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		child.TypeCode, child.Parent, child.Order, child.Name, child.Length, code, child.Kind == schema.KindArray,
	)
	if err != nil {
		return fmt.Errorf("sqlite store insert api_field_object %s.%s.%s: %w", child.TypeCode, child.Parent, child.Name, err)
	}
	return nil
}
