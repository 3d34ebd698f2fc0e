// Package postgres backs repo.WorkspaceStore with the studio database.
//
// Schema:
//
//	CREATE TABLE workspace_creatives (
//	    position        INT PRIMARY KEY,
//	    creative_id     TEXT NOT NULL,
//	    source_location TEXT NOT NULL,
//	    width           INT NOT NULL,
//	    height          INT NOT NULL,
//	    round           INT NOT NULL DEFAULT 0,
//	    version         INT NOT NULL DEFAULT 0,
//	    group_id        TEXT NOT NULL DEFAULT ''
//	);
//
//	CREATE TABLE workspace_presets (
//	    name       TEXT PRIMARY KEY,
//	    creatives  JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE workspace_activity (
//	    activity_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
//	    occurred_at TIMESTAMPTZ NOT NULL,
//	    actor       TEXT NOT NULL,
//	    request_id  TEXT,
//	    action      TEXT NOT NULL,
//	    target_kind TEXT NOT NULL,
//	    target_id   TEXT NOT NULL,
//	    metadata    JSONB NOT NULL
//	);
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bannerstage-labs/bannerstage-go/internal/repo"
)

type WorkspaceStore struct {
	db *sql.DB
}

func NewWorkspaceStore(db *sql.DB) *WorkspaceStore {
	return &WorkspaceStore{db: db}
}

// SaveWorkspace replaces the persisted grid atomically; the stored order is
// the grid order.
func (s *WorkspaceStore) SaveWorkspace(ctx context.Context, creatives []repo.CreativeRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM workspace_creatives`); err != nil {
		return fmt.Errorf("clear workspace: %w", err)
	}

	for i, c := range creatives {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO workspace_creatives (
				position, creative_id, source_location, width, height, round, version, group_id
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			i,
			c.ID,
			c.SourceLocation,
			c.Width,
			c.Height,
			c.Round,
			c.Version,
			c.GroupID,
		)
		if err != nil {
			return fmt.Errorf("insert creative %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *WorkspaceStore) LoadWorkspace(ctx context.Context) ([]repo.CreativeRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT creative_id, source_location, width, height, round, version, group_id
		 FROM workspace_creatives
		 ORDER BY position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query workspace: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []repo.CreativeRecord
	for rows.Next() {
		var c repo.CreativeRecord
		if err := rows.Scan(&c.ID, &c.SourceLocation, &c.Width, &c.Height, &c.Round, &c.Version, &c.GroupID); err != nil {
			return nil, fmt.Errorf("scan creative: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspace: %w", err)
	}
	return out, nil
}

func (s *WorkspaceStore) SavePreset(ctx context.Context, name string, creatives []repo.CreativeRecord) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("preset name is required")
	}
	payload, err := json.Marshal(creatives)
	if err != nil {
		return fmt.Errorf("marshal preset: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO workspace_presets (name, creatives, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET creatives = EXCLUDED.creatives, updated_at = EXCLUDED.updated_at`,
		name,
		payload,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert preset %s: %w", name, err)
	}
	return nil
}

func (s *WorkspaceStore) ListPresets(ctx context.Context) ([]repo.Preset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name, creatives, updated_at FROM workspace_presets ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query presets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []repo.Preset
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, preset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate presets: %w", err)
	}
	return out, nil
}

func (s *WorkspaceStore) GetPreset(ctx context.Context, name string) (repo.Preset, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT name, creatives, updated_at FROM workspace_presets WHERE name = $1`,
		strings.TrimSpace(name),
	)
	preset, err := scanPreset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return repo.Preset{}, repo.ErrNotFound
	}
	return preset, err
}

func (s *WorkspaceStore) DeletePreset(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM workspace_presets WHERE name = $1`,
		strings.TrimSpace(name),
	)
	if err != nil {
		return fmt.Errorf("delete preset %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete preset %s: %w", name, err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPreset(row rowScanner) (repo.Preset, error) {
	var preset repo.Preset
	var payload []byte
	if err := row.Scan(&preset.Name, &payload, &preset.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repo.Preset{}, err
		}
		return repo.Preset{}, fmt.Errorf("scan preset: %w", err)
	}
	if err := json.Unmarshal(payload, &preset.Creatives); err != nil {
		return repo.Preset{}, fmt.Errorf("decode preset %s: %w", preset.Name, err)
	}
	return preset, nil
}
