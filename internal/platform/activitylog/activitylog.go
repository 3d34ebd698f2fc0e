// Package activitylog records operator actions against the workspace
// (uploads, reloads, commands, captures) as append-only rows.
package activitylog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Entry struct {
	OccurredAt time.Time
	Actor      string
	RequestID  string
	Action     string
	TargetKind string
	TargetID   string
	Metadata   any
}

type ExecContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (e Entry) Validate() error {
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("Actor is required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("Action is required")
	}
	if strings.TrimSpace(e.TargetKind) == "" {
		return errors.New("TargetKind is required")
	}
	if strings.TrimSpace(e.TargetID) == "" {
		return errors.New("TargetID is required")
	}
	return nil
}

func Insert(ctx context.Context, db ExecContexter, entry Entry) error {
	if db == nil {
		return errors.New("db is required")
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var requestID sql.NullString
	if strings.TrimSpace(entry.RequestID) != "" {
		requestID = sql.NullString{String: strings.TrimSpace(entry.RequestID), Valid: true}
	}

	_, err = db.ExecContext(
		ctx,
		`INSERT INTO workspace_activity (
			occurred_at,
			actor,
			request_id,
			action,
			target_kind,
			target_id,
			metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.OccurredAt.UTC(),
		strings.TrimSpace(entry.Actor),
		requestID,
		strings.TrimSpace(entry.Action),
		strings.TrimSpace(entry.TargetKind),
		strings.TrimSpace(entry.TargetID),
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("insert workspace_activity: %w", err)
	}
	return nil
}
