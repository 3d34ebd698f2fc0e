// Package repo persists workspace state: the ordered creative list (grid
// order must survive a restart) and named presets. Load failure degrades to
// an empty workspace, never a hard failure.
package repo

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("repo: not found")

type CreativeRecord struct {
	ID             string `json:"id"`
	SourceLocation string `json:"source_location"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Round          int    `json:"round"`
	Version        int    `json:"version"`
	GroupID        string `json:"group_id,omitempty"`
}

type Preset struct {
	Name      string
	Creatives []CreativeRecord
	UpdatedAt time.Time
}

type WorkspaceStore interface {
	SaveWorkspace(ctx context.Context, creatives []CreativeRecord) error
	LoadWorkspace(ctx context.Context) ([]CreativeRecord, error)

	SavePreset(ctx context.Context, name string, creatives []CreativeRecord) error
	ListPresets(ctx context.Context) ([]Preset, error)
	GetPreset(ctx context.Context, name string) (Preset, error)
	DeletePreset(ctx context.Context, name string) error
}
