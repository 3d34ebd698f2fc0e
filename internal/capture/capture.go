// Package capture obtains a still image of a creative. Static content is
// rasterized host-side; opaque content is delegated to the creative's control
// agent over the shared channel, correlated by a per-request nonce so
// overlapping captures of the same creative cannot cross-talk.
package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bannerstage-labs/bannerstage-go/internal/control"
	"github.com/bannerstage-labs/bannerstage-go/internal/orchestrator"
)

const defaultTimeout = 10 * time.Second

type ErrorReason string

const (
	ReasonTimeout               ErrorReason = "timeout"
	ReasonCrossOriginRestricted ErrorReason = "crossOriginRestricted"
	ReasonNoSurface             ErrorReason = "noSurface"
	ReasonAgentFailure          ErrorReason = "agentFailure"
)

// CaptureError is always recoverable by retrying; it never takes down the
// host or other creatives.
type CaptureError struct {
	Reason ErrorReason
	Detail string
}

func (e *CaptureError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("capture: %s: %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("capture: %s", e.Reason)
}

type Image struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Rasterizer renders inline/static content directly in the host.
type Rasterizer interface {
	Rasterize(ctx context.Context, creative orchestrator.Creative) (Image, error)
}

// ScreenshotArchive stores successful captures; failures are logged only.
type ScreenshotArchive interface {
	Put(ctx context.Context, creativeID string, nonce string, img Image) error
}

type Service struct {
	Bus     *control.Bus
	Inline  Rasterizer
	Archive ScreenshotArchive
	Timeout time.Duration
	Logger  *slog.Logger
}

// Capture is idempotent per invocation; each call is independent.
func (s *Service) Capture(ctx context.Context, creative orchestrator.Creative) (Image, error) {
	var img Image
	var err error
	if s.Inline != nil && isStaticSource(creative.SourceLocation) {
		img, err = s.Inline.Rasterize(ctx, creative)
	} else {
		img, err = s.delegated(ctx, creative)
	}
	if err != nil {
		return Image{}, err
	}

	if s.Archive != nil {
		nonce := uuid.NewString()
		if archiveErr := s.Archive.Put(ctx, creative.ID, nonce, img); archiveErr != nil && s.Logger != nil {
			s.Logger.Warn("screenshot archive failed", "creative_id", creative.ID, "error", archiveErr)
		}
	}
	return img, nil
}

func (s *Service) delegated(ctx context.Context, creative orchestrator.Creative) (Image, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// Subscribe before publishing so the response cannot slip past us.
	sub := s.Bus.Subscribe()
	defer sub.Close()

	nonce := uuid.NewString()
	s.Bus.Publish(control.Message{
		Action:    control.ActionCapture,
		BannerID:  creative.ID,
		RequestID: nonce,
		Width:     creative.Width,
		Height:    creative.Height,
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Image{}, ctx.Err()
		case <-timer.C:
			return Image{}, &CaptureError{Reason: ReasonTimeout}
		case m, ok := <-sub.C:
			if !ok {
				return Image{}, &CaptureError{Reason: ReasonTimeout, Detail: "channel closed"}
			}
			if !s.matches(m, creative.ID, nonce) {
				continue
			}
			switch m.Action {
			case control.ActionScreenshotResult:
				return decodeImage(m, creative)
			case control.ActionScreenshotFailed:
				return Image{}, failureFromWire(m.Error)
			}
		}
	}
}

// matches correlates a response with this request. Nonce match is
// authoritative; a bare bannerId match is accepted only from agents that
// echoed no nonce at all.
func (s *Service) matches(m control.Message, creativeID, nonce string) bool {
	if m.Action != control.ActionScreenshotResult && m.Action != control.ActionScreenshotFailed {
		return false
	}
	if m.RequestID != "" {
		return m.RequestID == nonce
	}
	return m.BannerID == creativeID
}

func decodeImage(m control.Message, creative orchestrator.Creative) (Image, error) {
	raw := m.Image
	contentType := "image/png"
	if strings.HasPrefix(raw, "data:") {
		rest, ok := strings.CutPrefix(raw, "data:")
		if !ok {
			return Image{}, &CaptureError{Reason: ReasonAgentFailure, Detail: "malformed data url"}
		}
		meta, payload, ok := strings.Cut(rest, ",")
		if !ok {
			return Image{}, &CaptureError{Reason: ReasonAgentFailure, Detail: "malformed data url"}
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		raw = payload
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Image{}, &CaptureError{Reason: ReasonAgentFailure, Detail: "undecodable image payload"}
	}
	width, height := m.Width, m.Height
	if width == 0 {
		width = creative.Width
	}
	if height == 0 {
		height = creative.Height
	}
	return Image{Data: data, ContentType: contentType, Width: width, Height: height}, nil
}

func failureFromWire(reason string) *CaptureError {
	switch {
	case strings.EqualFold(reason, string(ReasonNoSurface)):
		return &CaptureError{Reason: ReasonNoSurface}
	case strings.Contains(strings.ToLower(reason), "cross"):
		return &CaptureError{Reason: ReasonCrossOriginRestricted, Detail: reason}
	default:
		return &CaptureError{Reason: ReasonAgentFailure, Detail: reason}
	}
}

func isStaticSource(sourceLocation string) bool {
	loc := strings.ToLower(sourceLocation)
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif"} {
		if strings.HasSuffix(loc, ext) {
			return true
		}
	}
	return false
}
