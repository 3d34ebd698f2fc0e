// Package agent implements the control agent that runs inside each creative's
// execution context. It discovers the creative's master timeline by polling,
// holds commands issued before discovery in a single pending slot, and answers
// scoped commands from the shared control channel.
package agent

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/bannerstage-labs/bannerstage-go/internal/control"
)

const (
	defaultPollInterval   = 100 * time.Millisecond
	defaultCaptureTimeout = 5 * time.Second
)

type state int

const (
	stateDiscovering state = iota
	stateReady
)

type Config struct {
	BannerID string
	GroupID  string
	Runtime  Runtime
	Surface  Surface
	Bus      *control.Bus

	PollInterval   time.Duration
	CaptureTimeout time.Duration
	Logger         *slog.Logger
}

type Agent struct {
	cfg  Config
	sub  *control.Subscription
	done chan struct{}

	closeOnce sync.Once
	stopped   chan struct{}
}

// Start subscribes the agent to the control channel and begins timeline
// discovery. The agent owns one goroutine until Close.
func Start(cfg Config) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = defaultCaptureTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Agent{
		cfg:     cfg,
		sub:     cfg.Bus.Subscribe(),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Agent) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
		a.sub.Close()
	})
	<-a.stopped
}

func (a *Agent) run() {
	defer close(a.stopped)

	st := stateDiscovering
	// Single-slot pending command, last writer wins. Deliberately not a
	// queue: only the most recent pre-discovery command replays.
	var pending *control.Message

	poll := time.NewTicker(a.cfg.PollInterval)
	defer poll.Stop()

	if a.discover() {
		st = stateReady
		poll.Stop()
		pending = a.replay(pending)
	}

	for {
		select {
		case <-a.done:
			return

		case <-poll.C:
			if st != stateDiscovering {
				continue
			}
			if a.discover() {
				st = stateReady
				poll.Stop()
				pending = a.replay(pending)
			}

		case m, ok := <-a.sub.C:
			if !ok {
				return
			}
			if !m.IsCommand() || !a.addressedToMe(m) {
				continue
			}
			if st == stateDiscovering {
				held := m
				pending = &held
				continue
			}
			a.execute(m)
		}
	}
}

// discover probes once for the master timeline. On the first hit the timeline
// is paused immediately (creatives start paused under remote control) and the
// ready event is emitted.
func (a *Agent) discover() bool {
	tl, ok := ResolveTimeline(a.cfg.Runtime)
	if !ok {
		return false
	}
	tl.Pause()
	a.cfg.Logger.Debug("timeline discovered", "banner_id", a.cfg.BannerID)
	a.cfg.Bus.Publish(control.Message{
		Action:   control.ActionReady,
		BannerID: a.cfg.BannerID,
		GroupID:  a.cfg.GroupID,
	})
	return true
}

func (a *Agent) replay(pending *control.Message) *control.Message {
	if pending != nil {
		a.execute(*pending)
	}
	return nil
}

func (a *Agent) addressedToMe(m control.Message) bool {
	target := m.Target()
	switch target.Kind {
	case control.TargetIndividual:
		return target.ID == a.cfg.BannerID
	case control.TargetGroup:
		return a.cfg.GroupID != "" && target.ID == a.cfg.GroupID
	default:
		return false
	}
}

func (a *Agent) execute(m control.Message) {
	switch m.Action {
	case control.ActionPlay:
		a.playPause(m, true)
	case control.ActionPause:
		a.playPause(m, false)
	case control.ActionCapture:
		a.capture(m)
	case control.ActionGlobalPlay:
		if tl, ok := ResolveTimeline(a.cfg.Runtime); ok {
			tl.Play()
		}
	case control.ActionGlobalPause:
		if tl, ok := ResolveTimeline(a.cfg.Runtime); ok {
			tl.Pause()
		}
	case control.ActionGlobalRestart:
		if tl, ok := ResolveTimeline(a.cfg.Runtime); ok {
			tl.Seek(0)
			tl.Play()
		}
	}
}

func (a *Agent) playPause(m control.Message, play bool) {
	tl, ok := ResolveTimeline(a.cfg.Runtime)
	if !ok {
		a.cfg.Bus.Publish(control.Message{
			Action:    control.ActionPlayPauseFailed,
			BannerID:  a.cfg.BannerID,
			RequestID: m.RequestID,
		})
		return
	}
	if play {
		tl.Play()
	} else {
		tl.Pause()
	}
	a.cfg.Bus.Publish(control.Message{
		Action:    control.ActionPlayPauseResult,
		BannerID:  a.cfg.BannerID,
		RequestID: m.RequestID,
		IsPlaying: play,
	})
}

func (a *Agent) capture(m control.Message) {
	if a.cfg.Surface == nil {
		a.cfg.Bus.Publish(control.Message{
			Action:    control.ActionScreenshotFailed,
			BannerID:  a.cfg.BannerID,
			RequestID: m.RequestID,
			Error:     "noSurface",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CaptureTimeout)
	defer cancel()
	img, err := a.cfg.Surface.Rasterize(ctx, m.Width, m.Height)
	if err != nil {
		a.cfg.Bus.Publish(control.Message{
			Action:    control.ActionScreenshotFailed,
			BannerID:  a.cfg.BannerID,
			RequestID: m.RequestID,
			Error:     err.Error(),
		})
		return
	}

	a.cfg.Bus.Publish(control.Message{
		Action:    control.ActionScreenshotResult,
		BannerID:  a.cfg.BannerID,
		RequestID: m.RequestID,
		Width:     m.Width,
		Height:    m.Height,
		Image:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
	})
}
