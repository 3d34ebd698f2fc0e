package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bannerstage-labs/bannerstage-go/internal/control"
)

type fakeRuntime struct {
	mu      sync.Mutex
	globals map[string]any
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{globals: make(map[string]any)}
}

func (r *fakeRuntime) Lookup(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.globals[name]
	return v, ok
}

func (r *fakeRuntime) set(name string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globals[name] = v
}

type fakeTimeline struct {
	mu     sync.Mutex
	plays  int
	pauses int
	seeks  []float64
}

func (tl *fakeTimeline) Play() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.plays++
}

func (tl *fakeTimeline) Pause() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.pauses++
}

func (tl *fakeTimeline) Seek(position float64) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.seeks = append(tl.seeks, position)
}

func (tl *fakeTimeline) counts() (plays, pauses int, seeks []float64) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.plays, tl.pauses, append([]float64(nil), tl.seeks...)
}

func startAgent(t *testing.T, bus *control.Bus, rt Runtime, bannerID, groupID string) *Agent {
	t.Helper()
	a := Start(Config{
		BannerID:     bannerID,
		GroupID:      groupID,
		Runtime:      rt,
		Bus:          bus,
		PollInterval: 5 * time.Millisecond,
	})
	t.Cleanup(a.Close)
	return a
}

// awaitAction drains the subscription until a message with the wanted action
// arrives for the given banner, or the deadline passes.
func awaitAction(t *testing.T, sub *control.Subscription, action, bannerID string) control.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m, open := <-sub.C:
			if !open {
				t.Fatalf("channel closed while waiting for %s", action)
			}
			if m.Action == action && (bannerID == "" || m.BannerID == bannerID) {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", action)
		}
	}
}

func assertNoAction(t *testing.T, sub *control.Subscription, action string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case m, open := <-sub.C:
			if !open {
				return
			}
			if m.Action == action {
				t.Fatalf("unexpected %s: %+v", action, m)
			}
		case <-deadline:
			return
		}
	}
}

func TestDiscoveryPausesTimelineAndAnnouncesReady(t *testing.T) {
	bus := control.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	rt := newFakeRuntime()
	tl := &fakeTimeline{}
	rt.set("timeline", Timeline(tl))

	startAgent(t, bus, rt, "b1", "g1")

	ready := awaitAction(t, sub, control.ActionReady, "b1")
	if ready.GroupID != "g1" {
		t.Fatalf("ready carries wrong group: %+v", ready)
	}
	if _, pauses, _ := tl.counts(); pauses != 1 {
		t.Fatalf("expected discovery to pause once, got %d", pauses)
	}
}

func TestCommandBeforeDiscoveryReplaysAfterReady(t *testing.T) {
	bus := control.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	rt := newFakeRuntime()
	startAgent(t, bus, rt, "b1", "")

	bus.Publish(control.Message{Action: control.ActionPlay, BannerID: "b1", RequestID: "r1"})

	// Give the agent time to park the command, then reveal the timeline.
	time.Sleep(30 * time.Millisecond)
	tl := &fakeTimeline{}
	rt.set("timeline", Timeline(tl))

	awaitAction(t, sub, control.ActionReady, "b1")
	result := awaitAction(t, sub, control.ActionPlayPauseResult, "b1")
	if result.RequestID != "r1" || !result.IsPlaying {
		t.Fatalf("replayed command answered wrong: %+v", result)
	}
	if plays, _, _ := tl.counts(); plays != 1 {
		t.Fatalf("expected exactly one play, got %d", plays)
	}

	// The slot is cleared after replay; nothing else may fire.
	assertNoAction(t, sub, control.ActionPlayPauseResult, 50*time.Millisecond)
}

func TestPendingSlotKeepsOnlyMostRecentCommand(t *testing.T) {
	bus := control.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	rt := newFakeRuntime()
	startAgent(t, bus, rt, "b1", "")

	bus.Publish(control.Message{Action: control.ActionPlay, BannerID: "b1", RequestID: "r1"})
	bus.Publish(control.Message{Action: control.ActionPause, BannerID: "b1", RequestID: "r2"})

	time.Sleep(30 * time.Millisecond)
	tl := &fakeTimeline{}
	rt.set("timeline", Timeline(tl))

	result := awaitAction(t, sub, control.ActionPlayPauseResult, "b1")
	if result.RequestID != "r2" || result.IsPlaying {
		t.Fatalf("expected the later pause to replay, got %+v", result)
	}
	if plays, _, _ := tl.counts(); plays != 0 {
		t.Fatalf("superseded play must not execute, got %d plays", plays)
	}
}

func TestSiblingReadyEventDoesNotDisturbPendingSlot(t *testing.T) {
	bus := control.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	rt := newFakeRuntime()
	startAgent(t, bus, rt, "b1", "g1")

	bus.Publish(control.Message{Action: control.ActionPlay, BannerID: "b1", RequestID: "r1"})
	// A faster group member announces ready; it is not a command and must not
	// overwrite the parked play.
	bus.Publish(control.Message{Action: control.ActionReady, BannerID: "b2", GroupID: "g1"})

	time.Sleep(30 * time.Millisecond)
	tl := &fakeTimeline{}
	rt.set("timeline", Timeline(tl))

	result := awaitAction(t, sub, control.ActionPlayPauseResult, "b1")
	if result.RequestID != "r1" || !result.IsPlaying {
		t.Fatalf("parked play must survive sibling traffic, got %+v", result)
	}
	if plays, _, _ := tl.counts(); plays != 1 {
		t.Fatalf("expected exactly one play, got %d", plays)
	}
}

func TestIgnoresCommandsForOtherTargets(t *testing.T) {
	bus := control.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	rt := newFakeRuntime()
	tl := &fakeTimeline{}
	rt.set("timeline", Timeline(tl))
	startAgent(t, bus, rt, "b1", "g1")
	awaitAction(t, sub, control.ActionReady, "b1")

	bus.Publish(control.Message{Action: control.ActionPlay, BannerID: "b2", RequestID: "other"})
	bus.Publish(control.Message{Action: control.ActionGlobalPlay, GroupID: "g2"})
	assertNoAction(t, sub, control.ActionPlayPauseResult, 50*time.Millisecond)

	bus.Publish(control.Message{Action: control.ActionGlobalPlay, GroupID: "g1"})
	waitUntil(t, func() bool {
		plays, _, _ := tl.counts()
		return plays == 1
	})
}

func TestUngroupedAgentIgnoresGroupCommands(t *testing.T) {
	bus := control.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	rt := newFakeRuntime()
	tl := &fakeTimeline{}
	rt.set("timeline", Timeline(tl))
	startAgent(t, bus, rt, "b1", "")
	awaitAction(t, sub, control.ActionReady, "b1")

	bus.Publish(control.Message{Action: control.ActionGlobalPlay, GroupID: "g1"})
	time.Sleep(50 * time.Millisecond)
	if plays, _, _ := tl.counts(); plays != 0 {
		t.Fatalf("ungrouped agent must ignore group commands, got %d plays", plays)
	}
}

func TestBareFunctionTimelineFallback(t *testing.T) {
	bus := control.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	var mu sync.Mutex
	var plays, pauses int
	rt := newFakeRuntime()
	rt.set("play", func() { mu.Lock(); plays++; mu.Unlock() })
	rt.set("pause", func() { mu.Lock(); pauses++; mu.Unlock() })

	startAgent(t, bus, rt, "b1", "")
	awaitAction(t, sub, control.ActionReady, "b1")

	mu.Lock()
	discoveryPauses := pauses
	mu.Unlock()
	if discoveryPauses != 1 {
		t.Fatalf("expected discovery pause via bare function, got %d", discoveryPauses)
	}

	bus.Publish(control.Message{Action: control.ActionPlay, BannerID: "b1", RequestID: "r1"})
	awaitAction(t, sub, control.ActionPlayPauseResult, "b1")
	mu.Lock()
	defer mu.Unlock()
	if plays != 1 {
		t.Fatalf("expected one play call, got %d", plays)
	}
}

func TestRootTimelineFunctionTakesPrecedence(t *testing.T) {
	rt := newFakeRuntime()
	fromFn := &fakeTimeline{}
	global := &fakeTimeline{}
	rt.set("getRootTimeline", func() Timeline { return fromFn })
	rt.set("timeline", Timeline(global))

	tl, ok := ResolveTimeline(rt)
	if !ok {
		t.Fatal("expected a timeline")
	}
	tl.Play()
	if plays, _, _ := fromFn.counts(); plays != 1 {
		t.Fatal("getRootTimeline must win over the global timeline object")
	}
	if plays, _, _ := global.counts(); plays != 0 {
		t.Fatal("global timeline must not be driven when the export wins")
	}
}

func TestCommandsResolveTimelineFresh(t *testing.T) {
	bus := control.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	rt := newFakeRuntime()
	old := &fakeTimeline{}
	rt.set("timeline", Timeline(old))
	startAgent(t, bus, rt, "b1", "")
	awaitAction(t, sub, control.ActionReady, "b1")

	// The runtime swaps its root timeline; the agent must not hold the stale one.
	fresh := &fakeTimeline{}
	rt.set("timeline", Timeline(fresh))

	bus.Publish(control.Message{Action: control.ActionPlay, BannerID: "b1", RequestID: "r1"})
	awaitAction(t, sub, control.ActionPlayPauseResult, "b1")

	if plays, _, _ := fresh.counts(); plays != 1 {
		t.Fatalf("expected fresh timeline driven, got %d plays", plays)
	}
	if plays, _, _ := old.counts(); plays != 0 {
		t.Fatalf("stale timeline must not be driven, got %d plays", plays)
	}
}

func TestGlobalRestartSeeksToStartThenPlays(t *testing.T) {
	bus := control.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	rt := newFakeRuntime()
	tl := &fakeTimeline{}
	rt.set("timeline", Timeline(tl))
	startAgent(t, bus, rt, "b1", "g1")
	awaitAction(t, sub, control.ActionReady, "b1")

	bus.Publish(control.Message{Action: control.ActionGlobalRestart, GroupID: "g1"})
	waitUntil(t, func() bool {
		plays, _, seeks := tl.counts()
		return plays == 1 && len(seeks) == 1 && seeks[0] == 0
	})
}

func TestCaptureWithoutSurfaceReportsFailure(t *testing.T) {
	bus := control.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	rt := newFakeRuntime()
	rt.set("timeline", Timeline(&fakeTimeline{}))
	startAgent(t, bus, rt, "b1", "")
	awaitAction(t, sub, control.ActionReady, "b1")

	bus.Publish(control.Message{Action: control.ActionCapture, BannerID: "b1", RequestID: "cap1"})
	failed := awaitAction(t, sub, control.ActionScreenshotFailed, "b1")
	if failed.RequestID != "cap1" || failed.Error != "noSurface" {
		t.Fatalf("unexpected failure message: %+v", failed)
	}
}

type fakeSurface struct {
	data []byte
	err  error
}

func (s *fakeSurface) Rasterize(ctx context.Context, width, height int) ([]byte, error) {
	return s.data, s.err
}

func TestCaptureProducesDataURL(t *testing.T) {
	bus := control.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	rt := newFakeRuntime()
	rt.set("timeline", Timeline(&fakeTimeline{}))

	a := Start(Config{
		BannerID:     "b1",
		Runtime:      rt,
		Surface:      &fakeSurface{data: []byte("png-bytes")},
		Bus:          bus,
		PollInterval: 5 * time.Millisecond,
	})
	defer a.Close()
	awaitAction(t, sub, control.ActionReady, "b1")

	bus.Publish(control.Message{
		Action:    control.ActionCapture,
		BannerID:  "b1",
		RequestID: "cap1",
		Width:     300,
		Height:    250,
	})
	result := awaitAction(t, sub, control.ActionScreenshotResult, "b1")
	if result.RequestID != "cap1" || result.Width != 300 || result.Height != 250 {
		t.Fatalf("unexpected result envelope: %+v", result)
	}
	if !strings.HasPrefix(result.Image, "data:image/png;base64,") {
		t.Fatalf("expected data URL payload, got %q", result.Image)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
