package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/bannerstage-labs/bannerstage-go/internal/control"
)

func newTestOrchestrator() (*Orchestrator, *control.Bus) {
	bus := control.NewBus()
	return New(bus), bus
}

func addCreative(t *testing.T, o *Orchestrator, id, groupID string) Creative {
	t.Helper()
	added := o.AddCreatives(Creative{
		ID:             id,
		SourceLocation: "/creatives/" + id + "/files/index.html",
		Width:          300,
		Height:         250,
		GroupID:        groupID,
	})
	if len(added) != 1 {
		t.Fatalf("expected 1 added, got %d", len(added))
	}
	return added[0]
}

func TestAddAssignsDefaultsAndKeepsOrder(t *testing.T) {
	o, bus := newTestOrchestrator()
	defer bus.Close()

	added := o.AddCreatives(
		Creative{SourceLocation: "a", Width: 1, Height: 1},
		Creative{SourceLocation: "b", Width: 1, Height: 1},
	)
	if len(added) != 2 {
		t.Fatalf("expected 2 added, got %d", len(added))
	}
	for _, c := range added {
		if c.ID == "" || c.RenderKey == "" {
			t.Fatalf("missing generated identity: %+v", c)
		}
		if c.State != StateLoading {
			t.Fatalf("new creatives start loading, got %s", c.State)
		}
	}

	list := o.List()
	if list[0].SourceLocation != "a" || list[1].SourceLocation != "b" {
		t.Fatal("grid order must follow insertion order")
	}
}

func TestAddIgnoresDuplicateIDs(t *testing.T) {
	o, bus := newTestOrchestrator()
	defer bus.Close()

	addCreative(t, o, "c1", "")
	if added := o.AddCreatives(Creative{ID: "c1", Width: 1, Height: 1}); len(added) != 0 {
		t.Fatalf("duplicate id must be ignored, got %d added", len(added))
	}
}

func TestSelectionLifecycle(t *testing.T) {
	o, bus := newTestOrchestrator()
	defer bus.Close()

	addCreative(t, o, "c1", "")
	addCreative(t, o, "c2", "")

	selected, err := o.ToggleSelection("c1")
	if err != nil || !selected {
		t.Fatalf("toggle on: %v %v", selected, err)
	}
	selected, err = o.ToggleSelection("c1")
	if err != nil || selected {
		t.Fatalf("toggle off: %v %v", selected, err)
	}
	if _, err := o.ToggleSelection("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	o.SelectAll()
	if got := o.Selected(); len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Fatalf("selected in grid order wanted, got %v", got)
	}

	removed := o.RemoveSelected()
	if len(removed) != 2 {
		t.Fatalf("expected both removed, got %v", removed)
	}
	if len(o.List()) != 0 {
		t.Fatal("registry must be empty after removing the selection")
	}
}

func TestIndividualCommandRoutesRegardlessOfState(t *testing.T) {
	o, bus := newTestOrchestrator()
	sub := bus.Subscribe()
	defer bus.Close()

	addCreative(t, o, "c1", "")

	err := o.SendCommand(control.Message{Action: control.ActionPlay, BannerID: "c1", RequestID: "r1"})
	if err != nil {
		t.Fatalf("individual command on loading creative must route: %v", err)
	}
	select {
	case m := <-sub.C:
		if m.Action != control.ActionPlay || m.BannerID != "c1" {
			t.Fatalf("unexpected broadcast: %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("command not broadcast")
	}
}

func TestIndividualCommandUnknownTarget(t *testing.T) {
	o, bus := newTestOrchestrator()
	defer bus.Close()

	err := o.SendCommand(control.Message{Action: control.ActionPlay, BannerID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGroupCommandGatedOnAllReady(t *testing.T) {
	o, bus := newTestOrchestrator()
	defer bus.Close()

	addCreative(t, o, "c1", "g1")
	addCreative(t, o, "c2", "g1")

	err := o.SendCommand(control.Message{Action: control.ActionGlobalPlay, GroupID: "g1"})
	if !errors.Is(err, ErrGroupNotReady) {
		t.Fatalf("expected ErrGroupNotReady, got %v", err)
	}

	_ = o.SetReady("c1")
	err = o.SendCommand(control.Message{Action: control.ActionGlobalPlay, GroupID: "g1"})
	if !errors.Is(err, ErrGroupNotReady) {
		t.Fatalf("one loading member must still gate, got %v", err)
	}

	_ = o.SetReady("c2")
	if err := o.SendCommand(control.Message{Action: control.ActionGlobalPlay, GroupID: "g1"}); err != nil {
		t.Fatalf("all ready, command must route: %v", err)
	}
}

func TestGroupCommandUnknownGroup(t *testing.T) {
	o, bus := newTestOrchestrator()
	defer bus.Close()

	err := o.SendCommand(control.Message{Action: control.ActionGlobalPause, GroupID: "ghost"})
	if !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestNonCommandRejected(t *testing.T) {
	o, bus := newTestOrchestrator()
	defer bus.Close()

	err := o.SendCommand(control.Message{Action: control.ActionReady, BannerID: "c1"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestSoftReloadIsGatedRestart(t *testing.T) {
	o, bus := newTestOrchestrator()
	sub := bus.Subscribe()
	defer bus.Close()

	addCreative(t, o, "c1", "g1")

	if err := o.SoftReloadGroup("g1"); !errors.Is(err, ErrGroupNotReady) {
		t.Fatalf("soft reload of a loading group must gate, got %v", err)
	}

	_ = o.SetReady("c1")
	if err := o.SoftReloadGroup("g1"); err != nil {
		t.Fatalf("soft reload: %v", err)
	}
	select {
	case m := <-sub.C:
		if m.Action != control.ActionGlobalRestart || m.GroupID != "g1" {
			t.Fatalf("expected global restart for g1, got %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("restart not broadcast")
	}
}

func TestHardReloadAlwaysAllowedAndScoped(t *testing.T) {
	o, bus := newTestOrchestrator()
	defer bus.Close()

	inGroup := addCreative(t, o, "c1", "g1")
	addCreative(t, o, "c2", "g1")
	outside := addCreative(t, o, "c3", "g2")

	_ = o.SetReady("c1")
	_ = o.SetReady("c3")

	reloaded, err := o.HardReloadGroup("g1")
	if err != nil {
		t.Fatalf("hard reload with loading members must be allowed: %v", err)
	}
	if len(reloaded) != 2 {
		t.Fatalf("expected both members reloaded, got %d", len(reloaded))
	}
	for _, c := range reloaded {
		if c.State != StateLoading {
			t.Fatalf("reloaded member must be loading, got %s", c.State)
		}
		if c.ID == "c1" && c.RenderKey == inGroup.RenderKey {
			t.Fatal("hard reload must change the render key")
		}
	}

	// Membership boundaries hold: g2 is untouched.
	if !o.IsReady("c3") {
		t.Fatal("hard reload must not clear readiness outside the group")
	}
	got, _ := o.Get("c3")
	if got.RenderKey != outside.RenderKey {
		t.Fatal("hard reload must not touch other groups' render keys")
	}
}

func TestGlobalControlGroupLargestWinsTieFirstSeen(t *testing.T) {
	o, bus := newTestOrchestrator()
	defer bus.Close()

	addCreative(t, o, "a1", "gA")
	addCreative(t, o, "b1", "gB")
	addCreative(t, o, "b2", "gB")

	group, ok := o.GlobalControlGroup()
	if !ok || group != "gB" {
		t.Fatalf("largest group must win, got %q", group)
	}

	// Bring gA level with gB: the tie goes to the group seen first.
	addCreative(t, o, "a2", "gA")
	group, ok = o.GlobalControlGroup()
	if !ok || group != "gA" {
		t.Fatalf("tie must break to first-seen group, got %q", group)
	}
}

func TestGlobalControlGroupWithoutGroups(t *testing.T) {
	o, bus := newTestOrchestrator()
	defer bus.Close()

	addCreative(t, o, "c1", "")
	if group, ok := o.GlobalControlGroup(); ok {
		t.Fatalf("no groups means no global controls, got %q", group)
	}
}

func TestRestoreResetsStateToLoading(t *testing.T) {
	o, bus := newTestOrchestrator()
	defer bus.Close()

	addCreative(t, o, "old", "")
	o.Restore([]Creative{
		{ID: "n1", SourceLocation: "x", Width: 1, Height: 1, State: StateReady, GroupID: "g1"},
		{ID: "n2", SourceLocation: "y", Width: 1, Height: 1, State: StateErrored, LoadError: "stale"},
		{ID: "", SourceLocation: "skipped"},
	})

	list := o.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 restored, got %d", len(list))
	}
	if _, ok := o.Get("old"); ok {
		t.Fatal("restore must replace the previous registry")
	}
	for _, c := range list {
		if c.State != StateLoading || c.LoadError != "" {
			t.Fatalf("restored creative must start loading, got %+v", c)
		}
		if c.RenderKey == "" {
			t.Fatal("restored creative needs a render key")
		}
	}
	if got := o.Loading(); len(got) != 2 || got[0] != "n1" || got[1] != "n2" {
		t.Fatalf("loading set in grid order wanted, got %v", got)
	}
}

func TestSetErroredAndRecovery(t *testing.T) {
	o, bus := newTestOrchestrator()
	defer bus.Close()

	addCreative(t, o, "c1", "")
	if err := o.SetErrored("c1", "load timed out"); err != nil {
		t.Fatalf("set errored: %v", err)
	}
	c, _ := o.Get("c1")
	if c.State != StateErrored || c.LoadError != "load timed out" {
		t.Fatalf("unexpected errored state: %+v", c)
	}

	if err := o.SetReady("c1"); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	c, _ = o.Get("c1")
	if c.State != StateReady || c.LoadError != "" {
		t.Fatalf("readiness must clear the load error: %+v", c)
	}
}
