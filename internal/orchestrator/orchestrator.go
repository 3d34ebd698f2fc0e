// Package orchestrator owns the workspace registry: every creative's record,
// lifecycle state, selection, and group membership. It is the single writer
// for all of that state and routes control commands onto the shared channel.
package orchestrator

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bannerstage-labs/bannerstage-go/internal/control"
)

var (
	ErrNotFound      = errors.New("creative not found")
	ErrGroupNotFound = errors.New("group not found")
	// ErrGroupNotReady gates group commands: a group command runs only when
	// every member of the target group is Ready. Hard reload is exempt.
	ErrGroupNotReady  = errors.New("group has members that are not ready")
	ErrUnknownCommand = errors.New("unknown command action")
)

type LifecycleState string

const (
	StateLoading LifecycleState = "loading"
	StateReady   LifecycleState = "ready"
	StateErrored LifecycleState = "errored"
)

// Creative is one embeddable unit in the workspace. Width and height are
// fixed at creation; only a fresh ingestion replaces them. RenderKey changes
// force re-creation of the render surface.
type Creative struct {
	ID             string
	SourceLocation string
	Width          int
	Height         int
	Round          int
	Version        int
	GroupID        string
	RenderKey      string
	State          LifecycleState
	LoadError      string
}

type Orchestrator struct {
	mu         sync.Mutex
	order      []string
	creatives  map[string]*Creative
	selected   map[string]struct{}
	groupOrder []string
	bus        *control.Bus
}

func New(bus *control.Bus) *Orchestrator {
	return &Orchestrator{
		creatives: make(map[string]*Creative),
		selected:  make(map[string]struct{}),
		bus:       bus,
	}
}

// AddCreatives registers new creatives in grid order. Each starts Loading
// with a fresh render key; ids are assigned here when the caller left them
// empty.
func (o *Orchestrator) AddCreatives(creatives ...Creative) []Creative {
	o.mu.Lock()
	defer o.mu.Unlock()

	added := make([]Creative, 0, len(creatives))
	for _, c := range creatives {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, exists := o.creatives[c.ID]; exists {
			continue
		}
		if c.RenderKey == "" {
			c.RenderKey = uuid.NewString()
		}
		if c.State == "" {
			c.State = StateLoading
		}
		stored := c
		o.creatives[c.ID] = &stored
		o.order = append(o.order, c.ID)
		o.noteGroup(c.GroupID)
		added = append(added, c)
	}
	return added
}

func (o *Orchestrator) noteGroup(groupID string) {
	if groupID == "" {
		return
	}
	for _, g := range o.groupOrder {
		if g == groupID {
			return
		}
	}
	o.groupOrder = append(o.groupOrder, groupID)
}

func (o *Orchestrator) Get(id string) (Creative, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.creatives[id]
	if !ok {
		return Creative{}, false
	}
	return *c, true
}

// List returns creatives in insertion (grid) order.
func (o *Orchestrator) List() []Creative {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Creative, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, *o.creatives[id])
	}
	return out
}

func (o *Orchestrator) RemoveCreative(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.creatives[id]; !ok {
		return ErrNotFound
	}
	o.removeLocked(id)
	return nil
}

// RemoveSelected removes every selected creative and returns their ids.
func (o *Orchestrator) RemoveSelected() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	removed := make([]string, 0, len(o.selected))
	for _, id := range append([]string(nil), o.order...) {
		if _, ok := o.selected[id]; ok {
			o.removeLocked(id)
			removed = append(removed, id)
		}
	}
	return removed
}

func (o *Orchestrator) removeLocked(id string) {
	delete(o.creatives, id)
	delete(o.selected, id)
	for i, existing := range o.order {
		if existing == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

func (o *Orchestrator) ToggleSelection(id string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.creatives[id]; !ok {
		return false, ErrNotFound
	}
	if _, ok := o.selected[id]; ok {
		delete(o.selected, id)
		return false, nil
	}
	o.selected[id] = struct{}{}
	return true, nil
}

func (o *Orchestrator) SelectAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id := range o.creatives {
		o.selected[id] = struct{}{}
	}
}

func (o *Orchestrator) DeselectAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.selected)
}

func (o *Orchestrator) Selected() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.selected))
	for _, id := range o.order {
		if _, ok := o.selected[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// SetReady marks a creative Ready. Host-observed readiness and agent-announced
// readiness both land here; content that never runs an agent (static images)
// is marked by the host directly.
func (o *Orchestrator) SetReady(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.creatives[id]
	if !ok {
		return ErrNotFound
	}
	c.State = StateReady
	c.LoadError = ""
	return nil
}

func (o *Orchestrator) SetErrored(id string, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.creatives[id]
	if !ok {
		return ErrNotFound
	}
	c.State = StateErrored
	c.LoadError = reason
	return nil
}

func (o *Orchestrator) IsReady(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.creatives[id]
	return ok && c.State == StateReady
}

// ReadySet reports the ids currently Ready, in grid order.
func (o *Orchestrator) ReadySet() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.order))
	for _, id := range o.order {
		if o.creatives[id].State == StateReady {
			out = append(out, id)
		}
	}
	return out
}

func (o *Orchestrator) groupMembersLocked(groupID string) []string {
	var members []string
	for _, id := range o.order {
		if o.creatives[id].GroupID == groupID {
			members = append(members, id)
		}
	}
	return members
}

func (o *Orchestrator) GroupMembers(groupID string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.groupMembersLocked(groupID)
}

// GlobalControlGroup resolves which group the global controls drive: the one
// with the most members, ties broken by first-seen order. Only one group is
// globally controllable at a time.
func (o *Orchestrator) GlobalControlGroup() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	counts := make(map[string]int)
	for _, c := range o.creatives {
		if c.GroupID != "" {
			counts[c.GroupID]++
		}
	}
	if len(counts) == 0 {
		return "", false
	}

	best := ""
	for _, g := range o.groupOrder {
		n, ok := counts[g]
		if !ok {
			continue
		}
		if best == "" || n > counts[best] {
			best = g
		}
	}
	return best, best != ""
}

// SendCommand validates and broadcasts a command. Individual commands route
// unconditionally; group commands require every member Ready.
func (o *Orchestrator) SendCommand(m control.Message) error {
	if !m.IsCommand() {
		return ErrUnknownCommand
	}

	o.mu.Lock()
	target := m.Target()
	switch target.Kind {
	case control.TargetIndividual:
		if _, ok := o.creatives[target.ID]; !ok {
			o.mu.Unlock()
			return ErrNotFound
		}
	case control.TargetGroup:
		members := o.groupMembersLocked(target.ID)
		if len(members) == 0 {
			o.mu.Unlock()
			return ErrGroupNotFound
		}
		for _, id := range members {
			if o.creatives[id].State != StateReady {
				o.mu.Unlock()
				return ErrGroupNotReady
			}
		}
	default:
		o.mu.Unlock()
		return ErrUnknownCommand
	}
	o.mu.Unlock()

	o.bus.Publish(m)
	return nil
}

// SoftReloadGroup restarts the group in place (rewind and play, state kept).
// It is a group command and is gated on readiness like any other.
func (o *Orchestrator) SoftReloadGroup(groupID string) error {
	return o.SendCommand(control.Message{
		Action:  control.ActionGlobalRestart,
		GroupID: groupID,
	})
}

// HardReloadGroup assigns every member a fresh render key, clearing readiness
// and forcing the render surface to be rebuilt. Always permitted: its purpose
// is recovery from a stuck group.
func (o *Orchestrator) HardReloadGroup(groupID string) ([]Creative, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	members := o.groupMembersLocked(groupID)
	if len(members) == 0 {
		return nil, ErrGroupNotFound
	}

	reloaded := make([]Creative, 0, len(members))
	for _, id := range members {
		c := o.creatives[id]
		c.RenderKey = uuid.NewString()
		c.State = StateLoading
		c.LoadError = ""
		reloaded = append(reloaded, *c)
	}
	return reloaded, nil
}

// Groups lists the distinct group ids in first-seen order, with member counts.
func (o *Orchestrator) Groups() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	counts := make(map[string]int)
	for _, c := range o.creatives {
		if c.GroupID != "" {
			counts[c.GroupID]++
		}
	}
	return counts
}

// Restore replaces the registry with persisted records, preserving order.
// Restored creatives start Loading regardless of the state they carried.
func (o *Orchestrator) Restore(creatives []Creative) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.order = nil
	o.groupOrder = nil
	clear(o.creatives)
	clear(o.selected)

	for _, c := range creatives {
		if strings.TrimSpace(c.ID) == "" {
			continue
		}
		if _, exists := o.creatives[c.ID]; exists {
			continue
		}
		c.State = StateLoading
		c.LoadError = ""
		if c.RenderKey == "" {
			c.RenderKey = uuid.NewString()
		}
		stored := c
		o.creatives[c.ID] = &stored
		o.order = append(o.order, c.ID)
		o.noteGroup(c.GroupID)
	}
}

// Loading reports ids still Loading, in grid order. The load watchdog uses
// this to time out creatives that never become Ready.
func (o *Orchestrator) Loading() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.order))
	for _, id := range o.order {
		if o.creatives[id].State == StateLoading {
			out = append(out, id)
		}
	}
	return out
}
