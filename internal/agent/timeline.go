package agent

import "context"

// Runtime is the creative's execution context as the agent sees it: an opaque
// bag of globals. The agent has no contract with the creative's code, so
// discovery is limited to probing well-known names.
type Runtime interface {
	Lookup(name string) (any, bool)
}

// Timeline is the master-timeline handle, whichever animation runtime backs
// it. Seek positions are in seconds from the start.
type Timeline interface {
	Play()
	Pause()
	Seek(position float64)
}

// Surface rasterizes the creative's visible area. Runtimes without a
// rasterizable surface simply don't provide one.
type Surface interface {
	Rasterize(ctx context.Context, width, height int) ([]byte, error)
}

// Global names probed for a master timeline, in precedence order: a root
// timeline export function, a global timeline object, then bare play/pause
// functions.
const (
	globalRootTimelineFn = "getRootTimeline"
	globalTimeline       = "timeline"
	globalPlayFn         = "play"
	globalPauseFn        = "pause"
)

// ResolveTimeline probes the runtime for a master timeline. Callers resolve
// fresh on every command: some runtimes replace their root timeline across
// operations, so a cached handle can go stale.
func ResolveTimeline(rt Runtime) (Timeline, bool) {
	if rt == nil {
		return nil, false
	}

	if v, ok := rt.Lookup(globalRootTimelineFn); ok {
		if fn, ok := v.(func() Timeline); ok {
			if tl := fn(); tl != nil {
				return tl, true
			}
		}
	}

	if v, ok := rt.Lookup(globalTimeline); ok {
		if tl, ok := v.(Timeline); ok && tl != nil {
			return tl, true
		}
	}

	play, okPlay := lookupFunc(rt, globalPlayFn)
	pause, okPause := lookupFunc(rt, globalPauseFn)
	if okPlay && okPause {
		return &bareFuncTimeline{play: play, pause: pause}, true
	}

	return nil, false
}

func lookupFunc(rt Runtime, name string) (func(), bool) {
	v, ok := rt.Lookup(name)
	if !ok {
		return nil, false
	}
	fn, ok := v.(func())
	return fn, ok
}

// bareFuncTimeline wraps creatives that expose only global play/pause
// functions. There is no seekable timeline object, so Seek is a no-op and
// restart degrades to play-from-wherever.
type bareFuncTimeline struct {
	play  func()
	pause func()
}

func (t *bareFuncTimeline) Play()  { t.play() }
func (t *bareFuncTimeline) Pause() { t.pause() }

func (t *bareFuncTimeline) Seek(position float64) {}
