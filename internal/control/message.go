// Package control defines the wire contract between the host and the control
// agents running inside creative execution contexts, plus the in-process
// broadcast bus both sides attach to. Every participant sees every message;
// addressing is carried in the message and filtered by the receiver.
package control

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	ActionPlay          = "play"
	ActionPause         = "pause"
	ActionCapture       = "captureScreenshot"
	ActionGlobalPlay    = "global-play"
	ActionGlobalPause   = "global-pause"
	ActionGlobalRestart = "global-restart"

	ActionReady            = "ready"
	ActionPlayPauseResult  = "playPauseResult"
	ActionPlayPauseFailed  = "playPauseFailed"
	ActionScreenshotResult = "screenshotResult"
	ActionScreenshotFailed = "screenshotFailed"
)

// ErrNoAction marks a message without an action field. Such messages are
// dropped silently at the boundary; the shared channel carries unrelated
// traffic and noise must not surface as errors.
var ErrNoAction = errors.New("message has no action")

type Message struct {
	Action    string `json:"action"`
	BannerID  string `json:"bannerId,omitempty"`
	GroupID   string `json:"groupId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Image     string `json:"image,omitempty"`
	Error     string `json:"error,omitempty"`
	IsPlaying bool   `json:"isPlaying,omitempty"`
}

// Decode parses a raw wire message. Unknown fields are ignored, malformed
// JSON and missing actions are rejected (callers drop both).
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	if strings.TrimSpace(m.Action) == "" {
		return Message{}, ErrNoAction
	}
	return m, nil
}

type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetIndividual
	TargetGroup
)

// Target is the address of a command, decoded once at the boundary instead of
// every handler re-inspecting stringly-typed fields.
type Target struct {
	Kind TargetKind
	ID   string
}

func Individual(bannerID string) Target {
	return Target{Kind: TargetIndividual, ID: bannerID}
}

func Group(groupID string) Target {
	return Target{Kind: TargetGroup, ID: groupID}
}

// Target derives the address of a message from its action. Group actions
// address a group id; everything else addresses a single creative.
func (m Message) Target() Target {
	switch m.Action {
	case ActionGlobalPlay, ActionGlobalPause, ActionGlobalRestart:
		if m.GroupID == "" {
			return Target{}
		}
		return Group(m.GroupID)
	default:
		if m.BannerID == "" {
			return Target{}
		}
		return Individual(m.BannerID)
	}
}

func (m Message) IsCommand() bool {
	switch m.Action {
	case ActionPlay, ActionPause, ActionCapture,
		ActionGlobalPlay, ActionGlobalPause, ActionGlobalRestart:
		return true
	}
	return false
}

func (m Message) IsGroupCommand() bool {
	switch m.Action {
	case ActionGlobalPlay, ActionGlobalPause, ActionGlobalRestart:
		return true
	}
	return false
}
