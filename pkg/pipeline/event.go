package pipeline

import (
	"github.com/papercomputeco/automem/pkg/llm"
	"github.com/papercomputeco/automem/pkg/memory"
	"github.com/papercomputeco/automem/pkg/status"
)

// Event is the part of a host request body the pipeline reads. Hosts send
// more fields; the pipeline never changes the event, so callers echo the
// original body back.
type Event struct {
	ChatID   string        `json:"chat_id,omitempty"`
	Messages []llm.Message `json:"messages"`
}

// Inlet is one outlet call: the event plus whatever call context the host
// had available.
type Inlet struct {
	Event *Event

	// User is nil when the host did not identify the user.
	User *memory.User

	// Session is nil when there is no request handle for the memory API.
	Session *memory.Session

	// Emitter receives status notes on the live path. May be nil.
	Emitter status.Emitter
}

// Path is the processing path an event is classified into.
type Path int

const (
	// PathPassThrough leaves the event alone.
	PathPassThrough Path = iota

	// PathLive handles a turn in an active session.
	PathLive

	// PathBackground handles a completed conversation without session
	// context.
	PathBackground
)

func (p Path) String() string {
	switch p {
	case PathLive:
		return "live"
	case PathBackground:
		return "background"
	default:
		return "pass-through"
	}
}

// Classify decides how an event is processed. A conversation id with a
// message list but without the user or session handle goes to the
// background path; an identified user with messages goes live.
//
// Missing either handle is enough for the background path, so a turn that
// carries a user but no session is saved by chat id and gets no status
// message.
func Classify(in Inlet) Path {
	ev := in.Event
	if ev == nil {
		return PathPassThrough
	}

	if ev.ChatID != "" && ev.Messages != nil && (in.User == nil || in.Session == nil) {
		return PathBackground
	}
	if in.User != nil && len(ev.Messages) > 0 {
		return PathLive
	}
	return PathPassThrough
}
