// Package intake decodes completed-chat events that arrive outside the HTTP
// API and hands them to the pipeline's background path.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/automem/pkg/pipeline"
)

// ErrInvalidEvent is returned for payloads that cannot be a completed chat.
var ErrInvalidEvent = errors.New("invalid completed-chat event")

// Handler receives decoded events. *pipeline.Pipeline satisfies it.
type Handler interface {
	Outlet(ctx context.Context, in pipeline.Inlet) *pipeline.Event
}

// Decode parses a completed-chat payload: a JSON object with a chat_id and a
// messages list.
func Decode(data []byte) (*pipeline.Event, error) {
	ev := &pipeline.Event{}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if strings.TrimSpace(ev.ChatID) == "" {
		return nil, fmt.Errorf("%w: missing chat_id", ErrInvalidEvent)
	}
	if ev.Messages == nil {
		return nil, fmt.Errorf("%w: missing messages", ErrInvalidEvent)
	}
	return ev, nil
}

// Dispatch decodes data and submits it as a session-less outlet call, which
// the pipeline classifies onto the background path.
func Dispatch(ctx context.Context, h Handler, data []byte) (*pipeline.Event, error) {
	ev, err := Decode(data)
	if err != nil {
		return nil, err
	}
	h.Outlet(ctx, pipeline.Inlet{Event: ev})
	return ev, nil
}
