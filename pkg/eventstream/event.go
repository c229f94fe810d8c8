package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoriesSaved is emitted after a batch of facts was routed.
	EventTypeMemoriesSaved = "automem.memories.saved"
)

// Path names the intake path that produced a batch.
const (
	PathLive       = "live"
	PathBackground = "background"
	PathManual     = "manual"
)

// MemoriesSavedEvent is a transport-neutral event payload for one routed
// batch of facts.
type MemoriesSavedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	UserID string `json:"user_id"`
	ChatID string `json:"chat_id,omitempty"`
	Path   string `json:"path"`
	Driver string `json:"driver,omitempty"`

	Facts  []string `json:"facts"`
	Saved  int      `json:"saved"`
	Failed int      `json:"failed"`
}

// NewMemoriesSavedEvent fills in the envelope fields of an event.
func NewMemoriesSavedEvent(path, userID, chatID string, facts []string, saved, failed int) *MemoriesSavedEvent {
	return &MemoriesSavedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMemoriesSaved,
		EventID:       uuid.New().String(),
		EmittedAt:     time.Now().UTC(),
		UserID:        userID,
		ChatID:        chatID,
		Path:          path,
		Facts:         facts,
		Saved:         saved,
		Failed:        failed,
	}
}
