package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Export is the diagnostic JSON form of a session.
type Export struct {
	SessionID    string          `json:"sessionId"`
	Messages     []ExportMessage `json:"messages"`
	Relationship Relationship    `json:"relationship"`
}

// ExportMessage is a turn in diagnostic form. Type carries the sender.
type ExportMessage struct {
	ID         string    `json:"id"`
	Type       Sender    `json:"type"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence *float64  `json:"confidence"`
	Intent     *string   `json:"intent"`
}

// NewExport builds the export for a session's history and relationship.
func NewExport(id string, turns []Turn, rel Relationship) Export {
	msgs := make([]ExportMessage, len(turns))
	for i, t := range turns {
		t = t.clone()
		msgs[i] = ExportMessage{
			ID:         t.ID,
			Type:       t.Sender,
			Content:    t.Content,
			Timestamp:  t.Timestamp,
			Confidence: t.Confidence,
		}
		if t.Intent != "" {
			intent := t.Intent
			msgs[i].Intent = &intent
		}
	}
	return Export{SessionID: id, Messages: msgs, Relationship: rel}
}

// MarshalIndent renders the export as indented JSON.
func (e Export) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// prepare validates turns and assigns IDs and timestamps so the result
// follows last in non-decreasing order.
func prepare(last time.Time, now time.Time, turns []Turn) ([]Turn, error) {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		if !t.Sender.IsValid() {
			return nil, fmt.Errorf("%w: unknown sender %q", ErrInvalidTurn, t.Sender)
		}
		if t.Content == "" {
			return nil, fmt.Errorf("%w: empty content", ErrInvalidTurn)
		}
		if t.Kind == "" {
			if t.Sender == SenderUser {
				t.Kind = KindUtterance
			} else {
				t.Kind = KindReply
			}
		}
		if t.ID == "" {
			t.ID = uuid.Must(uuid.NewV7()).String()
		}
		if t.Timestamp.IsZero() {
			t.Timestamp = now
		}
		if t.Timestamp.Before(last) {
			t.Timestamp = last
		}
		last = t.Timestamp
		out[i] = t.clone()
	}
	return out, nil
}
