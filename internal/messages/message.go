package messages

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// A Message is a single note published to the journal. Source and Level together are the key
// the consumer counts messages by.
//
// Every field is comparable so messages can be held in a notes.Notes buffer.
type Message struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Level     string    `json:"level"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// New returns a message with a fresh ID, stamped with the current time in UTC.
func New(source, level, body string) Message {
	return Message{
		ID:        uuid.NewString(),
		Source:    source,
		Level:     level,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}

// Key identifies the stream a message is counted in.
func (m Message) Key() string {
	return fmt.Sprintf("%s:%s", m.Source, m.Level)
}

func (m Message) String() string {
	return fmt.Sprintf("%s [%s] %s: %s", m.CreatedAt.Format(time.RFC3339), m.Level, m.Source, m.Body)
}
