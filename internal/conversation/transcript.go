// Package conversation runs the chat/speech request cycle and keeps the
// message list the UI shows.
package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/normanking/robinavatar/internal/bus"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message is one entry in the transcript. AI messages grow while their
// reply is being revealed and are Final once the full text is shown.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptConfig configures the Transcript.
type TranscriptConfig struct {
	// MaxMessages bounds the history; oldest messages go first (default: 200)
	MaxMessages int `mapstructure:"max_messages"`
}

func DefaultTranscriptConfig() TranscriptConfig {
	return TranscriptConfig{MaxMessages: 200}
}

// Transcript is the ordered message list. It is append-only except for
// the AI message of the cycle currently being revealed, whose text only
// grows.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
	config   TranscriptConfig
	bus      *bus.EventBus

	cycle   uint64
	cycleID string
}

// NewTranscript creates a transcript. eventBus may be nil.
func NewTranscript(config TranscriptConfig, eventBus *bus.EventBus) *Transcript {
	if config.MaxMessages <= 0 {
		config.MaxMessages = DefaultTranscriptConfig().MaxMessages
	}
	return &Transcript{
		messages: make([]Message, 0, 16),
		config:   config,
		bus:      eventBus,
	}
}

// Append adds a finished message.
func (t *Transcript) Append(sender Sender, text string) Message {
	t.mu.Lock()
	msg := t.appendLocked(sender, text, true)
	t.mu.Unlock()

	t.publish(bus.EventTypeMessageAppended, msg)
	return msg
}

// SetReply writes the revealed text of a reply. The first call for a
// cycle appends a new AI message; later calls update it in place. Text
// that would shrink a message is ignored, as is anything for a finalized
// message.
func (t *Transcript) SetReply(cycle uint64, text string, final bool) (Message, bool) {
	t.mu.Lock()
	if cycle != t.cycle || t.cycleID == "" {
		msg := t.appendLocked(SenderAI, text, final)
		t.cycle = cycle
		t.cycleID = msg.ID
		t.mu.Unlock()
		t.publish(bus.EventTypeMessageAppended, msg)
		return msg, true
	}

	idx := t.indexLocked(t.cycleID)
	if idx < 0 {
		t.mu.Unlock()
		return Message{}, false
	}
	msg := &t.messages[idx]
	if msg.Final || len(text) < len(msg.Text) || (text == msg.Text && final == msg.Final) {
		t.mu.Unlock()
		return *msg, false
	}
	msg.Text = text
	msg.Final = final
	updated := *msg
	t.mu.Unlock()

	t.publish(bus.EventTypeMessageUpdated, updated)
	return updated, true
}

func (t *Transcript) appendLocked(sender Sender, text string, final bool) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Final:     final,
		Timestamp: time.Now(),
	}
	t.messages = append(t.messages, msg)
	if len(t.messages) > t.config.MaxMessages {
		t.messages = t.messages[len(t.messages)-t.config.MaxMessages:]
	}
	return msg
}

func (t *Transcript) indexLocked(id string) int {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Messages returns a copy of the history, oldest first.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = t.messages[:0]
	t.cycleID = ""
}

func (t *Transcript) publish(eventType bus.EventType, msg Message) {
	if t.bus == nil {
		return
	}
	t.bus.PublishSync(bus.Event{
		Type: eventType,
		Data: map[string]any{"message": msg},
	})
}
