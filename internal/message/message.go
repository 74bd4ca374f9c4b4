package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is the envelope exchanged between nodes and handed to the
// replication engine, time service and sequencer in turn.
//
// ID, Sender, Receiver and Content are immutable once the Message is
// constructed. PhysicalTS and LogicalTS start out set by New but are
// expected to be overwritten by the time service during ingestion
// (clock.Service.CurrentTimestamp / NextLogicalTime) and, occasionally, by
// skew correction (clock.Service.CorrectTimestamp). VectorClock is optional
// and nil until something sets it.
type Message struct {
	VectorClock *VectorClock
	id          string
	sender      string
	receiver    string
	content     string
	physicalTS  int64
	logicalTS   int64
}

// New constructs a Message with a fresh UUID and the current wall clock as
// its physical timestamp. Sender, receiver and content are trimmed; any of
// them being empty after trimming is a validation error, not a panic.
func New(sender, receiver, content string) (*Message, error) {
	return NewWithID(uuid.NewString(), sender, receiver, content, time.Now().UnixMilli(), 0)
}

// NewWithID constructs a Message with an explicit id, physical and logical
// timestamp, for use when reconstructing a message received over the
// transport or replayed from the stabilized store. A blank id is replaced
// with a fresh UUID, matching the original system's "id or fresh UUID"
// leniency.
func NewWithID(id, sender, receiver, content string, physicalTS, logicalTS int64) (*Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}

	s, err := nonEmpty("sender", sender)
	if err != nil {
		return nil, err
	}
	r, err := nonEmpty("receiver", receiver)
	if err != nil {
		return nil, err
	}
	c, err := nonEmpty("content", content)
	if err != nil {
		return nil, err
	}

	if physicalTS <= 0 {
		physicalTS = time.Now().UnixMilli()
	}
	if logicalTS < 0 {
		logicalTS = 0
	}

	return &Message{
		id:         id,
		sender:     s,
		receiver:   r,
		content:    c,
		physicalTS: physicalTS,
		logicalTS:  logicalTS,
	}, nil
}

func nonEmpty(field, v string) (string, error) {
	t := strings.TrimSpace(v)
	if t == "" {
		return "", fmt.Errorf("message: %s must not be empty", field)
	}
	return t, nil
}

func (m *Message) ID() string       { return m.id }
func (m *Message) Sender() string   { return m.sender }
func (m *Message) Receiver() string { return m.receiver }
func (m *Message) Content() string  { return m.content }
func (m *Message) PhysicalTS() int64 { return m.physicalTS }
func (m *Message) LogicalTS() int64  { return m.logicalTS }

// SetPhysicalTS overwrites the physical timestamp. Zero or negative values
// are rejected in favor of the current wall clock, matching the original
// setter's defensive clamp.
func (m *Message) SetPhysicalTS(ts int64) {
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}
	m.physicalTS = ts
}

// SetLogicalTS overwrites the logical timestamp. Negative values clamp to
// zero.
func (m *Message) SetLogicalTS(ts int64) {
	if ts < 0 {
		ts = 0
	}
	m.logicalTS = ts
}

// ShortID returns the first 8 characters of the id, for compact logging.
func (m *Message) ShortID() string {
	if len(m.id) <= 8 {
		return m.id
	}
	return m.id[:8]
}

func (m *Message) String() string {
	return fmt.Sprintf("Message[%s: %s -> %s: %s]", m.ShortID(), m.sender, m.receiver, m.content)
}

// Equal compares messages by id only, per the data model's identity rule.
func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.id == other.id
}

// ConversationID derives the conversation identifier for a sender/receiver
// pair: the two participants sorted lexicographically and joined by "-", so
// both directions of a conversation share one id.
func ConversationID(sender, receiver string) string {
	a, b := sender, receiver
	if b < a {
		a, b = b, a
	}
	return a + "-" + b
}
