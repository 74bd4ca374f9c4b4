package sequencer

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/quorumcast/cluster/internal/message"
	"github.com/sirupsen/logrus"
)

// DeliverFunc is invoked, in order, for every message released by the
// sequencer. It runs while the sequencer's internal lock is held, so it
// must not call back into the sequencer.
type DeliverFunc func(m *message.Message)

// messageHeap is a container/heap.Interface ordering queued messages by
// ascending logical timestamp.
type messageHeap []*message.Message

func (h messageHeap) Len() int            { return len(h) }
func (h messageHeap) Less(i, j int) bool  { return h[i].LogicalTS() < h[j].LogicalTS() }
func (h messageHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *messageHeap) Push(x interface{}) { *h = append(*h, x.(*message.Message)) }
func (h *messageHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Sequencer holds one priority queue and one delivery cursor per
// conversation. It is safe for concurrent use by multiple producers.
type Sequencer struct {
	mu            sync.Mutex
	queues        map[string]*messageHeap
	lastDelivered map[string]int64
	onDeliver     DeliverFunc
	log           *logrus.Entry
}

// New returns an empty Sequencer that calls onDeliver for each message as
// it becomes deliverable. onDeliver may be nil, in which case delivered
// messages are simply dropped from the queue with no callback.
func New(onDeliver DeliverFunc, log *logrus.Entry) *Sequencer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sequencer{
		queues:        make(map[string]*messageHeap),
		lastDelivered: make(map[string]int64),
		onDeliver:     onDeliver,
		log:           log.WithField("component", "sequencer"),
	}
}

// QueueMessage inserts m into its conversation's queue, keyed by
// message.ConversationID(m.Sender(), m.Receiver()), then drains every
// message now deliverable (i.e. the head of the queue has the next
// expected logical timestamp).
func (s *Sequencer) QueueMessage(m *message.Message) {
	convID := message.ConversationID(m.Sender(), m.Receiver())

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[convID]
	if !ok {
		q = &messageHeap{}
		heap.Init(q)
		s.queues[convID] = q
	}
	heap.Push(q, m)

	s.drainLocked(convID, q)
}

// drainLocked pops and delivers every message at the head of q whose
// logical timestamp equals lastDelivered+1, advancing lastDelivered as it
// goes. Must be called with s.mu held.
func (s *Sequencer) drainLocked(convID string, q *messageHeap) {
	expected := s.lastDelivered[convID] + 1
	for q.Len() > 0 {
		head := (*q)[0]
		if head.LogicalTS() != expected {
			break
		}
		heap.Pop(q)
		if s.onDeliver != nil {
			s.onDeliver(head)
		}
		s.lastDelivered[convID] = expected
		expected++
	}
}

// PendingCount returns the number of buffered, not-yet-deliverable
// messages for a conversation. Used by metrics to report queue depth.
func (s *Sequencer) PendingCount(convID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[convID]
	if !ok {
		return 0
	}
	return q.Len()
}

// LastDelivered returns the last logical timestamp delivered for a
// conversation, or 0 if nothing has been delivered yet.
func (s *Sequencer) LastDelivered(convID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDelivered[convID]
}

// ReorderMessages returns a copy of a batch of messages sorted by
// ascending logical timestamp, for callers that need a best-effort order
// over a set collected out of band rather than through QueueMessage. The
// input slice is left unchanged.
func ReorderMessages(msgs []*message.Message) []*message.Message {
	sorted := make([]*message.Message, len(msgs))
	copy(sorted, msgs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LogicalTS() < sorted[j].LogicalTS()
	})
	return sorted
}
