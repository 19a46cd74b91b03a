package eventlog

import (
	"sync"
	"time"

	"github.com/gateway-fm/activitybot/pkg/types"
)

// DefaultCapacity is the number of events kept for late subscribers.
const DefaultCapacity = 500

// Journal is a bounded, concurrency-safe ring of log events with fan-out to
// live subscribers. Slow subscribers miss events rather than block logging.
type Journal struct {
	mu       sync.RWMutex
	events   []types.LogEvent
	capacity int
	seq      uint64
	subs     map[int]chan types.LogEvent
	nextSub  int
	now      func() time.Time
}

// NewJournal creates a journal holding up to capacity events.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		events:   make([]types.LogEvent, 0, capacity),
		capacity: capacity,
		subs:     make(map[int]chan types.LogEvent),
		now:      time.Now,
	}
}

// Append records an event and returns it with its sequence number set.
func (j *Journal) Append(severity types.Severity, message string, at time.Time) types.LogEvent {
	if at.IsZero() {
		at = j.now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	ev := types.LogEvent{
		Seq:       j.seq,
		Timestamp: at,
		Severity:  severity,
		Message:   message,
	}

	if len(j.events) == j.capacity {
		copy(j.events, j.events[1:])
		j.events = j.events[:len(j.events)-1]
	}
	j.events = append(j.events, ev)

	for _, ch := range j.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Recent returns up to n most recent events, oldest first. n <= 0 means all.
func (j *Journal) Recent(n int) []types.LogEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()

	start := 0
	if n > 0 && n < len(j.events) {
		start = len(j.events) - n
	}
	out := make([]types.LogEvent, len(j.events)-start)
	copy(out, j.events[start:])
	return out
}

// Clear drops all stored events. Sequence numbers keep increasing.
func (j *Journal) Clear() {
	j.mu.Lock()
	j.events = j.events[:0]
	j.mu.Unlock()
}

// Subscribe returns a channel of new events and a cancel func that closes it.
func (j *Journal) Subscribe(buffer int) (<-chan types.LogEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan types.LogEvent, buffer)

	j.mu.Lock()
	id := j.nextSub
	j.nextSub++
	j.subs[id] = ch
	j.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.mu.Lock()
			delete(j.subs, id)
			j.mu.Unlock()
			close(ch)
		})
	}
}
