package pipeline

import (
	"sync"
	"time"
)

// EventKind distinguishes status changes from terminal output.
type EventKind int

const (
	StateChanged EventKind = iota
	TerminalLine
)

// Event is one notification to a renderer. Renderers only observe; nothing
// they do feeds back into the pipeline.
type Event struct {
	Kind  EventKind
	State State
	Line  string
	RunID string
	Time  time.Time
}

const (
	defaultHistory   = 200
	defaultSubBuffer = 64
)

// broadcaster fans events out to subscribers without ever blocking the
// pipeline: a subscriber whose buffer is full misses the event.
type broadcaster struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	history []string
	limit   int
}

func newBroadcaster(limit int) *broadcaster {
	if limit <= 0 {
		limit = defaultHistory
	}
	return &broadcaster{subs: make(map[int]chan Event), limit: limit}
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubBuffer
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Kind == TerminalLine {
		b.history = append(b.history, ev.Line)
		if over := len(b.history) - b.limit; over > 0 {
			b.history = append(b.history[:0], b.history[over:]...)
		}
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.history...)
}
