// Package history keeps a bounded log of recent capture outcomes.
package history

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/circularbuffer"
)

// DefaultSize is used when New is given a non-positive size.
const DefaultSize = 50

// Entry is one finished capture request.
type Entry struct {
	ID        string        `json:"id"`
	Finger    string        `json:"finger"`
	Status    string        `json:"status"`
	Kind      string        `json:"kind,omitempty"`
	Attempts  int           `json:"attempts"`
	Quality   string        `json:"quality,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Log is safe for concurrent use. The oldest entry is dropped when full.
type Log struct {
	mu  sync.Mutex
	buf *circularbuffer.Queue
}

func New(size int) *Log {
	if size <= 0 {
		size = DefaultSize
	}
	return &Log{buf: circularbuffer.New(size)}
}

// Add appends e.
func (l *Log) Add(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Enqueue(e)
}

// Entries returns the log newest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	values := l.buf.Values()
	l.mu.Unlock()

	out := make([]Entry, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		out = append(out, values[i].(Entry))
	}
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Size()
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	l.buf.Clear()
	l.mu.Unlock()
}
