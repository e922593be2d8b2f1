package session

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Clock stamps persisted changes with strictly increasing sequence numbers.
type Clock interface {
	Next() int64
}

// LogicalClock is the default Clock. It is safe for concurrent use, so
// every session of one server can share it.
type LogicalClock struct {
	seq atomic.Int64
}

// NewClock returns a clock starting at 0.
func NewClock() *LogicalClock {
	return &LogicalClock{}
}

// NewClockAt returns a clock that resumes after start, typically the
// store's MaxSeq.
func NewClockAt(start int64) *LogicalClock {
	c := &LogicalClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *LogicalClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (c *LogicalClock) Current() int64 {
	return c.seq.Load()
}

// IDGenerator produces session and snapshot identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 identifiers.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
