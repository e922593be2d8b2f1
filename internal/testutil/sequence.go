package testutil

import (
	"fmt"
	"sync"
)

// StepClock is a resettable logical clock for tests. It satisfies
// session.Clock, so two runs of the same script stamp snapshots with the
// same seq values.
type StepClock struct {
	mu    sync.Mutex
	start int64
	seq   int64
}

// NewStepClock returns a clock whose first Next is start+1.
func NewStepClock(start int64) *StepClock {
	return &StepClock{start: start, seq: start}
}

// Next advances the clock and returns the new value.
func (c *StepClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last value handed out.
func (c *StepClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock to its start.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = c.start
}

// SequenceIDs hands out predictable identifiers "<prefix>-0001",
// "<prefix>-0002", and so on. It satisfies session.IDGenerator.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs returns a generator for prefix, "test" when empty.
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "test"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next identifier.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
