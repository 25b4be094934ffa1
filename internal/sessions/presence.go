package sessions

import (
	"context"
	"sync"
)

// Counter is a client's view of how many collaborators are active. A client
// always counts itself, so the value never drops below 1.
type Counter struct {
	mu sync.Mutex
	n  int
}

func NewCounter() *Counter { return &Counter{n: 1} }

// Joined records a user-joined signal and returns the new value.
func (c *Counter) Joined() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// Left records a user-left signal and returns the new value, floored at 1.
func (c *Counter) Left() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n > 1 {
		c.n--
	}
	return c.n
}

// Set overwrites the value, e.g. from an authoritative room size; values below 1 become 1.
func (c *Counter) Set(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 {
		n = 1
	}
	c.n = n
	return c.n
}

func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// PresenceRepository mirrors room sizes outside the process so that several
// server instances can report a combined headcount.
type PresenceRepository interface {
	SetCount(ctx context.Context, documentID string, n int) error
	Count(ctx context.Context, documentID string) (int, error)
}
