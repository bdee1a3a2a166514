package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// StepStore persists the running step total.
type StepStore interface {
	StepTotal(ctx context.Context) (int64, error)
	SetStepTotal(ctx context.Context, total int64) error
}

// StepCounter folds the device's cumulative live readings into a running total.
// The device restarts its counter after it flushes a step interval, and the
// uint16 reading can wrap; a reading below the previous one counts as new steps
// from zero.
type StepCounter struct {
	mu     sync.Mutex
	store  StepStore
	logger *logrus.Logger
	total  int64
	last   uint16
}

func NewStepCounter(store StepStore, logger *logrus.Logger) *StepCounter {
	if logger == nil {
		logger = logrus.New()
	}
	return &StepCounter{store: store, logger: logger}
}

// Load reads the persisted total. A missing value leaves the total at 0.
func (c *StepCounter) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	total, err := c.store.StepTotal(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.total = total
	c.mu.Unlock()
	return nil
}

// Save persists the current total.
func (c *StepCounter) Save(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.SetStepTotal(ctx, c.Total())
}

// Observe applies one live reading and returns the new total.
func (c *StepCounter) Observe(reading uint16) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	delta := reading
	if reading >= c.last {
		delta = reading - c.last
	}
	c.last = reading
	c.total += int64(delta)
	return c.total
}

// ResetReading sets the live baseline back to 0 without touching the total.
func (c *StepCounter) ResetReading() {
	c.mu.Lock()
	c.last = 0
	c.mu.Unlock()
}

// Reset zeroes the total and persists it.
func (c *StepCounter) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.total = 0
	c.last = 0
	c.mu.Unlock()
	return c.Save(ctx)
}

func (c *StepCounter) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
