// Package clock abstracts the current time so that stores can stamp records
// deterministically under test.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time in UTC.
type Clock interface {
	NowUtc() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) NowUtc() time.Time {
	return time.Now().UTC()
}

// StubClock returns a fixed time until it is moved with SetNow, Advance or UpdateNow.
type StubClock struct {
	now  time.Time
	lock sync.Mutex
}

func NewStubClock() *StubClock {
	clock := &StubClock{}
	clock.UpdateNow()
	return clock
}

func (c *StubClock) NowUtc() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *StubClock) SetNow(now time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = now.UTC()
}

// Advance moves the clock forward by d and returns the new time.
func (c *StubClock) Advance(d time.Duration) time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *StubClock) UpdateNow() time.Time {
	now := time.Now().UTC()
	c.SetNow(now)
	return now
}
