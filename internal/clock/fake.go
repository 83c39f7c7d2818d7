package clock

import "time"

// FakeClock is a manually advanced Clock for scheduler and presence
// tests. Not safe for concurrent use.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward; time never flows on its own.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
