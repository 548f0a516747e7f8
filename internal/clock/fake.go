package clock

import (
	"sync"
	"time"
)

// FakeClock двигается только через Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
}

type waiter struct {
	at      time.Time
	period  time.Duration // 0 — одноразовый
	ch      chan time.Time
	stopped bool
}

func Fake(initial time.Time) *FakeClock {
	return &FakeClock{now: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, &waiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &waiter{at: c.now.Add(d), period: d, ch: make(chan time.Time, 1)}
	c.waiters = append(c.waiters, w)
	return &Ticker{C: w.ch, stop: func() {
		c.mu.Lock()
		w.stopped = true
		c.mu.Unlock()
	}}
}

// Advance сдвигает время и будит всех, чей срок наступил.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)

	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		for !w.at.After(c.now) {
			select {
			case w.ch <- w.at:
			default:
			}
			if w.period == 0 {
				w.stopped = true
				break
			}
			w.at = w.at.Add(w.period)
		}
		if !w.stopped {
			kept = append(kept, w)
		}
	}
	c.waiters = kept
}

// Pending — число активных таймеров и тикеров.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
