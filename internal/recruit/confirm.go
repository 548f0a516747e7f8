package recruit

import (
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"

	"github.com/EgorLis/Recruitbot/internal/clock"
	"github.com/EgorLis/Recruitbot/internal/directory"
)

// pendingDecision — ожидающее подтверждение одного нажатия Approve / Deny.
type pendingDecision struct {
	actor     snowflake.ID
	applicant snowflake.ID
	decision  Decision
	summary   directory.MessageRef
	expires   time.Time
}

// confirmations хранит ожидающие подтверждения в памяти. Просроченные
// записи удаляются при каждом обращении.
type confirmations struct {
	mu      sync.Mutex
	clock   clock.Clock
	timeout time.Duration
	items   map[uuid.UUID]pendingDecision
}

func newConfirmations(c clock.Clock, timeout time.Duration) *confirmations {
	return &confirmations{clock: c, timeout: timeout, items: map[uuid.UUID]pendingDecision{}}
}

func (c *confirmations) put(d pendingDecision) uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.sweepLocked(now)

	token := uuid.New()
	d.expires = now.Add(c.timeout)
	c.items[token] = d
	return token
}

// take забирает подтверждение, если оно живо и принадлежит actor.
// Чужой токен не расходуется.
func (c *confirmations) take(token uuid.UUID, actor snowflake.ID) (pendingDecision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(c.clock.Now())

	d, ok := c.items[token]
	if !ok {
		return pendingDecision{}, ErrExpired
	}
	if d.actor != actor {
		return pendingDecision{}, ErrWrongActor
	}
	delete(c.items, token)
	return d, nil
}

func (c *confirmations) sweepLocked(now time.Time) {
	for token, d := range c.items {
		if !now.Before(d.expires) {
			delete(c.items, token)
		}
	}
}

func (c *confirmations) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
