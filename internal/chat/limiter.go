package chat

import (
	"sync"
	"time"
)

// ReplyLimiter enforces a global per-minute cap on generated replies and a
// cooldown between replies in the same conversation.
type ReplyLimiter struct {
	mu           sync.Mutex
	perMinute    []time.Time
	maxPerMinute int
	cooldown     time.Duration
	lastByConv   map[string]time.Time
}

// NewReplyLimiter returns a limiter. maxPerMinute <= 0 disables the global
// cap and cooldown <= 0 disables the per-conversation wait.
func NewReplyLimiter(maxPerMinute int, cooldown time.Duration) *ReplyLimiter {
	return &ReplyLimiter{
		perMinute:    make([]time.Time, 0, 32),
		maxPerMinute: maxPerMinute,
		cooldown:     cooldown,
		lastByConv:   make(map[string]time.Time),
	}
}

// Allow reports whether a reply to conversationID may be generated at now.
func (l *ReplyLimiter) Allow(conversationID string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastByConv[conversationID]; ok && l.cooldown > 0 && now.Sub(last) < l.cooldown {
		return false
	}

	cut := now.Add(-time.Minute)
	kept := l.perMinute[:0]
	for _, t := range l.perMinute {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	l.perMinute = kept

	return l.maxPerMinute <= 0 || len(l.perMinute) < l.maxPerMinute
}

// Record notes a reply sent to conversationID at now.
func (l *ReplyLimiter) Record(conversationID string, now time.Time) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perMinute = append(l.perMinute, now)
	l.lastByConv[conversationID] = now
}

// convLocks hands out one mutex per conversation and forgets it once no
// exchange holds or waits on it.
type convLocks struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

func newConvLocks() *convLocks {
	return &convLocks{locks: make(map[string]*convLock)}
}

func (c *convLocks) lock(id string) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &convLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}
