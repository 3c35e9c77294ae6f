package world

import (
	"sort"
	"strings"
	"time"
)

// CombatPair is one symmetric combat pairing plus its round deadline.
type CombatPair struct {
	A, B      string
	NextRound time.Time
}

// Combat does pair bookkeeping and round timing only; damage semantics
// live in the kill command outside the core. Guarded by the world-state
// critical section.
type Combat struct {
	interval time.Duration
	target   map[string]string
	next     map[string]time.Time // canonical pair key -> next round due
}

func NewCombat(roundInterval time.Duration) *Combat {
	return &Combat{
		interval: roundInterval,
		target:   make(map[string]string),
		next:     make(map[string]time.Time),
	}
}

func (c *Combat) RoundInterval() time.Duration { return c.interval }

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

// Start pairs a and b, ending any pairing either was in. The first round
// falls due one interval after now.
func (c *Combat) Start(a, b string, now time.Time) {
	if a == b {
		return
	}
	c.End(a)
	c.End(b)
	c.target[a] = b
	c.target[b] = a
	c.next[pairKey(a, b)] = now.Add(c.interval)
}

// StartAt installs a pairing with an explicit round deadline. Snapshot
// restore uses this to preserve round timing.
func (c *Combat) StartAt(a, b string, nextRound time.Time) {
	if a == b {
		return
	}
	c.End(a)
	c.End(b)
	c.target[a] = b
	c.target[b] = a
	c.next[pairKey(a, b)] = nextRound
}

// End dissolves the pairing a is part of, if any.
func (c *Combat) End(a string) {
	b, ok := c.target[a]
	if !ok {
		return
	}
	delete(c.target, a)
	delete(c.target, b)
	delete(c.next, pairKey(a, b))
}

func (c *Combat) IsInCombat(id string) bool {
	_, ok := c.target[id]
	return ok
}

// Target returns who id is fighting.
func (c *Combat) Target(id string) (string, bool) {
	t, ok := c.target[id]
	return t, ok
}

// RoundsDue returns every pair whose round deadline is ≤ now and advances
// each returned pair's deadline by one interval.
func (c *Combat) RoundsDue(now time.Time) []CombatPair {
	var due []CombatPair
	for key, at := range c.next {
		if at.After(now) {
			continue
		}
		a, b := splitPairKey(key)
		due = append(due, CombatPair{A: a, B: b, NextRound: at})
		c.next[key] = now.Add(c.interval)
	}
	sortPairs(due)
	return due
}

// Pairs returns every active pairing for snapshot capture, sorted.
func (c *Combat) Pairs() []CombatPair {
	out := make([]CombatPair, 0, len(c.next))
	for key, at := range c.next {
		a, b := splitPairKey(key)
		out = append(out, CombatPair{A: a, B: b, NextRound: at})
	}
	sortPairs(out)
	return out
}

func splitPairKey(key string) (string, string) {
	a, b, _ := strings.Cut(key, "\x00")
	return a, b
}

func sortPairs(ps []CombatPair) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].A < ps[j].A })
}
