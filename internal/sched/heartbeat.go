// Package sched holds the tick-driven schedulers: per-object heartbeats
// and one-shot/repeating callouts. Both are driven by the logical clock
// the tick loop owns; neither reads wall time.
package sched

import (
	"sort"
	"time"
)

type hbEntry struct {
	interval time.Duration
	next     time.Time
}

// Heartbeat fires a periodic per-object tick. It caches the earliest
// next-fire time across all registrations so Due is O(1) when nothing is
// due.
type Heartbeat struct {
	entries map[string]*hbEntry
	minNext time.Time
	hasMin  bool
}

func NewHeartbeat() *Heartbeat {
	return &Heartbeat{entries: make(map[string]*hbEntry)}
}

// Register schedules id to fire every interval, first at now+interval.
// Re-registering replaces the cadence.
func (h *Heartbeat) Register(id string, interval time.Duration, now time.Time) {
	if interval <= 0 {
		return
	}
	h.entries[id] = &hbEntry{interval: interval, next: now.Add(interval)}
	h.bumpMin(h.entries[id].next)
}

func (h *Heartbeat) Unregister(id string) {
	if _, ok := h.entries[id]; !ok {
		return
	}
	delete(h.entries, id)
	h.recomputeMin()
}

func (h *Heartbeat) Registered(id string) bool {
	_, ok := h.entries[id]
	return ok
}

func (h *Heartbeat) Len() int { return len(h.entries) }

// NextDue exposes the cached earliest next-fire time.
func (h *Heartbeat) NextDue() (time.Time, bool) {
	return h.minNext, h.hasMin
}

// Due returns every object whose next fire is ≤ now, in sorted id order,
// and advances each returned object's next fire to now+interval. The
// registration set is snapshotted before the scan so world code may
// register or unregister while the due-set is being dispatched.
func (h *Heartbeat) Due(now time.Time) []string {
	if !h.hasMin || now.Before(h.minNext) {
		return nil
	}
	ids := make([]string, 0, len(h.entries))
	for id := range h.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var due []string
	for _, id := range ids {
		e, ok := h.entries[id]
		if !ok || e.next.After(now) {
			continue
		}
		e.next = now.Add(e.interval)
		due = append(due, id)
	}
	h.recomputeMin()
	return due
}

func (h *Heartbeat) bumpMin(t time.Time) {
	if !h.hasMin || t.Before(h.minNext) {
		h.minNext = t
		h.hasMin = true
	}
}

func (h *Heartbeat) recomputeMin() {
	h.hasMin = false
	for _, e := range h.entries {
		if !h.hasMin || e.next.Before(h.minNext) {
			h.minNext = e.next
			h.hasMin = true
		}
	}
}

