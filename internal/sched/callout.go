package sched

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrBadTarget = errors.New("sched: callout target rejected")

// Callout is one scheduled method invocation on an instance. Interval zero
// means one-shot; repeating entries are rescheduled at now+interval after
// each firing.
type Callout struct {
	ID       uint64
	Target   string
	Method   string
	Due      time.Time
	Interval time.Duration
	Args     []any

	canceled bool
	index    int
}

// Validator checks a (target, method) pair at schedule time, resolving the
// method by name against the target's current method table.
type Validator func(target, method string) error

// Callouts is the one-shot / repeating scheduler. Entries live in a heap
// keyed by due time; cancellation is lazy (entries are dropped when
// popped).
type Callouts struct {
	h        calloutHeap
	byTarget map[string]map[uint64]*Callout
	nextID   uint64
	validate Validator
}

func NewCallouts(validate Validator) *Callouts {
	return &Callouts{
		byTarget: make(map[string]map[uint64]*Callout),
		validate: validate,
	}
}

// Schedule queues a one-shot invocation after the given delay.
func (c *Callouts) Schedule(target, method string, after time.Duration, now time.Time, args []any) (uint64, error) {
	return c.add(target, method, now.Add(after), 0, args)
}

// ScheduleEvery queues a repeating invocation, first firing one interval
// from now.
func (c *Callouts) ScheduleEvery(target, method string, interval time.Duration, now time.Time, args []any) (uint64, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("%w: non-positive interval", ErrBadTarget)
	}
	return c.add(target, method, now.Add(interval), interval, args)
}

// ScheduleAt installs an entry with an absolute due time; snapshot restore
// uses this.
func (c *Callouts) ScheduleAt(target, method string, due time.Time, interval time.Duration, args []any) (uint64, error) {
	return c.add(target, method, due, interval, args)
}

func (c *Callouts) add(target, method string, due time.Time, interval time.Duration, args []any) (uint64, error) {
	if c.validate != nil {
		if err := c.validate(target, method); err != nil {
			return 0, fmt.Errorf("%w: %s.%s: %v", ErrBadTarget, target, method, err)
		}
	}
	c.nextID++
	e := &Callout{
		ID:       c.nextID,
		Target:   target,
		Method:   method,
		Due:      due,
		Interval: interval,
		Args:     args,
	}
	heap.Push(&c.h, e)
	if c.byTarget[target] == nil {
		c.byTarget[target] = make(map[uint64]*Callout)
	}
	c.byTarget[target][e.ID] = e
	return e.ID, nil
}

// Due pops every entry whose due time is ≤ now. Repeating entries are
// rescheduled by exactly one interval; one-shot entries are removed.
func (c *Callouts) Due(now time.Time) []*Callout {
	var due []*Callout
	for c.h.Len() > 0 {
		top := c.h[0]
		if top.Due.After(now) {
			break
		}
		e := heap.Pop(&c.h).(*Callout)
		if e.canceled {
			continue
		}
		due = append(due, e)
		if e.Interval > 0 {
			next := *e
			next.Due = now.Add(e.Interval)
			next.index = 0
			heap.Push(&c.h, &next)
			c.byTarget[e.Target][e.ID] = &next
		} else {
			c.forget(e)
		}
	}
	return due
}

// Cancel removes one entry by id.
func (c *Callouts) Cancel(target string, id uint64) {
	if e, ok := c.byTarget[target][id]; ok {
		e.canceled = true
		c.forget(e)
	}
}

// CancelAll drops every entry referencing target. Called on destruct.
func (c *Callouts) CancelAll(target string) {
	for _, e := range c.byTarget[target] {
		e.canceled = true
	}
	delete(c.byTarget, target)
}

func (c *Callouts) forget(e *Callout) {
	if m, ok := c.byTarget[e.Target]; ok {
		delete(m, e.ID)
		if len(m) == 0 {
			delete(c.byTarget, e.Target)
		}
	}
}

// Pending returns the live entries for a target, or all targets when
// target is empty, in due order. Callers get copies, never heap
// internals.
func (c *Callouts) Pending(target string) []Callout {
	var out []Callout
	for _, e := range c.h {
		if e.canceled {
			continue
		}
		if target != "" && e.Target != target {
			continue
		}
		out = append(out, *e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	return out
}

func (c *Callouts) Len() int {
	n := 0
	for _, e := range c.h {
		if !e.canceled {
			n++
		}
	}
	return n
}

// ── heap plumbing ──────────────────────────────────────────────────

type calloutHeap []*Callout

func (h calloutHeap) Len() int { return len(h) }

func (h calloutHeap) Less(i, j int) bool {
	if h[i].Due.Equal(h[j].Due) {
		return h[i].ID < h[j].ID
	}
	return h[i].Due.Before(h[j].Due)
}

func (h calloutHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *calloutHeap) Push(x any) {
	e := x.(*Callout)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *calloutHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
