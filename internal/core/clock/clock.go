package clock

import (
	"sync"
	"time"
)

// Clock is the single time source for every scheduler. No component reads
// wall time directly; schedulers take a Clock by reference so tests and the
// perf bench can substitute a manually advanced one.
type Clock interface {
	Now() time.Time
}

// System is the production clock. It is based on time.Now, which is
// monotonic-correct for the Sub/After comparisons the schedulers perform.
type System struct{}

func NewSystem() *System { return &System{} }

func (*System) Now() time.Time { return time.Now() }

// Manual is an explicitly advanced clock for deterministic tests and
// benchmarking. Zero value starts at the Unix epoch.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d. Negative advances are ignored.
func (m *Manual) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set jumps the clock to t. Used by snapshot restore to replay saved times.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
