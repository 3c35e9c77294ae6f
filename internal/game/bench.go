package game

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/core/clock"
)

// BenchOptions drives the headless performance harness.
type BenchOptions struct {
	Blueprint   string
	Count       int
	Ticks       int
	LoopDelayMs int
	NoCallouts  bool
	SafeInvoke  bool // false measures raw chunk calls without the budget wrapper
}

// RunBench clones Count instances of Blueprint and spins the scheduler
// for Ticks iterations on a manual clock, as fast as the host allows. It
// prints a report and returns; no network, no persistence.
func (g *Game) RunBench(opts BenchOptions) error {
	manual, ok := g.clk.(*clock.Manual)
	if !ok {
		return fmt.Errorf("bench requires the manual clock")
	}
	delay := time.Duration(opts.LoopDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	g.ws.Mu.Lock()
	for i := 0; i < opts.Count; i++ {
		if _, err := g.ws.Objects.Clone(opts.Blueprint, nil); err != nil {
			g.ws.Mu.Unlock()
			return fmt.Errorf("bench clone %d: %w", i, err)
		}
	}
	g.ws.Mu.Unlock()

	var fired, calloutsFired uint64
	start := time.Now()

	for t := 0; t < opts.Ticks; t++ {
		manual.Advance(delay)
		now := manual.Now()

		g.ws.Mu.Lock()
		for _, id := range g.hb.Due(now) {
			inst, ok := g.ws.Objects.Get(id)
			if !ok {
				continue
			}
			fired++
			if opts.SafeInvoke {
				g.invoker.Heartbeat(inst.Chunk(), id, inst.CallContext())
			} else {
				_ = inst.Chunk().Invoke(nil, "heartbeat", inst.CallContext(), nil)
			}
		}
		if !opts.NoCallouts {
			for _, co := range g.callouts.Due(now) {
				inst, ok := g.ws.Objects.Get(co.Target)
				if !ok {
					continue
				}
				calloutsFired++
				if opts.SafeInvoke {
					g.invoker.Hook(inst.Chunk(), co.Target, co.Method, inst.CallContext(), co.Args)
				} else {
					_ = inst.Chunk().Invoke(nil, co.Method, inst.CallContext(), co.Args)
				}
			}
		}
		g.ws.Mu.Unlock()
	}

	elapsed := time.Since(start)
	perTick := time.Duration(0)
	if opts.Ticks > 0 {
		perTick = elapsed / time.Duration(opts.Ticks)
	}

	fmt.Printf("bench: %d x %s, %d ticks (%v simulated per tick)\n",
		opts.Count, opts.Blueprint, opts.Ticks, delay)
	fmt.Printf("  wall time          %v\n", elapsed.Round(time.Microsecond))
	fmt.Printf("  per tick           %v\n", perTick.Round(time.Nanosecond))
	fmt.Printf("  heartbeats fired   %d\n", fired)
	fmt.Printf("  callouts fired     %d\n", calloutsFired)
	fmt.Printf("  safe invoker       %v\n", opts.SafeInvoke)

	g.log.Info("bench complete",
		zap.Duration("elapsed", elapsed),
		zap.Uint64("heartbeats", fired))
	return nil
}
