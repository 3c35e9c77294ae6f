// Package safe is the single entry point into world code. Every hook,
// heartbeat, callout and local command crosses this boundary, which bounds
// the call's wall time and classifies its outcome so errors never reach
// the tick loop or the accept loop.
package safe

import (
	"context"
	"errors"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/scripting"
)

// Outcome classifies one call into world code.
type Outcome int

const (
	OK Outcome = iota
	Timeout
	DomainError
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Timeout:
		return "timeout"
	case DomainError:
		return "domain_error"
	default:
		return "fatal"
	}
}

// Result is what the caller gets instead of an error: the classification,
// the underlying cause for logging, and the call's measured cost.
type Result struct {
	Outcome Outcome
	Err     error
	Elapsed time.Duration
}

func (r Result) OK() bool { return r.Outcome == OK }

// Invoker carries the two wall-clock budgets: hook (event callbacks,
// commands) and heartbeat (tick callbacks, kept tighter so one slow object
// cannot eat the tick).
type Invoker struct {
	hookBudget      time.Duration
	heartbeatBudget time.Duration
	log             *zap.Logger
}

func New(hookBudget, heartbeatBudget time.Duration, log *zap.Logger) *Invoker {
	return &Invoker{
		hookBudget:      hookBudget,
		heartbeatBudget: heartbeatBudget,
		log:             log,
	}
}

// Hook runs an event callback (on_load, on_enter, on_room_event, local
// commands, callout targets) under the hook budget.
func (inv *Invoker) Hook(c *scripting.Chunk, objectID, method string, callCtx map[string]any, args []any) Result {
	return inv.invoke(c, objectID, method, callCtx, args, inv.hookBudget, false)
}

// Heartbeat runs a tick callback under the heartbeat budget.
func (inv *Invoker) Heartbeat(c *scripting.Chunk, objectID string, callCtx map[string]any) Result {
	return inv.invoke(c, objectID, "heartbeat", callCtx, nil, inv.heartbeatBudget, false)
}

// Command runs a local command advertised by a world object.
func (inv *Invoker) Command(c *scripting.Chunk, objectID, name string, callCtx map[string]any, args []any) Result {
	return inv.invoke(c, objectID, name, callCtx, args, inv.hookBudget, true)
}

func (inv *Invoker) invoke(c *scripting.Chunk, objectID, method string, callCtx map[string]any, args []any, budget time.Duration, asCommand bool) Result {
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	start := time.Now()
	var err error
	if asCommand {
		err = c.InvokeCommand(ctx, method, callCtx, args)
	} else {
		err = c.Invoke(ctx, method, callCtx, args)
	}
	elapsed := time.Since(start)

	res := Result{Outcome: classify(ctx, err), Err: err, Elapsed: elapsed}
	switch res.Outcome {
	case Timeout:
		// Operator visibility: the offending object/method, never the player.
		inv.log.Warn("world code exceeded budget",
			zap.String("object", objectID),
			zap.String("method", method),
			zap.Duration("budget", budget))
	case DomainError:
		inv.log.Info("world code error",
			zap.String("object", objectID),
			zap.String("method", method),
			zap.Error(err))
	case Fatal:
		inv.log.Error("world code fatal",
			zap.String("object", objectID),
			zap.String("method", method),
			zap.Error(err))
	}
	return res
}

func classify(ctx context.Context, err error) Outcome {
	if err == nil {
		return OK
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Timeout
	}
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		// A canceled context surfaces as an ApiError wrapping the ctx error.
		if strings.Contains(apiErr.Error(), context.DeadlineExceeded.Error()) {
			return Timeout
		}
		return DomainError
	}
	if errors.Is(err, scripting.ErrClosed) || errors.Is(err, scripting.ErrNoMethod) {
		return Fatal
	}
	return Fatal
}
