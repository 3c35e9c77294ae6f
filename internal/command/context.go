package command

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/core/clock"
	"github.com/jitrealm/server/internal/msg"
	"github.com/jitrealm/server/internal/render"
	"github.com/jitrealm/server/internal/safe"
	"github.com/jitrealm/server/internal/sched"
	"github.com/jitrealm/server/internal/world"
)

// Sink is the per-session output surface commands write to. Rendered
// bytes only; the session serialises writes behind its own mutex.
type Sink interface {
	WriteRendered(s string)
	Opts() render.Opts
	RequestQuit()
}

// Directory answers questions about connected players; the session table
// implements it behind its own finer-grained lock.
type Directory interface {
	Names() []string
	PlayerID(name string) (string, bool)
}

// Shutdowner lets the @shutdown wizard command reach the server's
// termination flag.
type Shutdowner interface {
	RequestShutdown(reason string)
	RequestSave() error
}

// Context carries everything a command execution may touch. One Context
// per dispatched line; the world-state mutex is already held.
type Context struct {
	ActorID   string
	ActorName string
	SessionID string
	Wizard    bool

	World      *world.State
	Heartbeats *sched.Heartbeat
	Callouts   *sched.Callouts
	Queue      *msg.Queue
	Invoker    *safe.Invoker
	Clock      clock.Clock
	Players    Directory
	Control    Shutdowner
	Commands   *Registry

	Out Sink
	Log *zap.Logger

	events []RoomEvent
}

// Println renders one markup line to the actor's session.
func (c *Context) Println(markup string) {
	c.Out.WriteRendered(render.Line(markup, c.Out.Opts()))
}

func (c *Context) Printf(format string, args ...any) {
	c.Println(fmt.Sprintf(format, args...))
}

// Emit queues a room event for fan-out after the command completes.
func (c *Context) Emit(ev RoomEvent) {
	if ev.ActorID == "" {
		ev.ActorID = c.ActorID
	}
	if ev.ActorName == "" {
		ev.ActorName = c.ActorName
	}
	c.events = append(c.events, ev)
}

// Room returns the actor's enclosing room id.
func (c *Context) Room() (string, bool) {
	return c.World.RoomOf(c.ActorID)
}
