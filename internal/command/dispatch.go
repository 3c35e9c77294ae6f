package command

import (
	"strings"

	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/scripting"
	"github.com/jitrealm/server/internal/world"
)

// Dispatcher turns one input line into effects. Resolution order is fixed:
// global command name, global alias, local command name, local alias.
// Local commands come from the actor's own blueprint, carried items, the
// room, and the room's occupants, scanned in that order.
type Dispatcher struct {
	registry  *Registry
	observers []Observer
	log       *zap.Logger
}

func NewDispatcher(registry *Registry, log *zap.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, log: log}
}

// AddObserver registers a Go-side room-event observer (the NPC memory
// recorder, the LLM seam).
func (d *Dispatcher) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

// Dispatch executes one line for the actor. The caller holds the
// world-state mutex for the duration. Errors from builtins surface to the
// player as plain text; panics are contained here so one bad command never
// takes the server down.
func (d *Dispatcher) Dispatch(ctx *Context, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	word := strings.ToLower(fields[0])
	args := fields[1:]

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("command panic",
				zap.String("actor", ctx.ActorID),
				zap.String("word", word),
				zap.Any("panic", r))
			ctx.Println("Something went wrong.")
		}
	}()

	if cmd, ok := d.registry.Lookup(word, ctx.Wizard); ok {
		if err := cmd.Run(ctx, args); err != nil {
			ctx.Println(err.Error())
		}
		d.fanOut(ctx)
		return
	}

	if inst, name, ok := d.resolveLocal(ctx, word); ok {
		callCtx := inst.CallContext()
		callCtx["actor"] = ctx.ActorID
		callCtx["actor_name"] = ctx.ActorName
		ctx.Invoker.Command(inst.Chunk(), inst.ID, name, callCtx, anyArgs(args))
		d.fanOut(ctx)
		return
	}

	ctx.Println("What?")
}

// resolveLocal scans candidate objects twice: primary command names first,
// aliases second, so an exact name on a later object beats an alias on an
// earlier one.
func (d *Dispatcher) resolveLocal(ctx *Context, word string) (*world.Instance, string, bool) {
	candidates := d.localCandidates(ctx)
	for _, inst := range candidates {
		if _, ok := inst.Chunk().LookupCommand(word); ok {
			for _, n := range inst.Chunk().CommandNames() {
				if n == word {
					return inst, word, true
				}
			}
		}
	}
	for _, inst := range candidates {
		if primary, ok := inst.Chunk().LookupCommand(word); ok {
			return inst, primary, true
		}
	}
	return nil, "", false
}

func (d *Dispatcher) localCandidates(ctx *Context) []*world.Instance {
	var ids []string
	ids = append(ids, ctx.ActorID)
	ids = append(ids, ctx.World.Graph.Contents(ctx.ActorID)...)
	if room, ok := ctx.World.RoomOf(ctx.ActorID); ok {
		ids = append(ids, room)
		for _, id := range ctx.World.Graph.Contents(room) {
			if id != ctx.ActorID {
				ids = append(ids, id)
			}
		}
	}
	out := make([]*world.Instance, 0, len(ids))
	for _, id := range ids {
		if inst, ok := ctx.World.Objects.Get(id); ok {
			out = append(out, inst)
		}
	}
	return out
}

// fanOut delivers the events the command emitted to every AI occupant of
// the actor's room, actor excluded, plus the Go observers. Runs after the
// command body so observers see the post-state.
func (d *Dispatcher) fanOut(ctx *Context) {
	events := ctx.events
	ctx.events = nil
	if len(events) == 0 {
		return
	}
	actorRoom, _ := ctx.World.RoomOf(ctx.ActorID)
	for _, ev := range events {
		room := ev.Room
		if room == "" {
			room = actorRoom
		}
		if room == "" {
			continue
		}
		for _, id := range ctx.World.Graph.Contents(room) {
			if id == ev.ActorID {
				continue
			}
			inst, ok := ctx.World.Objects.Get(id)
			if !ok || !inst.Satisfies(scripting.CapAINPC) {
				continue
			}
			for _, o := range d.observers {
				o.ObserveRoomEvent(room, id, ev)
			}
			if inst.Chunk().HasMethod("on_room_event") {
				ctx.Invoker.Hook(inst.Chunk(), id, "on_room_event",
					inst.CallContext(), []any{ev.luaTable()})
			}
		}
	}
}

func anyArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}
