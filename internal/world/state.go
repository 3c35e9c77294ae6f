package world

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/core/clock"
	"github.com/jitrealm/server/internal/safe"
	"github.com/jitrealm/server/internal/scripting"
)

// State aggregates the world registries behind the single world-state
// mutex. Tick-derived effects and command-derived effects both take Mu
// before mutating; reads that hand out collections copy first.
type State struct {
	Mu sync.Mutex

	Objects *Manager
	Graph   *Containment
	Combat  *Combat

	invoker *safe.Invoker
	clk     clock.Clock
	log     *zap.Logger

	fleeChance int // percent
	rng        *rand.Rand
}

func NewState(objects *Manager, graph *Containment, combat *Combat, invoker *safe.Invoker, clk clock.Clock, fleeChancePercent int, log *zap.Logger) *State {
	ws := &State{
		Objects:    objects,
		Graph:      graph,
		Combat:     combat,
		invoker:    invoker,
		clk:        clk,
		log:        log,
		fleeChance: fleeChancePercent,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	// Destruct teardown: containment and combat references die with the
	// instance. Scheduler teardown is registered by the game loop.
	objects.OnDestruct(func(id string) {
		ws.dropOnDestruct(id)
	})
	return ws
}

// dropOnDestruct spills a dying container's children into its own
// container (or nowhere) and clears its edges and pairings.
func (ws *State) dropOnDestruct(id string) {
	parent, hadParent := ws.Graph.Container(id)
	for _, child := range ws.Graph.DropAll(id) {
		if hadParent {
			_ = ws.Graph.Add(parent, child)
		}
	}
	ws.Combat.End(id)
}

// IsRoom reports whether id names a live instance with the room
// capability.
func (ws *State) IsRoom(id string) bool {
	inst, ok := ws.Objects.Get(id)
	return ok && inst.Satisfies(scripting.CapRoom)
}

// RoomOf walks up the containment chain to the enclosing room.
func (ws *State) RoomOf(id string) (string, bool) {
	for cur := id; ; {
		parent, ok := ws.Graph.Container(cur)
		if !ok {
			return "", false
		}
		if ws.IsRoom(parent) {
			return parent, true
		}
		cur = parent
	}
}

// MoveObject reparents child atomically, merging stackables and firing
// on_leave / on_enter when the move crosses a room boundary with rooms at
// both endpoints.
func (ws *State) MoveObject(child, dest string) error {
	inst, ok := ws.Objects.Get(child)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoInstance, child)
	}
	if _, ok := ws.Objects.Get(dest); !ok {
		return fmt.Errorf("%w: %s", ErrNoInstance, dest)
	}

	from, _ := ws.Graph.Container(child)
	if from == dest {
		return nil
	}

	// Stackables merge with a peer of the same blueprint already present.
	if inst.Satisfies(scripting.CapStackable) {
		if peer := ws.findStackPeer(inst, dest); peer != nil {
			peer.Store.SetInt("quantity", peer.Quantity()+inst.Quantity())
			return ws.Objects.Destruct(child)
		}
	}

	if err := ws.Graph.Move(child, dest); err != nil {
		return err
	}

	crossesRooms := from != "" && ws.IsRoom(from) && ws.IsRoom(dest)
	if crossesRooms {
		ws.fireRoomHook(from, "on_leave", child)
		ws.fireRoomHook(dest, "on_enter", child)
	}
	return nil
}

func (ws *State) findStackPeer(inst *Instance, container string) *Instance {
	for _, id := range ws.Graph.Contents(container) {
		if id == inst.ID {
			continue
		}
		peer, ok := ws.Objects.Get(id)
		if ok && peer.BlueprintID == inst.BlueprintID && peer.Satisfies(scripting.CapStackable) {
			return peer
		}
	}
	return nil
}

func (ws *State) fireRoomHook(roomID, hook, moverID string) {
	room, ok := ws.Objects.Get(roomID)
	if !ok || !room.Chunk().HasMethod(hook) {
		return
	}
	ws.invoker.Hook(room.Chunk(), roomID, hook, room.CallContext(), []any{moverID})
}

// InvokeHook runs a named hook on an instance under the hook budget, if
// the blueprint defines it.
func (ws *State) InvokeHook(inst *Instance, method string, args []any) safe.Result {
	if !inst.Chunk().HasMethod(method) {
		return safe.Result{}
	}
	return ws.invoker.Hook(inst.Chunk(), inst.ID, method, inst.CallContext(), args)
}

// Exits returns a room's exit table (direction -> blueprint or instance
// id). Exits stored in the state store win over the blueprint's static
// table, so rooms can rewire themselves at runtime.
func (ws *State) Exits(roomID string) map[string]string {
	inst, ok := ws.Objects.Get(roomID)
	if !ok {
		return nil
	}
	exits := inst.Chunk().FieldStringMap("exits")
	if exits == nil {
		exits = make(map[string]string)
	}
	for _, key := range inst.Store.Keys() {
		if dir, found := strings.CutPrefix(key, "exit:"); found {
			if dest, ok := inst.Store.String(key); ok {
				exits[dir] = dest
			}
		}
	}
	return exits
}

// Flee probabilistically ends id's combat. On success it returns a random
// exit direction and destination from the fighter's room.
func (ws *State) Flee(id string) (dir, dest string, fled bool) {
	if !ws.Combat.IsInCombat(id) {
		return "", "", false
	}
	if ws.rng.Intn(100) >= ws.fleeChance {
		return "", "", false
	}
	room, ok := ws.RoomOf(id)
	if !ok {
		return "", "", false
	}
	exits := ws.Exits(room)
	if len(exits) == 0 {
		return "", "", false
	}
	dirs := make([]string, 0, len(exits))
	for d := range exits {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	dir = dirs[ws.rng.Intn(len(dirs))]
	ws.Combat.End(id)
	return dir, exits[dir], true
}

// ResolveInRoom resolves a player's word against the actor's inventory
// first, then the actor's room contents: exact object id, exact name,
// then unique name prefix.
func (ws *State) ResolveInRoom(actorID, word string) (*Instance, bool) {
	var pool []string
	pool = append(pool, ws.Graph.Contents(actorID)...)
	if room, ok := ws.RoomOf(actorID); ok {
		for _, id := range ws.Graph.Contents(room) {
			if id != actorID {
				pool = append(pool, id)
			}
		}
	}
	word = strings.ToLower(word)

	var prefix *Instance
	prefixHits := 0
	for _, id := range pool {
		inst, ok := ws.Objects.Get(id)
		if !ok {
			continue
		}
		if id == word {
			return inst, true
		}
		name := strings.ToLower(inst.Name())
		if name == word {
			return inst, true
		}
		if strings.HasPrefix(name, word) {
			prefix = inst
			prefixHits++
		}
	}
	if prefixHits == 1 {
		return prefix, true
	}
	return nil, false
}
