package command

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jitrealm/server/internal/core/clock"
	"github.com/jitrealm/server/internal/msg"
	"github.com/jitrealm/server/internal/safe"
	"github.com/jitrealm/server/internal/scripting"
	"github.com/jitrealm/server/internal/world"
)

type fakeDirectory struct {
	players map[string]string // name -> object id
}

func (f *fakeDirectory) Names() []string {
	var out []string
	for n := range f.players {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (f *fakeDirectory) PlayerID(name string) (string, bool) {
	id, ok := f.players[name]
	return id, ok
}

type builtinHarness struct {
	ws       *world.State
	clk      *clock.Manual
	queue    *msg.Queue
	registry *Registry
	sink     *fakeSink
	dir      *fakeDirectory

	actor  string
	square string
}

func newBuiltinHarness(t *testing.T) *builtinHarness {
	t.Helper()
	log := zaptest.NewLogger(t)
	root := t.TempDir()

	writeBlueprint(t, root, "rooms/square", `
return {
  caps = { "room" },
  name = "the square",
  long = "A dusty village square.",
  exits = { north = "rooms/church" },
}
`)
	writeBlueprint(t, root, "rooms/church", `
return {
  caps = { "room" },
  name = "the church",
  exits = { south = "rooms/square" },
}
`)
	writeBlueprint(t, root, "items/sword", `
return { caps = { "item", "weapon" }, name = "rusty sword", slot = "wielded", damage = 4 }
`)
	writeBlueprint(t, root, "npc/rat", `
return { caps = { "npc", "living" }, name = "giant rat", short = "a giant rat" }
`)
	writeBlueprint(t, root, "std/body", `
return { caps = { "player" }, name = "adventurer" }
`)

	eng := scripting.NewEngine(root, log)
	inv := safe.New(250*time.Millisecond, 50*time.Millisecond, log)
	clk := clock.NewManual(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	mgr := world.NewManager(eng, inv, clk, world.GCPolicy{}, log)
	ws := world.NewState(mgr, world.NewContainment(), world.NewCombat(2*time.Second), inv, clk, 100, log)

	square, err := mgr.Clone("rooms/square", nil)
	require.NoError(t, err)
	actor, err := mgr.Clone("std/body", map[string]world.Value{
		"name": world.StringValue("Bob"),
	})
	require.NoError(t, err)
	require.NoError(t, ws.Graph.Add(square, actor))

	registry := NewRegistry()
	RegisterBuiltins(registry)

	return &builtinHarness{
		ws:       ws,
		clk:      clk,
		queue:    msg.NewQueue(64),
		registry: registry,
		sink:     &fakeSink{},
		dir:      &fakeDirectory{players: map[string]string{"Bob": actor}},
		actor:    actor,
		square:   square,
	}
}

func (h *builtinHarness) ctx(t *testing.T) *Context {
	return &Context{
		ActorID:   h.actor,
		ActorName: "Bob",
		World:     h.ws,
		Queue:     h.queue,
		Clock:     h.clk,
		Players:   h.dir,
		Commands:  h.registry,
		Out:       h.sink,
		Log:       zaptest.NewLogger(t),
	}
}

func (h *builtinHarness) run(t *testing.T, ctx *Context, line string) {
	t.Helper()
	fields := strings.Fields(line)
	cmd, ok := h.registry.Lookup(fields[0], ctx.Wizard)
	require.True(t, ok, "command %q", fields[0])
	if err := cmd.Run(ctx, fields[1:]); err != nil {
		ctx.Println(err.Error())
	}
}

func (h *builtinHarness) output() string {
	return strings.Join(h.sink.lines, "")
}

func TestLookShowsRoomExitsAndOccupants(t *testing.T) {
	h := newBuiltinHarness(t)
	rat, _ := h.ws.Objects.Clone("npc/rat", nil)
	require.NoError(t, h.ws.Graph.Add(h.square, rat))

	h.run(t, h.ctx(t), "look")
	out := h.output()
	assert.Contains(t, out, "the square")
	assert.Contains(t, out, "A dusty village square.")
	assert.Contains(t, out, "Exits: north")
	assert.Contains(t, out, "a giant rat")
	assert.NotContains(t, out, "adventurer", "the actor does not see itself")
}

func TestLookAtThing(t *testing.T) {
	h := newBuiltinHarness(t)
	rat, _ := h.ws.Objects.Clone("npc/rat", nil)
	require.NoError(t, h.ws.Graph.Add(h.square, rat))

	h.run(t, h.ctx(t), "look rat")
	assert.Contains(t, h.output(), "giant rat")

	h.sink.lines = nil
	h.run(t, h.ctx(t), "look dragon")
	assert.Contains(t, h.output(), "You see no dragon here.")
}

func TestGoMovesThroughExit(t *testing.T) {
	h := newBuiltinHarness(t)
	ctx := h.ctx(t)
	h.run(t, ctx, "go north")

	room, ok := h.ws.RoomOf(h.actor)
	require.True(t, ok)
	inst, _ := h.ws.Objects.Get(room)
	assert.Equal(t, "rooms/church", inst.BlueprintID)

	// departure names the room that was left, arrival the destination
	require.Len(t, ctx.events, 2)
	assert.Equal(t, EventDeparture, ctx.events[0].Kind)
	assert.Equal(t, h.square, ctx.events[0].Room)
	assert.Equal(t, EventArrival, ctx.events[1].Kind)
	assert.Equal(t, room, ctx.events[1].Room)

	// arriving triggers a look
	assert.Contains(t, h.output(), "the church")
}

func TestGoDirectionAlias(t *testing.T) {
	h := newBuiltinHarness(t)
	ctx := h.ctx(t)
	// "n" expands to north
	h.run(t, ctx, "go n")

	room, _ := h.ws.RoomOf(h.actor)
	inst, _ := h.ws.Objects.Get(room)
	assert.Equal(t, "rooms/church", inst.BlueprintID)
}

func TestGoRoomsAreSingletons(t *testing.T) {
	h := newBuiltinHarness(t)
	ctx := h.ctx(t)
	h.run(t, ctx, "go north")
	first, _ := h.ws.RoomOf(h.actor)

	h.run(t, ctx, "go south")
	h.run(t, ctx, "go north")
	second, _ := h.ws.RoomOf(h.actor)

	assert.Equal(t, first, second)
}

func TestGoBadDirection(t *testing.T) {
	h := newBuiltinHarness(t)
	h.run(t, h.ctx(t), "go west")
	assert.Contains(t, h.output(), "You cannot go west.")
}

func TestGoFailedMoveEmitsNoEvents(t *testing.T) {
	h := newBuiltinHarness(t)
	church, err := h.ws.Objects.Clone("rooms/church", nil)
	require.NoError(t, err)
	// the only church instance sits inside the traveller, so the move
	// through the north exit is a cycle and must fail
	require.NoError(t, h.ws.Graph.Add(h.actor, church))

	ctx := h.ctx(t)
	h.run(t, ctx, "go north")

	assert.Contains(t, h.output(), "That way is blocked.")
	assert.Empty(t, ctx.events, "a refused move announces nothing")
	room, ok := h.ws.RoomOf(h.actor)
	require.True(t, ok)
	assert.Equal(t, h.square, room)
}

func TestGetAndDrop(t *testing.T) {
	h := newBuiltinHarness(t)
	sword, _ := h.ws.Objects.Clone("items/sword", nil)
	require.NoError(t, h.ws.Graph.Add(h.square, sword))

	ctx := h.ctx(t)
	h.run(t, ctx, "get sword")
	p, _ := h.ws.Graph.Container(sword)
	assert.Equal(t, h.actor, p)
	assert.Contains(t, h.output(), "You take rusty sword.")

	h.sink.lines = nil
	h.run(t, ctx, "get sword")
	assert.Contains(t, h.output(), "You already have rusty sword.")

	h.sink.lines = nil
	h.run(t, ctx, "drop sword")
	p, _ = h.ws.Graph.Container(sword)
	assert.Equal(t, h.square, p)

	require.NotEmpty(t, ctx.events)
	last := ctx.events[len(ctx.events)-1]
	assert.Equal(t, EventItemDropped, last.Kind)
	assert.Equal(t, sword, last.Target)
}

func TestGive(t *testing.T) {
	h := newBuiltinHarness(t)
	sword, _ := h.ws.Objects.Clone("items/sword", nil)
	rat, _ := h.ws.Objects.Clone("npc/rat", nil)
	require.NoError(t, h.ws.Graph.Add(h.actor, sword))
	require.NoError(t, h.ws.Graph.Add(h.square, rat))

	h.run(t, h.ctx(t), "give sword to rat")
	p, _ := h.ws.Graph.Container(sword)
	assert.Equal(t, rat, p)
	assert.Contains(t, h.output(), "You give rusty sword to giant rat.")
}

func TestEquipAndUnequip(t *testing.T) {
	h := newBuiltinHarness(t)
	sword, _ := h.ws.Objects.Clone("items/sword", nil)
	require.NoError(t, h.ws.Graph.Add(h.actor, sword))

	ctx := h.ctx(t)
	h.run(t, ctx, "equip sword")
	item, ok := h.ws.Graph.EquippedItem(h.actor, "wielded")
	require.True(t, ok)
	assert.Equal(t, sword, item)

	// the slot refuses a second weapon
	other, _ := h.ws.Objects.Clone("items/sword", nil)
	require.NoError(t, h.ws.Graph.Add(h.actor, other))
	h.sink.lines = nil
	h.run(t, ctx, "equip "+other)
	assert.Contains(t, h.output(), "You already have rusty sword equipped there.")

	h.run(t, ctx, "unequip wielded")
	_, ok = h.ws.Graph.EquippedItem(h.actor, "wielded")
	assert.False(t, ok)

	// unequipped, still carried
	p, _ := h.ws.Graph.Container(sword)
	assert.Equal(t, h.actor, p)
}

func TestInventoryShowsEquippedSlot(t *testing.T) {
	h := newBuiltinHarness(t)
	ctx := h.ctx(t)
	h.run(t, ctx, "inventory")
	assert.Contains(t, h.output(), "You carry nothing.")

	sword, _ := h.ws.Objects.Clone("items/sword", nil)
	require.NoError(t, h.ws.Graph.Add(h.actor, sword))
	require.NoError(t, h.ws.Graph.Equip(h.actor, "wielded", sword))

	h.sink.lines = nil
	h.run(t, ctx, "inventory")
	out := h.output()
	assert.Contains(t, out, "rusty sword")
	assert.Contains(t, out, "[wielded]")
}

func TestSayEnqueuesRoomMessage(t *testing.T) {
	h := newBuiltinHarness(t)
	ctx := h.ctx(t)
	h.run(t, ctx, "say hello there")

	msgs := h.queue.Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.KindSay, msgs[0].Kind)
	assert.Equal(t, h.square, msgs[0].Room)
	assert.Equal(t, "Bob says: hello there", msgs[0].Text)

	require.Len(t, ctx.events, 1)
	assert.Equal(t, EventSpeech, ctx.events[0].Kind)
	assert.Equal(t, "hello there", ctx.events[0].Message)
}

func TestTell(t *testing.T) {
	h := newBuiltinHarness(t)
	h.dir.players["Eve"] = "std/body#000099"

	h.run(t, h.ctx(t), "tell Eve psst")
	msgs := h.queue.Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.KindTell, msgs[0].Kind)
	assert.Equal(t, "std/body#000099", msgs[0].Recipient)
	assert.Equal(t, "Bob tells you: psst", msgs[0].Text)

	h.sink.lines = nil
	h.run(t, h.ctx(t), "tell Ghost hello")
	assert.Contains(t, h.output(), "No such player: Ghost")
}

func TestKillStartsCombat(t *testing.T) {
	h := newBuiltinHarness(t)
	rat, _ := h.ws.Objects.Clone("npc/rat", nil)
	require.NoError(t, h.ws.Graph.Add(h.square, rat))

	ctx := h.ctx(t)
	h.run(t, ctx, "kill rat")
	tgt, ok := h.ws.Combat.Target(h.actor)
	require.True(t, ok)
	assert.Equal(t, rat, tgt)

	h.sink.lines = nil
	h.run(t, ctx, "kill rat")
	assert.Contains(t, h.output(), "You are already fighting giant rat.")
}

func TestFleeLeavesCombatAndRoom(t *testing.T) {
	h := newBuiltinHarness(t)
	rat, _ := h.ws.Objects.Clone("npc/rat", nil)
	require.NoError(t, h.ws.Graph.Add(h.square, rat))

	ctx := h.ctx(t)
	h.run(t, ctx, "kill rat")
	// flee chance is 100 percent in the harness
	h.run(t, ctx, "flee")

	assert.False(t, h.ws.Combat.IsInCombat(h.actor))
	room, _ := h.ws.RoomOf(h.actor)
	inst, _ := h.ws.Objects.Get(room)
	assert.Equal(t, "rooms/church", inst.BlueprintID)
}

func TestFleeOutsideCombat(t *testing.T) {
	h := newBuiltinHarness(t)
	h.run(t, h.ctx(t), "flee")
	assert.Contains(t, h.output(), "You are not fighting anyone.")
}

func TestWho(t *testing.T) {
	h := newBuiltinHarness(t)
	h.dir.players["Eve"] = "std/body#000099"

	h.run(t, h.ctx(t), "who")
	out := h.output()
	assert.Contains(t, out, "2 player(s) online:")
	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "Eve")
}

func TestQuit(t *testing.T) {
	h := newBuiltinHarness(t)
	h.run(t, h.ctx(t), "quit")
	assert.True(t, h.sink.quit)
	assert.Contains(t, h.output(), "Goodbye.")
}
