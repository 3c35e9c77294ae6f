package game

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jitrealm/server/internal/config"
	"github.com/jitrealm/server/internal/core/clock"
	"github.com/jitrealm/server/internal/msg"
	gonet "github.com/jitrealm/server/internal/net"
	"github.com/jitrealm/server/internal/persist"
	"github.com/jitrealm/server/internal/world"
)

func writeWorldFile(t *testing.T, worldDir, rel, content string) {
	t.Helper()
	path := filepath.Join(worldDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// testGame builds a full driver over a temp world tree with a manual
// clock. cfg mutations (if any) must happen through the returned config
// before calling Boot.
func testGame(t *testing.T) (*Game, *clock.Manual, *config.Config) {
	t.Helper()
	worldDir := t.TempDir()

	writeWorldFile(t, worldDir, "manifest.yaml", `
preload:
  - rooms/square
boot:
  - blueprint: daemons/clockd
    into: rooms/square
`)
	writeWorldFile(t, worldDir, "rooms/square.lua", `
return { caps = { "room" }, name = "the square" }
`)
	writeWorldFile(t, worldDir, "daemons/clockd.lua", `
local d = { caps = { "daemon" }, name = "clock daemon" }
function d.on_load(ctx)
  driver.set_state(ctx.id, "ticks", 0)
  driver.call_out(ctx.id, "ping", 3)
end
function d.heartbeat(ctx)
  local n = driver.get_state(ctx.id, "ticks") or 0
  driver.set_state(ctx.id, "ticks", n + 1)
end
function d.ping(ctx)
  driver.set_state(ctx.id, "pinged", true)
end
function d.post_restore(ctx)
  driver.set_state(ctx.id, "restored", true)
end
return d
`)
	writeWorldFile(t, worldDir, "std/player.lua", `
return { caps = { "player", "living" }, name = "adventurer", short = "an adventurer" }
`)
	writeWorldFile(t, worldDir, "items/dagger.lua", `
return { caps = { "item", "weapon" }, name = "bent dagger", slot = "wielded", damage = 2 }
`)
	writeWorldFile(t, worldDir, "npc/orc.lua", `
local o = { caps = { "npc", "living" }, name = "orc", damage = 4 }
function o.on_load(ctx)
  driver.set_state(ctx.id, "hp", 3)
  driver.set_state(ctx.id, "max_hp", 3)
end
return o
`)

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	cfg.Paths.WorldDirectory = worldDir
	cfg.Paths.SaveDirectory = filepath.Join(t.TempDir(), "save")
	cfg.Paths.PlayersDirectory = filepath.Join(t.TempDir(), "players")

	clk := clock.NewManual(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	g, err := New(cfg, clk, zaptest.NewLogger(t))
	require.NoError(t, err)
	return g, clk, cfg
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeWorldFile(t, dir, "manifest.yaml", `
preload:
  - rooms/square
  - std/player
boot:
  - blueprint: npc/sage
    into: rooms/square
  - blueprint: daemons/time_d
`)
	m, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"rooms/square", "std/player"}, m.Preload)
	require.Len(t, m.Boot, 2)
	assert.Equal(t, "npc/sage", m.Boot[0].Blueprint)
	assert.Equal(t, "rooms/square", m.Boot[0].Into)
	assert.Empty(t, m.Boot[1].Into)
}

func TestLoadManifestMissingFile(t *testing.T) {
	m, err := LoadManifest(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, m.Preload)
	assert.Empty(t, m.Boot)
}

func TestBootFreshWorld(t *testing.T) {
	g, _, _ := testGame(t)
	require.NoError(t, g.Boot())

	// the daemon was cloned and placed in its room
	daemon := "daemons/clockd#000001"
	inst, ok := g.ws.Objects.Get(daemon)
	require.True(t, ok)

	room, ok := g.ws.RoomOf(daemon)
	require.True(t, ok)
	roomInst, _ := g.ws.Objects.Get(room)
	assert.Equal(t, "rooms/square", roomInst.BlueprintID)

	// on_load ran through the driver API
	ticks, ok := inst.Store.Int("ticks")
	require.True(t, ok)
	assert.Zero(t, ticks)

	// heartbeat registered from capability, callout armed by on_load
	assert.True(t, g.hb.Registered(daemon))
	assert.Equal(t, 1, g.callouts.Len())
}

func TestTickWorldRunsHeartbeatsAndCallouts(t *testing.T) {
	g, clk, _ := testGame(t)
	require.NoError(t, g.Boot())
	daemon := "daemons/clockd#000001"

	clk.Advance(2 * time.Second) // one default heartbeat interval
	g.tickWorld()

	inst, _ := g.ws.Objects.Get(daemon)
	ticks, _ := inst.Store.Int("ticks")
	assert.Equal(t, int64(1), ticks)
	_, pinged := inst.Store.Bool("pinged")
	assert.False(t, pinged)

	clk.Advance(time.Second) // the 3s callout falls due
	g.tickWorld()

	ticks, _ = inst.Store.Int("ticks")
	assert.Equal(t, int64(1), ticks, "heartbeat not due again yet")
	pingedVal, ok := inst.Store.Bool("pinged")
	require.True(t, ok)
	assert.True(t, pingedVal)
	assert.Zero(t, g.callouts.Len(), "one-shot callout consumed")
}

func TestDestructUnregistersSchedules(t *testing.T) {
	g, _, _ := testGame(t)
	require.NoError(t, g.Boot())
	daemon := "daemons/clockd#000001"

	g.ws.Mu.Lock()
	require.NoError(t, g.ws.Objects.Destruct(daemon))
	g.ws.Mu.Unlock()

	assert.False(t, g.hb.Registered(daemon))
	assert.Zero(t, g.callouts.Len())
}

func TestSaveAndRestoreAcrossBoots(t *testing.T) {
	g, clk, cfg := testGame(t)
	require.NoError(t, g.Boot())
	daemon := "daemons/clockd#000001"

	clk.Advance(2 * time.Second)
	g.tickWorld()

	g.ws.Mu.Lock()
	require.NoError(t, g.RequestSave())
	g.ws.Mu.Unlock()

	// a second boot over the same directories restores instead of re-booting
	g2 := testGameFromConfig(t, cfg, clk)
	require.NoError(t, g2.Boot())

	inst, ok := g2.ws.Objects.Get(daemon)
	require.True(t, ok)
	ticks, _ := inst.Store.Int("ticks")
	assert.Equal(t, int64(1), ticks)

	restored, ok := inst.Store.Bool("restored")
	require.True(t, ok)
	assert.True(t, restored, "post_restore hook ran")

	assert.True(t, g2.hb.Registered(daemon))

	// restore does not re-run on_load, so no boot clone happened twice
	assert.Equal(t, 1, countByBlueprint(g2.ws, "daemons/clockd"))
}

func testGameFromConfig(t *testing.T, cfg *config.Config, clk clock.Clock) *Game {
	t.Helper()
	g, err := New(cfg, clk, zaptest.NewLogger(t))
	require.NoError(t, err)
	return g
}

func countByBlueprint(ws *world.State, bp string) int {
	n := 0
	for _, id := range ws.Objects.All() {
		if inst, ok := ws.Objects.Get(id); ok && inst.BlueprintID == bp {
			n++
		}
	}
	return n
}

func TestCombatRoundKillsNPC(t *testing.T) {
	g, clk, _ := testGame(t)
	require.NoError(t, g.Boot())

	g.ws.Mu.Lock()
	room, err := g.roomInstance("rooms/square")
	require.NoError(t, err)
	a, err := g.ws.Objects.Clone("npc/orc", nil)
	require.NoError(t, err)
	b, err := g.ws.Objects.Clone("npc/orc", nil)
	require.NoError(t, err)
	require.NoError(t, g.ws.Graph.Add(room, a))
	require.NoError(t, g.ws.Graph.Add(room, b))
	g.ws.Combat.Start(a, b, clk.Now())
	g.ws.Mu.Unlock()

	clk.Advance(2 * time.Second) // one combat round
	g.tickWorld()

	// orc damage 4 against 3 hp: the first strike kills, no counterattack
	_, bAlive := g.ws.Objects.Get(b)
	assert.False(t, bAlive)
	ia, ok := g.ws.Objects.Get(a)
	require.True(t, ok)
	hp, _ := ia.Store.Int("hp")
	assert.Equal(t, int64(3), hp)

	assert.False(t, g.ws.Combat.IsInCombat(a))

	// the room saw the hit and the death
	msgs := g.queue.Drain()
	require.Len(t, msgs, 2)
	assert.Equal(t, msg.KindRoom, msgs[0].Kind)
	assert.Contains(t, msgs[0].Text, "hits")
	assert.Contains(t, msgs[1].Text, "is slain by")
}

func TestCombatEndsWhenFightersSeparate(t *testing.T) {
	g, clk, _ := testGame(t)
	require.NoError(t, g.Boot())

	g.ws.Mu.Lock()
	room, _ := g.roomInstance("rooms/square")
	a, _ := g.ws.Objects.Clone("npc/orc", nil)
	b, _ := g.ws.Objects.Clone("npc/orc", nil)
	require.NoError(t, g.ws.Graph.Add(room, a))
	require.NoError(t, g.ws.Graph.Add(room, b))
	g.ws.Combat.Start(a, b, clk.Now())

	// b wanders off before the round lands
	other, err := g.ws.Objects.Clone("rooms/square", nil)
	require.NoError(t, err)
	require.NoError(t, g.ws.MoveObject(b, other))
	g.ws.Mu.Unlock()

	clk.Advance(2 * time.Second)
	g.tickWorld()

	assert.False(t, g.ws.Combat.IsInCombat(a))
	for _, id := range []string{a, b} {
		inst, ok := g.ws.Objects.Get(id)
		require.True(t, ok)
		hp, _ := inst.Store.Int("hp")
		assert.Equal(t, int64(3), hp, "%s untouched", id)
	}
}

func TestPlayerDirectoryEmptyWithoutClients(t *testing.T) {
	g, _, _ := testGame(t)
	assert.Empty(t, g.Names())
	_, ok := g.PlayerID("bob")
	assert.False(t, ok)
}

func TestAutoLoginCreatesAccountAndEntersWorld(t *testing.T) {
	g, _, cfg := testGame(t)
	require.NoError(t, g.Boot())

	_, local := net.Pipe()
	defer local.Close()
	sess := gonet.NewSession(local, 1, false, false, 256, zaptest.NewLogger(t))
	c := &client{sess: sess, state: stateAskName}

	g.SetAutoLogin("Zork", "secret4")
	g.autoLogin(c)

	require.Equal(t, statePlaying, c.state)
	assert.True(t, c.wizard, "first account becomes the wizard")
	assert.True(t, persist.NewAccounts(cfg.Paths.PlayersDirectory).Exists("zork"))

	room, ok := g.ws.RoomOf(c.playerID)
	require.True(t, ok)
	inst, _ := g.ws.Objects.Get(room)
	assert.Equal(t, cfg.Paths.StartRoom, inst.BlueprintID)

	// credentials are consumed, a second session gets the prompts
	assert.Empty(t, g.autoName)
}

func TestLogoutPersistsInventoryAcrossLogins(t *testing.T) {
	g, _, _ := testGame(t)
	require.NoError(t, g.Boot())

	_, local := net.Pipe()
	defer local.Close()
	sess := gonet.NewSession(local, 1, false, false, 256, zaptest.NewLogger(t))
	c := &client{sess: sess, state: stateAskName}
	g.SetAutoLogin("Zork", "secret4")
	g.autoLogin(c)
	require.Equal(t, statePlaying, c.state)

	g.ws.Mu.Lock()
	dagger, err := g.ws.Objects.Clone("items/dagger", nil)
	require.NoError(t, err)
	require.NoError(t, g.ws.Graph.Add(c.playerID, dagger))
	require.NoError(t, g.ws.Graph.Equip(c.playerID, "wielded", dagger))
	room, ok := g.ws.RoomOf(c.playerID)
	require.True(t, ok)
	g.ws.Mu.Unlock()

	g.logout(c)

	// the account took the belongings with it
	assert.Equal(t, []string{dagger}, c.acct.Inventory)
	assert.Equal(t, map[string]string{"wielded": dagger}, c.acct.Equipment)

	// nothing spilled into the room and the item is gone from the world
	g.ws.Mu.Lock()
	assert.NotContains(t, g.ws.Graph.Contents(room), dagger)
	_, alive := g.ws.Objects.Get(dagger)
	g.ws.Mu.Unlock()
	assert.False(t, alive)

	// the next login gets a fresh clone, carried and equipped
	_, local2 := net.Pipe()
	defer local2.Close()
	sess2 := gonet.NewSession(local2, 2, false, false, 256, zaptest.NewLogger(t))
	c2 := &client{sess: sess2, state: stateAskName}
	g.SetAutoLogin("Zork", "secret4")
	g.autoLogin(c2)
	require.Equal(t, statePlaying, c2.state)

	g.ws.Mu.Lock()
	carried := g.ws.Graph.Contents(c2.playerID)
	require.Len(t, carried, 1)
	inst, ok := g.ws.Objects.Get(carried[0])
	require.True(t, ok)
	assert.Equal(t, "items/dagger", inst.BlueprintID)
	item, equipped := g.ws.Graph.EquippedItem(c2.playerID, "wielded")
	g.ws.Mu.Unlock()
	require.True(t, equipped)
	assert.Equal(t, carried[0], item)
}

func TestAutoLoginWrongPasswordStaysAtPrompt(t *testing.T) {
	g, _, cfg := testGame(t)
	require.NoError(t, g.Boot())

	accounts := persist.NewAccounts(cfg.Paths.PlayersDirectory)
	_, err := accounts.Create("zork", "rightpass", false)
	require.NoError(t, err)

	_, local := net.Pipe()
	defer local.Close()
	sess := gonet.NewSession(local, 1, false, false, 256, zaptest.NewLogger(t))
	c := &client{sess: sess, state: stateAskName}

	g.SetAutoLogin("zork", "wrongpass")
	g.autoLogin(c)

	assert.NotEqual(t, statePlaying, c.state)
	assert.Empty(t, c.playerID)
}
