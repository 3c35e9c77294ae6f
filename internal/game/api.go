package game

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/msg"
	"github.com/jitrealm/server/internal/scripting"
	"github.com/jitrealm/server/internal/world"
)

// bindDriverAPI publishes the `driver` table world code programs against.
// Every binding runs inside a safe-invoked Lua call, which happens only
// under ws.Mu on the loop goroutine, so no extra locking here.
func (g *Game) bindDriverAPI() {
	g.engine.Bind("clone", g.apiClone)
	g.engine.Bind("destruct", g.apiDestruct)
	g.engine.Bind("move", g.apiMove)
	g.engine.Bind("room_of", g.apiRoomOf)
	g.engine.Bind("contents", g.apiContents)
	g.engine.Bind("exits", g.apiExits)
	g.engine.Bind("name_of", g.apiNameOf)
	g.engine.Bind("get_state", g.apiGetState)
	g.engine.Bind("set_state", g.apiSetState)
	g.engine.Bind("tell", g.apiTell)
	g.engine.Bind("room_message", g.apiRoomMessage)
	g.engine.Bind("call_out", g.apiCallOut)
	g.engine.Bind("call_out_every", g.apiCallOutEvery)
	g.engine.Bind("cancel_call_out", g.apiCancelCallOut)
	g.engine.Bind("set_heartbeat", g.apiSetHeartbeat)
	g.engine.Bind("stop_heartbeat", g.apiStopHeartbeat)
	g.engine.Bind("start_combat", g.apiStartCombat)
	g.engine.Bind("end_combat", g.apiEndCombat)
	g.engine.Bind("target_of", g.apiTargetOf)
	g.engine.Bind("now_millis", g.apiNowMillis)
	g.engine.Bind("log", g.apiLog)
	g.engine.Bind("recall", g.apiRecall)
	g.engine.Bind("ai_reply", g.apiAIReply)
}

func (g *Game) apiClone(L *lua.LState) int {
	bp := L.CheckString(1)
	id, err := g.ws.Objects.Clone(bp, nil)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	if L.GetTop() >= 2 {
		if dest := L.CheckString(2); dest != "" {
			if err := g.ws.MoveObject(id, dest); err != nil {
				L.Push(lua.LString(id))
				L.Push(lua.LString(err.Error()))
				return 2
			}
		}
	}
	L.Push(lua.LString(id))
	return 1
}

func (g *Game) apiDestruct(L *lua.LState) int {
	id := L.CheckString(1)
	if err := g.ws.Objects.Destruct(id); err != nil {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LTrue)
	return 1
}

func (g *Game) apiMove(L *lua.LState) int {
	if err := g.ws.MoveObject(L.CheckString(1), L.CheckString(2)); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func (g *Game) apiRoomOf(L *lua.LState) int {
	room, ok := g.ws.RoomOf(L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(room))
	return 1
}

func (g *Game) apiContents(L *lua.LState) int {
	t := L.NewTable()
	for i, id := range g.ws.Graph.Contents(L.CheckString(1)) {
		t.RawSetInt(i+1, lua.LString(id))
	}
	L.Push(t)
	return 1
}

func (g *Game) apiExits(L *lua.LState) int {
	t := L.NewTable()
	for dir, dest := range g.ws.Exits(L.CheckString(1)) {
		t.RawSetString(dir, lua.LString(dest))
	}
	L.Push(t)
	return 1
}

func (g *Game) apiNameOf(L *lua.LState) int {
	inst, ok := g.ws.Objects.Get(L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(inst.Name()))
	return 1
}

func (g *Game) apiGetState(L *lua.LState) int {
	inst, ok := g.ws.Objects.Get(L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	v, ok := inst.Store.Get(L.CheckString(2))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(scripting.ToLua(L, v.Any()))
	return 1
}

func (g *Game) apiSetState(L *lua.LState) int {
	inst, ok := g.ws.Objects.Get(L.CheckString(1))
	if !ok {
		L.Push(lua.LFalse)
		return 1
	}
	key := L.CheckString(2)
	raw := scripting.FromLua(L.Get(3))
	if raw == nil {
		inst.Store.Delete(key)
		L.Push(lua.LTrue)
		return 1
	}
	v, err := world.ValueFromAny(raw)
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	inst.Store.Set(key, v)
	L.Push(lua.LTrue)
	return 1
}

func (g *Game) apiTell(L *lua.LState) int {
	g.queue.Enqueue(msg.Message{
		Recipient: L.CheckString(1),
		Kind:      msg.KindSystem,
		Text:      L.CheckString(2),
	})
	return 0
}

func (g *Game) apiRoomMessage(L *lua.LState) int {
	g.queue.Enqueue(msg.Message{
		Room: L.CheckString(1),
		Kind: msg.KindRoom,
		Text: L.CheckString(2),
	})
	return 0
}

func (g *Game) apiCallOut(L *lua.LState) int {
	target := L.CheckString(1)
	method := L.CheckString(2)
	seconds := float64(L.CheckNumber(3))
	var args []any
	for i := 4; i <= L.GetTop(); i++ {
		args = append(args, scripting.FromLua(L.Get(i)))
	}
	id, err := g.callouts.Schedule(target, method,
		time.Duration(seconds*float64(time.Second)), g.clk.Now(), args)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LNumber(id))
	return 1
}

func (g *Game) apiCallOutEvery(L *lua.LState) int {
	target := L.CheckString(1)
	method := L.CheckString(2)
	seconds := float64(L.CheckNumber(3))
	id, err := g.callouts.ScheduleEvery(target, method,
		time.Duration(seconds*float64(time.Second)), g.clk.Now(), nil)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LNumber(id))
	return 1
}

func (g *Game) apiCancelCallOut(L *lua.LState) int {
	g.callouts.Cancel(L.CheckString(1), uint64(L.CheckNumber(2)))
	return 0
}

func (g *Game) apiSetHeartbeat(L *lua.LState) int {
	id := L.CheckString(1)
	seconds := float64(L.CheckNumber(2))
	if seconds <= 0 {
		g.hb.Unregister(id)
		return 0
	}
	g.hb.Register(id, time.Duration(seconds*float64(time.Second)), g.clk.Now())
	return 0
}

func (g *Game) apiStopHeartbeat(L *lua.LState) int {
	g.hb.Unregister(L.CheckString(1))
	return 0
}

func (g *Game) apiStartCombat(L *lua.LState) int {
	g.ws.Combat.Start(L.CheckString(1), L.CheckString(2), g.clk.Now())
	return 0
}

func (g *Game) apiEndCombat(L *lua.LState) int {
	g.ws.Combat.End(L.CheckString(1))
	return 0
}

func (g *Game) apiTargetOf(L *lua.LState) int {
	target, ok := g.ws.Combat.Target(L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(target))
	return 1
}

func (g *Game) apiNowMillis(L *lua.LState) int {
	L.Push(lua.LNumber(g.clk.Now().UnixMilli()))
	return 1
}

func (g *Game) apiLog(L *lua.LState) int {
	g.log.Info("world code",
		zap.String("message", L.CheckString(1)))
	return 0
}

// apiRecall surfaces an NPC's stored observations. Returns an empty table
// when the memory store is disabled. The query is bounded so a slow
// database cannot eat a whole hook budget.
func (g *Game) apiRecall(L *lua.LState) int {
	t := L.NewTable()
	if g.memory == nil {
		L.Push(t)
		return 1
	}
	npcID := L.CheckString(1)
	limit := g.cfg.Memory.RecallLimit
	if L.GetTop() >= 2 {
		limit = int(L.CheckNumber(2))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	rows, err := g.memory.Recall(ctx, npcID, limit)
	if err != nil {
		g.log.Warn("recall failed", zap.String("npc", npcID), zap.Error(err))
		L.Push(t)
		return 1
	}
	for i, row := range rows {
		entry := L.NewTable()
		entry.RawSetString("kind", lua.LString(row.Kind))
		entry.RawSetString("actor_name", lua.LString(row.ActorName))
		entry.RawSetString("message", lua.LString(row.Message))
		entry.RawSetString("room", lua.LString(row.RoomID))
		entry.RawSetString("at_millis", lua.LNumber(row.ObservedAt.UnixMilli()))
		t.RawSetInt(i+1, entry)
	}
	L.Push(t)
	return 1
}

// apiAIReply hands a prompt to the language-model provider without
// blocking the tick. A non-empty reply arrives later as a room say from
// the NPC. Returns false when no provider is configured.
func (g *Game) apiAIReply(L *lua.LState) int {
	if !g.provider.Enabled() {
		L.Push(lua.LFalse)
		return 1
	}
	npcID := L.CheckString(1)
	prompt := L.CheckString(2)

	room, ok := g.ws.RoomOf(npcID)
	if !ok {
		L.Push(lua.LFalse)
		return 1
	}
	inst, ok := g.ws.Objects.Get(npcID)
	if !ok {
		L.Push(lua.LFalse)
		return 1
	}
	name := inst.Name()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		reply, err := g.provider.Complete(ctx, prompt)
		if err != nil {
			g.log.Warn("ai reply failed", zap.String("npc", npcID), zap.Error(err))
			return
		}
		if reply == "" {
			return
		}
		g.queue.Enqueue(msg.Message{
			Sender: npcID,
			Kind:   msg.KindSay,
			Room:   room,
			Text:   fmt.Sprintf("%s says: %s", name, reply),
		})
	}()

	L.Push(lua.LTrue)
	return 1
}
