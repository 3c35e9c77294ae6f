package game

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/msg"
	"github.com/jitrealm/server/internal/world"
)

// resolveRound applies one symmetric combat round. Fighters separated by
// movement stop fighting instead of trading blows across rooms. Runs
// under ws.Mu.
func (g *Game) resolveRound(a, b string) {
	ia, okA := g.ws.Objects.Get(a)
	ib, okB := g.ws.Objects.Get(b)
	if !okA || !okB {
		g.ws.Combat.End(a)
		g.ws.Combat.End(b)
		return
	}
	roomA, _ := g.ws.RoomOf(a)
	roomB, _ := g.ws.RoomOf(b)
	if roomA == "" || roomA != roomB {
		g.ws.Combat.End(a)
		return
	}

	if g.strike(ia, ib, roomA) {
		return // victim died, pairing already gone
	}
	g.strike(ib, ia, roomA)
}

// strike has attacker hit victim once. Returns true when the victim died.
func (g *Game) strike(attacker, victim *world.Instance, room string) bool {
	dmg := g.attackDamage(attacker)
	hp, _ := victim.Store.Int("hp")
	hp -= dmg
	victim.Store.SetInt("hp", hp)

	g.queue.Enqueue(msg.Message{
		Kind: msg.KindRoom,
		Room: room,
		Text: fmt.Sprintf("%s hits %s for %d.", attacker.Name(), victim.Name(), dmg),
	})

	if hp > 0 {
		return false
	}
	g.kill(attacker, victim, room)
	return true
}

// attackDamage is the attacker's base damage plus every equipped item's
// damage bonus.
func (g *Game) attackDamage(inst *world.Instance) int64 {
	dmg, ok := inst.Store.Int("damage")
	if !ok {
		if n, found := inst.Chunk().FieldInt("damage"); found {
			dmg = n
		} else {
			dmg = 2
		}
	}
	for _, itemID := range g.ws.Graph.Equipped(inst.ID) {
		if item, ok := g.ws.Objects.Get(itemID); ok {
			if bonus, ok := item.Store.Int("damage"); ok {
				dmg += bonus
			} else if bonus, found := item.Chunk().FieldInt("damage"); found {
				dmg += bonus
			}
		}
	}
	if dmg < 1 {
		dmg = 1
	}
	return dmg
}

// kill resolves a death. Players respawn at the start room with full
// health; everything else destructs where it stood, spilling its
// belongings.
func (g *Game) kill(attacker, victim *world.Instance, room string) {
	g.queue.Enqueue(msg.Message{
		Kind: msg.KindRoom,
		Room: room,
		Text: fmt.Sprintf("{red}%s is slain by %s!{/}", victim.Name(), attacker.Name()),
	})

	if c := g.clientFor(victim.ID); c != nil {
		g.ws.Combat.End(victim.ID)
		maxHP, ok := victim.Store.Int("max_hp")
		if !ok {
			maxHP = int64(g.cfg.Player.StartingHP)
		}
		victim.Store.SetInt("hp", maxHP)
		if start, err := g.roomInstance(g.cfg.Paths.StartRoom); err == nil {
			if err := g.ws.MoveObject(victim.ID, start); err != nil {
				g.log.Warn("respawn move failed",
					zap.String("object", victim.ID), zap.Error(err))
			}
		}
		g.queue.Enqueue(msg.Message{
			Kind:      msg.KindSystem,
			Recipient: victim.ID,
			Text:      "{red}You die.{/} The realm reassembles you where you began.",
		})
		return
	}

	if err := g.ws.Objects.Destruct(victim.ID); err != nil {
		g.log.Warn("victim destruct failed",
			zap.String("object", victim.ID), zap.Error(err))
	}
}

func (g *Game) clientFor(playerID string) *client {
	for _, c := range g.clients {
		if c.state == statePlaying && c.playerID == playerID {
			return c
		}
	}
	return nil
}
