package game

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/core/ident"
	"github.com/jitrealm/server/internal/msg"
	"github.com/jitrealm/server/internal/persist"
	"github.com/jitrealm/server/internal/render"
	"github.com/jitrealm/server/internal/world"
)

func (g *Game) greet(c *client) {
	opts := c.sess.Opts()
	c.sess.WriteRendered(render.Line(g.cfg.Server.WelcomeMessage, opts))
	c.sess.WriteRendered(render.Line(
		fmt.Sprintf("{dim}%s %s{/}", g.cfg.Server.MudName, g.cfg.Server.Version), opts))
	c.sess.SetPrompt("Name: ")
	c.sess.Prompt()
}

// autoLogin drives the login conversation with the configured
// credentials. An existing account needs the password once; a fresh one
// needs it again for the confirmation step.
func (g *Game) autoLogin(c *client) {
	name, pass := g.autoName, g.autoPass
	g.autoName, g.autoPass = "", ""

	g.handleLoginLine(c, name)
	// A rejected password resets the conversation to the name prompt;
	// stop there rather than feed the password in as a name.
	for i := 0; i < 2 && c.state != statePlaying && c.state != stateAskName; i++ {
		g.handleLoginLine(c, pass)
	}
	if c.state != statePlaying {
		g.log.Warn("auto-login failed", zap.String("name", name))
	}
}

// handleLoginLine advances one client's login conversation by one input
// line. Runs on the loop goroutine.
func (g *Game) handleLoginLine(c *client, line string) {
	opts := c.sess.Opts()
	say := func(markup string) {
		c.sess.WriteRendered(render.Line(markup, opts))
	}

	switch c.state {
	case stateAskName:
		if !persist.ValidName(line) {
			say("Names are 3 to 20 letters and digits, starting with a letter.")
			c.sess.Prompt()
			return
		}
		c.name = line
		c.sess.SetMask(true)
		if g.accounts.Exists(line) {
			c.state = stateAskPassword
			c.sess.SetPrompt("Password: ")
		} else {
			c.state = stateNewPassword
			say("New here? Pick a password.")
			c.sess.SetPrompt("Password: ")
		}
		c.sess.Prompt()

	case stateAskPassword:
		acct, err := g.accounts.Login(c.name, line)
		if err != nil {
			if errors.Is(err, persist.ErrWrongPass) || errors.Is(err, persist.ErrNoAccount) {
				say("{red}Wrong name or password.{/}")
				c.state = stateAskName
				c.sess.SetMask(false)
				c.sess.SetPrompt("Name: ")
				c.sess.Prompt()
				return
			}
			g.log.Error("login failed", zap.String("name", c.name), zap.Error(err))
			say("Login is broken right now. Try again later.")
			c.sess.RequestQuit()
			return
		}
		// One body per account: a second login bumps nothing, it is refused.
		if _, online := g.PlayerID(c.name); online {
			say("That character is already in the realm.")
			c.sess.RequestQuit()
			return
		}
		c.acct = acct
		g.enterWorld(c)

	case stateNewPassword:
		if len(line) < 4 {
			say("Passwords need at least 4 characters.")
			c.sess.Prompt()
			return
		}
		c.pendPass = line
		c.state = stateConfirmPassword
		c.sess.SetPrompt("Confirm: ")
		c.sess.Prompt()

	case stateConfirmPassword:
		if line != c.pendPass {
			say("Passwords do not match. Start over.")
			c.pendPass = ""
			c.state = stateNewPassword
			c.sess.SetPrompt("Password: ")
			c.sess.Prompt()
			return
		}
		// The first account created becomes the wizard.
		wizard := len(g.Names()) == 0 && !anyAccountDir(g.cfg.Paths.PlayersDirectory)
		acct, err := g.accounts.Create(c.name, c.pendPass, wizard)
		c.pendPass = ""
		if err != nil {
			g.log.Error("account create failed", zap.String("name", c.name), zap.Error(err))
			say("Could not create the account. Try again later.")
			c.sess.RequestQuit()
			return
		}
		c.acct = acct
		g.enterWorld(c)
	}
}

// enterWorld clones the player blueprint, applies the account's saved
// state, and drops the body in its room. ws.Mu is taken here because the
// login path runs outside the dispatch critical section.
func (g *Game) enterWorld(c *client) {
	opts := c.sess.Opts()

	g.ws.Mu.Lock()
	initial := map[string]world.Value{
		"name":           world.StringValue(c.acct.Name),
		"hp":             world.IntValue(int64(g.cfg.Player.StartingHP)),
		"max_hp":         world.IntValue(int64(g.cfg.Player.StartingHP)),
		"carry_capacity": world.IntValue(int64(g.cfg.Player.CarryCapacity)),
	}
	for k, v := range c.acct.State {
		initial[k] = v
	}
	id, err := g.ws.Objects.Clone(g.cfg.Paths.PlayerBlueprint, initial)
	if err == nil {
		roomBP := c.acct.LastRoom
		if roomBP == "" {
			roomBP = g.cfg.Paths.StartRoom
		}
		room, rerr := g.roomInstance(roomBP)
		if rerr != nil && roomBP != g.cfg.Paths.StartRoom {
			room, rerr = g.roomInstance(g.cfg.Paths.StartRoom)
		}
		if rerr != nil {
			err = rerr
		} else {
			err = g.ws.MoveObject(id, room)
		}
		if err == nil {
			g.restoreBelongings(c.acct, id)
		}
	}
	g.ws.Mu.Unlock()

	if err != nil {
		g.log.Error("enter world failed",
			zap.String("name", c.acct.Name), zap.Error(err))
		c.sess.WriteRendered(render.Line("The realm rejects you. Try again later.", opts))
		c.sess.RequestQuit()
		return
	}

	c.playerID = id
	c.name = c.acct.Name
	c.wizard = c.acct.Wizard
	c.state = statePlaying
	c.sess.SetMask(false)
	c.sess.SetPrompt("> ")

	c.sess.WriteRendered(render.Line(
		fmt.Sprintf("Welcome, {bold}%s{/}.", c.name), opts))
	g.log.Info("player entered",
		zap.String("name", c.name),
		zap.String("object", id),
		zap.Bool("wizard", c.wizard))

	g.ws.Mu.Lock()
	if room, ok := g.ws.RoomOf(id); ok {
		g.queue.Enqueue(msg.Message{
			Sender: id,
			Kind:   msg.KindEmote,
			Room:   room,
			Text:   fmt.Sprintf("%s enters the realm.", c.name),
		})
	}
	g.ws.Mu.Unlock()

	g.dispatchLine(c, "look")
}

// captureBelongings records the carried item ids and equipment slots,
// then removes those items from the world: they leave with the account
// instead of spilling into the room when the body is destructed. ws.Mu
// must be held.
func (g *Game) captureBelongings(playerID string) ([]string, map[string]string) {
	inventory := g.ws.Graph.Contents(playerID)
	equipment := g.ws.Graph.Equipped(playerID)
	for _, item := range inventory {
		if err := g.ws.Objects.Destruct(item); err != nil {
			g.log.Warn("carried item destruct failed",
				zap.String("object", item), zap.Error(err))
		}
	}
	return inventory, equipment
}

// restoreBelongings re-creates the saved inventory from its blueprints
// and re-equips the saved slots. A missing blueprint skips that item
// rather than blocking the login. ws.Mu must be held.
func (g *Game) restoreBelongings(acct *persist.Account, playerID string) {
	cloned := make(map[string]string, len(acct.Inventory))
	for _, saved := range acct.Inventory {
		bp, _, err := ident.ParseInstanceID(saved)
		if err != nil {
			g.log.Warn("unreadable saved item", zap.String("item", saved))
			continue
		}
		item, err := g.ws.Objects.Clone(bp, nil)
		if err != nil {
			g.log.Warn("inventory restore failed",
				zap.String("blueprint", bp), zap.Error(err))
			continue
		}
		if err := g.ws.Graph.Add(playerID, item); err != nil {
			g.log.Warn("inventory restore failed",
				zap.String("object", item), zap.Error(err))
			continue
		}
		cloned[saved] = item
	}
	for slot, saved := range acct.Equipment {
		item, ok := cloned[saved]
		if !ok {
			continue
		}
		if err := g.ws.Graph.Equip(playerID, slot, item); err != nil {
			g.log.Warn("equip restore failed",
				zap.String("slot", slot), zap.Error(err))
		}
	}
}

// logout persists the player and removes the body. ws.Mu must NOT be held.
func (g *Game) logout(c *client) {
	if c.state != statePlaying {
		return
	}
	g.ws.Mu.Lock()
	if inst, ok := g.ws.Objects.Get(c.playerID); ok {
		if room, ok := g.ws.RoomOf(c.playerID); ok {
			if roomInst, ok := g.ws.Objects.Get(room); ok {
				c.acct.LastRoom = roomInst.BlueprintID
			}
			g.queue.Enqueue(msg.Message{
				Sender: c.playerID,
				Kind:   msg.KindEmote,
				Room:   room,
				Text:   fmt.Sprintf("%s leaves the realm.", c.name),
			})
		}
		c.acct.State = inst.Store.Snapshot()
		c.acct.Inventory, c.acct.Equipment = g.captureBelongings(c.playerID)
		if err := g.ws.Objects.Destruct(c.playerID); err != nil {
			g.log.Warn("player destruct failed",
				zap.String("object", c.playerID), zap.Error(err))
		}
	}
	g.ws.Mu.Unlock()

	c.acct.LastLogin = g.clk.Now()
	if err := g.accounts.Save(c.acct); err != nil {
		g.log.Error("account save failed",
			zap.String("name", c.name), zap.Error(err))
	}
	c.state = stateAskName
	g.log.Info("player left", zap.String("name", c.name))
}

// anyAccountDir reports whether any account has ever been created, which
// gates the first-wizard rule.
func anyAccountDir(root string) bool {
	entries, err := os.ReadDir(root)
	return err == nil && len(entries) > 0
}
