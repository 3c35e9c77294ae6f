package game

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/command"
	coresys "github.com/jitrealm/server/internal/core/system"
	"github.com/jitrealm/server/internal/msg"
	gonet "github.com/jitrealm/server/internal/net"
	"github.com/jitrealm/server/internal/persist"
	"github.com/jitrealm/server/internal/render"
)

// Boot compiles the world: restore the snapshot when one exists,
// otherwise build the fresh world the manifest describes.
func (g *Game) Boot() error {
	m, err := LoadManifest(g.cfg.Paths.WorldDirectory)
	if err != nil {
		return err
	}

	g.ws.Mu.Lock()
	defer g.ws.Mu.Unlock()

	for _, bp := range m.Preload {
		if _, err := g.ws.Objects.LoadBlueprint(bp); err != nil {
			return fmt.Errorf("preload %s: %w", bp, err)
		}
	}

	snap, err := persist.Load(g.savePath)
	switch {
	case err == nil:
		return persist.Restore(snap, g.ws, g.hb, g.defaultHeartbeat, g.clk.Now(), g.log)
	case os.IsNotExist(err):
		return g.bootFresh(m)
	default:
		return fmt.Errorf("load snapshot: %w", err)
	}
}

// SessionSource hands fresh sessions to the tick loop. Both the TCP
// server and the single-user console satisfy it.
type SessionSource interface {
	NewSessions() <-chan *gonet.Session
	SessionGone()
	Shutdown()
}

// Run drives the tick loop until shutdown. Per-tick work is phase-ordered
// through the system runner: input, update, output, persist, cleanup. The
// first signal saves and stops gracefully; a second one abandons the
// grace period.
func (g *Game) Run(server SessionSource, sig <-chan os.Signal) error {
	delay := time.Duration(g.cfg.GameLoop.LoopDelayMs) * time.Millisecond
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	autosaveTicks := 0
	if g.cfg.GameLoop.AutoSaveEnabled && g.cfg.GameLoop.AutoSaveIntervalMinutes > 0 {
		autosaveTicks = int(time.Duration(g.cfg.GameLoop.AutoSaveIntervalMinutes) * time.Minute / delay)
	}
	sinceSave := 0

	runner := coresys.NewRunner()
	runner.Register(coresys.Func(coresys.PhaseInput, func(time.Duration) {
		g.acceptNew(server)
		g.pumpInput()
	}))
	runner.Register(coresys.Func(coresys.PhaseUpdate, func(time.Duration) {
		g.tickWorld()
	}))
	runner.Register(coresys.Func(coresys.PhaseOutput, func(time.Duration) {
		g.deliver()
	}))
	runner.Register(coresys.Func(coresys.PhasePersist, func(time.Duration) {
		if autosaveTicks == 0 {
			return
		}
		sinceSave++
		if sinceSave < autosaveTicks {
			return
		}
		sinceSave = 0
		g.ws.Mu.Lock()
		if err := g.saveLocked(); err != nil {
			g.log.Error("autosave failed", zap.Error(err))
		}
		g.ws.Mu.Unlock()
	}))
	runner.Register(coresys.Func(coresys.PhaseCleanup, func(time.Duration) {
		g.reap(server)
	}))

	for {
		select {
		case <-ticker.C:
			runner.Tick(delay)
			if g.stopping.Load() {
				return g.stop(server, sig)
			}

		case s := <-sig:
			g.log.Info("signal received", zap.String("signal", s.String()))
			g.RequestShutdown(s.String())
			return g.stop(server, sig)
		}
	}
}

// stop saves the world, notifies and closes every session, and shuts the
// listener down.
func (g *Game) stop(server SessionSource, sig <-chan os.Signal) error {
	g.log.Info("shutting down", zap.String("reason", g.stopReason))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, c := range g.clients {
			if c.state == statePlaying {
				c.sess.WriteRendered(render.Line(
					"{yellow}The realm fades: the server is shutting down.{/}", c.sess.Opts()))
			}
			g.logout(c)
			c.sess.RequestQuit()
		}
		g.ws.Mu.Lock()
		if err := g.saveLocked(); err != nil {
			g.log.Error("final save failed", zap.Error(err))
		}
		g.ws.Mu.Unlock()
	}()

	select {
	case <-done:
	case <-sig:
		g.log.Warn("second signal, abandoning graceful stop")
	case <-time.After(10 * time.Second):
		g.log.Warn("graceful stop timed out")
	}

	server.Shutdown()
	if g.recorder != nil {
		g.recorder.Close()
	}
	if g.db != nil {
		g.db.Close()
	}
	g.log.Info("server stopped")
	return nil
}

func (g *Game) acceptNew(server SessionSource) {
	for {
		select {
		case sess := <-server.NewSessions():
			c := &client{sess: sess, state: stateAskName}
			g.clients[sess.ID] = c
			g.greet(c)
			if g.autoName != "" {
				g.autoLogin(c)
			}
		default:
			return
		}
	}
}

// pumpInput drains at most a few lines per client per tick so one
// paste-happy client cannot monopolise the tick.
func (g *Game) pumpInput() {
	const maxLinesPerTick = 8
	for _, c := range g.clients {
		for i := 0; i < maxLinesPerTick; i++ {
			select {
			case line := <-c.sess.Lines:
				if c.state == statePlaying {
					g.dispatchLine(c, line)
				} else {
					g.handleLoginLine(c, line)
				}
			default:
				i = maxLinesPerTick
			}
		}
	}
}

// dispatchLine executes one command line under the world-state critical
// section.
func (g *Game) dispatchLine(c *client, line string) {
	g.ws.Mu.Lock()
	ctx := &command.Context{
		ActorID:    c.playerID,
		ActorName:  c.name,
		SessionID:  fmt.Sprintf("%d", c.sess.ID),
		Wizard:     c.wizard,
		World:      g.ws,
		Heartbeats: g.hb,
		Callouts:   g.callouts,
		Queue:      g.queue,
		Invoker:    g.invoker,
		Clock:      g.clk,
		Players:    g,
		Control:    g,
		Commands:   g.registry,
		Out:        c.sess,
		Log:        g.log,
	}
	g.dispatcher.Dispatch(ctx, line)
	g.ws.Mu.Unlock()

	if c.state == statePlaying && !c.sess.Quitting() {
		c.sess.Prompt()
	}
}

// tickWorld runs the scheduled world work for this tick: heartbeats,
// callouts, combat rounds. One critical section for all of it.
func (g *Game) tickWorld() {
	now := g.clk.Now()
	g.ws.Mu.Lock()
	defer g.ws.Mu.Unlock()

	for _, id := range g.hb.Due(now) {
		inst, ok := g.ws.Objects.Get(id)
		if !ok {
			g.hb.Unregister(id)
			continue
		}
		g.invoker.Heartbeat(inst.Chunk(), id, inst.CallContext())
	}

	for _, co := range g.callouts.Due(now) {
		inst, ok := g.ws.Objects.Get(co.Target)
		if !ok {
			continue
		}
		g.invoker.Hook(inst.Chunk(), co.Target, co.Method, inst.CallContext(), co.Args)
	}

	for _, pair := range g.ws.Combat.RoundsDue(now) {
		g.resolveRound(pair.A, pair.B)
	}
}

// deliver drains the message queue and fans each message out per its
// kind. Recipient resolution needs room lookups, so the walk happens
// under ws.Mu; the actual socket writes happen after it is released.
func (g *Game) deliver() {
	messages := g.queue.Drain()
	if len(messages) == 0 {
		return
	}

	type delivery struct {
		c    *client
		text string
	}
	var out []delivery

	g.ws.Mu.Lock()
	byPlayer := make(map[string]*client, len(g.clients))
	for _, c := range g.clients {
		if c.state == statePlaying {
			byPlayer[c.playerID] = c
		}
	}
	for _, m := range messages {
		switch m.Kind {
		case msg.KindSystem, msg.KindTell:
			if c, ok := byPlayer[m.Recipient]; ok {
				out = append(out, delivery{c, m.Text})
			}
		case msg.KindSay, msg.KindRoom:
			for id, c := range byPlayer {
				if room, ok := g.ws.RoomOf(id); ok && room == m.Room {
					out = append(out, delivery{c, m.Text})
				}
			}
		case msg.KindEmote:
			for id, c := range byPlayer {
				if id == m.Sender {
					continue
				}
				if room, ok := g.ws.RoomOf(id); ok && room == m.Room {
					out = append(out, delivery{c, m.Text})
				}
			}
		}
	}
	g.ws.Mu.Unlock()

	for _, d := range out {
		d.c.sess.WriteRendered(render.Line(d.text, d.c.sess.Opts()))
	}
	if n := g.queue.Dropped(); n > 0 && n%1000 == 0 {
		g.log.Warn("message queue drops", zap.Uint64("total", n))
	}
}

// reap notices closed sessions, persists their players, and forgets them.
func (g *Game) reap(server SessionSource) {
	for id, c := range g.clients {
		if !c.sess.IsClosed() {
			continue
		}
		g.logout(c)
		delete(g.clients, id)
		server.SessionGone()
		g.log.Info("client disconnected", zap.Uint64("session", id))
	}
}
