// Package game wires the driver together and runs the tick loop: sessions
// in, world effects under the single world-state critical section,
// rendered output back out.
package game

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/ai"
	"github.com/jitrealm/server/internal/command"
	"github.com/jitrealm/server/internal/config"
	"github.com/jitrealm/server/internal/core/clock"
	"github.com/jitrealm/server/internal/msg"
	gonet "github.com/jitrealm/server/internal/net"
	"github.com/jitrealm/server/internal/persist"
	"github.com/jitrealm/server/internal/safe"
	"github.com/jitrealm/server/internal/sched"
	"github.com/jitrealm/server/internal/scripting"
	"github.com/jitrealm/server/internal/world"
)

// Game owns every driver subsystem. All world mutation happens on the
// loop goroutine under ws.Mu; the network edge only exchanges lines and
// rendered bytes with it.
type Game struct {
	cfg *config.Config
	log *zap.Logger
	clk clock.Clock

	engine   *scripting.Engine
	invoker  *safe.Invoker
	ws       *world.State
	hb       *sched.Heartbeat
	callouts *sched.Callouts
	queue    *msg.Queue

	registry   *command.Registry
	dispatcher *command.Dispatcher

	accounts *persist.Accounts
	db       *persist.DB
	memory   *persist.MemoryRepo
	recorder *ai.Recorder
	provider ai.Provider

	// clients is owned by the loop goroutine exclusively.
	clients map[uint64]*client

	stopping   atomic.Bool
	stopReason string

	// Console auto-login credentials, consumed by the first session.
	autoName string
	autoPass string

	defaultHeartbeat time.Duration
	savePath         string
}

// New builds the full driver. The engine's driver API must be bound
// before the first blueprint load, so wiring order matters here.
func New(cfg *config.Config, clk clock.Clock, log *zap.Logger) (*Game, error) {
	g := &Game{
		cfg:              cfg,
		log:              log,
		clk:              clk,
		queue:            msg.NewQueue(0),
		registry:         command.NewRegistry(),
		accounts:         persist.NewAccounts(cfg.Paths.PlayersDirectory),
		provider:         newProvider(cfg.Llm),
		clients:          make(map[uint64]*client),
		defaultHeartbeat: time.Duration(cfg.GameLoop.DefaultHeartbeatSeconds) * time.Second,
		savePath:         filepath.Join(cfg.Paths.SaveDirectory, cfg.Paths.SaveFileName),
	}

	g.invoker = safe.New(
		time.Duration(cfg.Security.HookTimeoutMs)*time.Millisecond,
		time.Duration(cfg.Security.HeartbeatTimeoutMs)*time.Millisecond,
		log)

	g.engine = scripting.NewEngine(cfg.Paths.WorldDirectory, log)
	g.bindDriverAPI()

	objects := world.NewManager(g.engine, g.invoker, clk, world.GCPolicy{
		ForceOnUnload: cfg.Performance.ForceGcOnUnload,
		EveryNUnloads: cfg.Performance.ForceGcEveryNUnloads,
	}, log)

	combat := world.NewCombat(time.Duration(cfg.Combat.RoundIntervalSeconds) * time.Second)
	g.ws = world.NewState(objects, world.NewContainment(), combat,
		g.invoker, clk, cfg.Combat.FleeChancePercent, log)

	g.hb = sched.NewHeartbeat()
	g.callouts = sched.NewCallouts(func(target, method string) error {
		inst, ok := objects.Get(target)
		if !ok {
			return fmt.Errorf("no such instance")
		}
		if !inst.Chunk().HasMethod(method) {
			return fmt.Errorf("no such method")
		}
		return nil
	})

	// Scheduler lifecycle follows instance lifecycle.
	objects.OnCreate(func(id string) {
		if inst, ok := objects.Get(id); ok && inst.Chunk().HasMethod("heartbeat") {
			g.hb.Register(id, g.defaultHeartbeat, clk.Now())
		}
	})
	objects.OnDestruct(func(id string) {
		g.hb.Unregister(id)
		g.callouts.CancelAll(id)
	})

	command.RegisterBuiltins(g.registry)
	command.RegisterWizard(g.registry)
	g.dispatcher = command.NewDispatcher(g.registry, log)

	return g, nil
}

func newProvider(cfg config.LlmConfig) ai.Provider {
	if cfg.Enabled && cfg.Endpoint != "" {
		return ai.NewHTTPProvider(cfg.Endpoint, cfg.Model)
	}
	return ai.Disabled{}
}

// SetAutoLogin arranges for the first session to be logged in as the
// named player without the prompt conversation. Console mode only.
func (g *Game) SetAutoLogin(name, password string) {
	g.autoName = name
	g.autoPass = password
}

// EnableMemory connects the optional NPC memory store and starts its
// recorder.
func (g *Game) EnableMemory(ctx context.Context) error {
	db, err := persist.NewDB(ctx, g.cfg.Memory.DSN, g.cfg.Memory.MaxConns, g.log)
	if err != nil {
		return err
	}
	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		db.Close()
		return err
	}
	g.db = db
	g.memory = persist.NewMemoryRepo(db)
	g.recorder = ai.NewRecorder(g.memory, g.log)
	g.dispatcher.AddObserver(g.recorder)
	return nil
}

// World exposes state for the bench harness and tests.
func (g *Game) World() *world.State          { return g.ws }
func (g *Game) Heartbeats() *sched.Heartbeat { return g.hb }
func (g *Game) Callouts() *sched.Callouts    { return g.callouts }
func (g *Game) Queue() *msg.Queue            { return g.queue }

// RequestShutdown implements command.Shutdowner.
func (g *Game) RequestShutdown(reason string) {
	if g.stopping.CompareAndSwap(false, true) {
		g.stopReason = reason
	}
}

// RequestSave writes a snapshot now. Called with ws.Mu held (wizard @save
// runs inside the dispatch critical section).
func (g *Game) RequestSave() error {
	return g.saveLocked()
}

func (g *Game) saveLocked() error {
	snap := persist.Capture(g.ws, g.clk.Now())
	if err := persist.Write(snap, g.savePath); err != nil {
		return err
	}
	g.log.Info("world saved",
		zap.String("path", g.savePath),
		zap.Int("instances", len(snap.Instances)))
	return nil
}

// ── command.Directory ──────────────────────────────────────────────

// Names lists logged-in player names sorted. Loop goroutine only.
func (g *Game) Names() []string {
	var out []string
	for _, c := range g.clients {
		if c.state == statePlaying {
			out = append(out, c.name)
		}
	}
	sort.Strings(out)
	return out
}

// PlayerID resolves a player name to their live object id.
func (g *Game) PlayerID(name string) (string, bool) {
	for _, c := range g.clients {
		if c.state == statePlaying && strings.EqualFold(c.name, name) {
			return c.playerID, true
		}
	}
	return "", false
}

// client couples a network session with its login progress.
type client struct {
	sess     *gonet.Session
	state    clientState
	name     string
	pendPass string
	playerID string
	wizard   bool
	acct     *persist.Account
}

type clientState int

const (
	stateAskName clientState = iota
	stateAskPassword
	stateNewPassword
	stateConfirmPassword
	statePlaying
)
