package world

import (
	"errors"
	"fmt"
	"runtime"
	"sort"

	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/core/clock"
	"github.com/jitrealm/server/internal/core/ident"
	"github.com/jitrealm/server/internal/safe"
	"github.com/jitrealm/server/internal/scripting"
)

var (
	ErrNoInstance  = errors.New("world: no such instance")
	ErrNoBlueprint = errors.New("world: no such blueprint")
)

// GCPolicy tunes the best-effort reclamation hint after unloads. It is an
// optimisation knob, never a correctness requirement.
type GCPolicy struct {
	ForceOnUnload bool
	EveryNUnloads int
}

// Manager owns the blueprint cache and the instance registry: clone, get,
// destruct, reload, unload. All methods run under the world-state critical
// section held by the caller.
type Manager struct {
	engine  *scripting.Engine
	invoker *safe.Invoker
	clk     clock.Clock
	log     *zap.Logger

	blueprints map[string]*Blueprint
	instances  map[string]*Instance
	counters   map[string]uint64

	gc          GCPolicy
	unloadCount int

	// destructObservers tear down external references (schedules, combat,
	// containment) when an instance dies. Registered once at wiring time.
	destructObservers []func(objectID string)

	// createObservers wire fresh clones into schedulers.
	createObservers []func(objectID string)
}

func NewManager(engine *scripting.Engine, invoker *safe.Invoker, clk clock.Clock, gc GCPolicy, log *zap.Logger) *Manager {
	return &Manager{
		engine:     engine,
		invoker:    invoker,
		clk:        clk,
		log:        log,
		blueprints: make(map[string]*Blueprint),
		instances:  make(map[string]*Instance),
		counters:   make(map[string]uint64),
		gc:         gc,
	}
}

// OnDestruct registers a teardown observer. Observers run after the
// instance's on_destruct hook and before it leaves the registry.
func (m *Manager) OnDestruct(fn func(objectID string)) {
	m.destructObservers = append(m.destructObservers, fn)
}

// OnCreate registers an observer for fresh clones. Runs after on_load.
func (m *Manager) OnCreate(fn func(objectID string)) {
	m.createObservers = append(m.createObservers, fn)
}

// LoadBlueprint compiles the blueprint on first use; idempotent afterwards.
func (m *Manager) LoadBlueprint(bp string) (*Blueprint, error) {
	if b, ok := m.blueprints[bp]; ok {
		return b, nil
	}
	chunk, err := m.engine.Load(bp)
	if err != nil {
		return nil, err
	}
	b := &Blueprint{
		ID:        bp,
		LoadedAt:  chunk.LoadedAt,
		Chunk:     chunk,
		instances: make(map[string]struct{}),
	}
	m.blueprints[bp] = b
	m.log.Info("blueprint loaded", zap.String("blueprint", bp))
	return b, nil
}

// Blueprint returns a loaded blueprint without compiling.
func (m *Manager) Blueprint(bp string) (*Blueprint, bool) {
	b, ok := m.blueprints[bp]
	return b, ok
}

// Clone creates a new live instance of bp. The initial state map, when
// given, is applied before on_load so the hook sees it.
func (m *Manager) Clone(bp string, initial map[string]Value) (string, error) {
	b, err := m.LoadBlueprint(bp)
	if err != nil {
		return "", err
	}
	m.counters[bp]++
	id := ident.InstanceID(bp, m.counters[bp])

	inst := &Instance{
		ID:          id,
		BlueprintID: bp,
		CreatedAt:   m.clk.Now(),
		Store:       NewStore(),
		bp:          b,
	}
	if initial != nil {
		inst.Store.Apply(initial)
	}
	m.instances[id] = inst
	b.instances[id] = struct{}{}

	if b.Chunk.HasMethod("on_load") {
		m.invoker.Hook(b.Chunk, id, "on_load", inst.CallContext(), nil)
	}
	for _, fn := range m.createObservers {
		fn(id)
	}
	return id, nil
}

// Restore registers an instance from a snapshot without firing on_load.
// Saved state is installed directly; post_restore runs later, after the
// whole graph is rebuilt.
func (m *Manager) Restore(id string, state map[string]Value) error {
	bp, ord, err := ident.ParseInstanceID(id)
	if err != nil {
		return err
	}
	b, err := m.LoadBlueprint(bp)
	if err != nil {
		return err
	}
	if _, exists := m.instances[id]; exists {
		return fmt.Errorf("world: duplicate instance %s in snapshot", id)
	}
	inst := &Instance{
		ID:          id,
		BlueprintID: bp,
		CreatedAt:   m.clk.Now(),
		Store:       NewStore(),
		bp:          b,
	}
	inst.Store.Replace(state)
	m.instances[id] = inst
	b.instances[id] = struct{}{}
	if ord > m.counters[bp] {
		m.counters[bp] = ord
	}
	return nil
}

// Get looks up a live instance.
func (m *Manager) Get(id string) (*Instance, bool) {
	inst, ok := m.instances[id]
	return inst, ok
}

// All returns every live instance id in sorted order.
func (m *Manager) All() []string {
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) InstanceCount() int { return len(m.instances) }

// Counters exposes the per-blueprint ordinal high-water marks for
// snapshots.
func (m *Manager) Counters() map[string]uint64 {
	out := make(map[string]uint64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

// RestoreCounters reinstalls saved ordinals, never moving them backwards:
// ordinals are never reused even across restore.
func (m *Manager) RestoreCounters(c map[string]uint64) {
	for bp, n := range c {
		if n > m.counters[bp] {
			m.counters[bp] = n
		}
	}
}

// Destruct tears down an instance: on_destruct hook, observer teardown
// (schedules, combat, containment), then removal from the registry.
func (m *Manager) Destruct(id string) error {
	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoInstance, id)
	}
	if inst.Chunk().HasMethod("on_destruct") {
		m.invoker.Hook(inst.Chunk(), id, "on_destruct", inst.CallContext(), nil)
	}
	for _, fn := range m.destructObservers {
		fn(id)
	}
	delete(m.instances, id)
	delete(inst.bp.instances, id)
	return nil
}

// Reload recompiles a blueprint and migrates every live instance onto the
// new code. State stores are preserved verbatim; methods resolve against
// the new chunk. If the recompile fails the old blueprint stays intact and
// the error is returned.
func (m *Manager) Reload(bp string) error {
	old, ok := m.blueprints[bp]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoBlueprint, bp)
	}
	chunk, err := m.engine.Load(bp)
	if err != nil {
		return fmt.Errorf("reload %s: %w", bp, err)
	}

	prevLoadedAt := old.LoadedAt
	fresh := &Blueprint{
		ID:        bp,
		LoadedAt:  chunk.LoadedAt,
		Chunk:     chunk,
		instances: old.instances,
	}
	m.blueprints[bp] = fresh
	for _, id := range fresh.InstanceIDs() {
		inst := m.instances[id]
		inst.bp = fresh
		if chunk.HasMethod("on_reload") {
			m.invoker.Hook(chunk, id, "on_reload", inst.CallContext(),
				[]any{prevLoadedAt.UnixMilli()})
		}
	}
	old.Chunk.Close()
	m.log.Info("blueprint reloaded",
		zap.String("blueprint", bp),
		zap.Int("instances", fresh.InstanceCount()))
	return nil
}

// Unload destructs every instance of bp, releases the code unit, and
// drops the blueprint from the cache.
func (m *Manager) Unload(bp string) error {
	b, ok := m.blueprints[bp]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoBlueprint, bp)
	}
	for _, id := range b.InstanceIDs() {
		if err := m.Destruct(id); err != nil {
			return err
		}
	}
	b.Chunk.Close()
	delete(m.blueprints, bp)

	m.unloadCount++
	if m.gc.ForceOnUnload || (m.gc.EveryNUnloads > 0 && m.unloadCount%m.gc.EveryNUnloads == 0) {
		runtime.GC()
	}
	m.log.Info("blueprint unloaded", zap.String("blueprint", bp))
	return nil
}

// BlueprintIDs returns the loaded blueprints in sorted order.
func (m *Manager) BlueprintIDs() []string {
	ids := make([]string, 0, len(m.blueprints))
	for id := range m.blueprints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
