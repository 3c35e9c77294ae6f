package world

import (
	"sort"
	"time"

	"github.com/jitrealm/server/internal/scripting"
)

// Instance is one live world object. Everything durable lives in Store;
// every relation to other objects is kept by id in the registries, never
// as a direct pointer, so reload and snapshot stay trivial.
type Instance struct {
	ID          string
	BlueprintID string
	CreatedAt   time.Time
	Store       *Store

	bp *Blueprint // current code; swapped atomically by reload
}

// Caps returns the capability set resolved against the instance's current
// code.
func (i *Instance) Caps() scripting.CapSet {
	return i.bp.Chunk.Caps()
}

// Satisfies is a bit test against the capability set.
func (i *Instance) Satisfies(c scripting.Cap) bool {
	return i.bp.Chunk.Caps().Has(c)
}

// Chunk exposes the instance's current code unit for invocation through
// the safe invoker.
func (i *Instance) Chunk() *scripting.Chunk {
	return i.bp.Chunk
}

// Name resolves the instance's display name: the state store wins (so a
// renamed sword stays renamed across reload), then the blueprint's name
// field, then the object ID.
func (i *Instance) Name() string {
	if n, ok := i.Store.String("name"); ok {
		return n
	}
	if n, ok := i.bp.Chunk.FieldString("name"); ok {
		return n
	}
	return i.ID
}

// Short resolves the one-line description shown in room contents.
func (i *Instance) Short() string {
	if s, ok := i.Store.String("short"); ok {
		return s
	}
	if s, ok := i.bp.Chunk.FieldString("short"); ok {
		return s
	}
	return i.Name()
}

// Quantity returns the stack size for stackable instances (minimum 1).
func (i *Instance) Quantity() int64 {
	if q, ok := i.Store.Int("quantity"); ok && q > 0 {
		return q
	}
	return 1
}

// CallContext builds the call-context table world code receives as its
// first argument.
func (i *Instance) CallContext() map[string]any {
	return map[string]any{
		"id":        i.ID,
		"blueprint": i.BlueprintID,
	}
}

// Blueprint is the immutable descriptor of loaded code: replaced as a
// whole on reload, never mutated in place (except the live-instance set,
// which is bookkeeping).
type Blueprint struct {
	ID        string
	LoadedAt  time.Time
	Chunk     *scripting.Chunk
	instances map[string]struct{}
}

func (b *Blueprint) InstanceCount() int { return len(b.instances) }

// InstanceIDs returns the live instances of this blueprint in sorted
// (ordinal) order.
func (b *Blueprint) InstanceIDs() []string {
	ids := make([]string, 0, len(b.instances))
	for id := range b.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
