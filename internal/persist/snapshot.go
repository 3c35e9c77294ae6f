// Package persist owns everything that outlives a process: the world
// snapshot, the file-backed account store, and the optional Postgres
// store for NPC long-term memory.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/sched"
	"github.com/jitrealm/server/internal/world"
)

const snapshotVersion = 1

// Snapshot is the versioned on-disk world document. Blueprint code is
// never captured, only instance identity and state; restore recompiles
// from source.
type Snapshot struct {
	Version   int                 `json:"version"`
	SavedAt   time.Time           `json:"savedAt"`
	Instances []InstanceRecord    `json:"instances"`
	Contain   [][2]string         `json:"containment"` // [child, container]
	Equipment []EquipmentRecord   `json:"equipment"`
	Combat    []CombatRecord      `json:"combat"`
	Counters  map[string]uint64   `json:"counters"`
}

type InstanceRecord struct {
	ObjectID    string                 `json:"objectId"`
	BlueprintID string                 `json:"blueprintId"`
	State       map[string]world.Value `json:"state"`
}

type EquipmentRecord struct {
	Wearer string `json:"wearer"`
	Slot   string `json:"slot"`
	Item   string `json:"item"`
}

type CombatRecord struct {
	A         string    `json:"a"`
	B         string    `json:"b"`
	NextRound time.Time `json:"nextRound"`
}

// Capture walks the registries into a Snapshot. The caller holds the
// world-state mutex. Transient sessions (session: pseudo-ids) never appear
// in the registries, so no filtering is needed here.
func Capture(ws *world.State, now time.Time) *Snapshot {
	snap := &Snapshot{
		Version:  snapshotVersion,
		SavedAt:  now,
		Counters: ws.Objects.Counters(),
	}
	for _, id := range ws.Objects.All() {
		inst, ok := ws.Objects.Get(id)
		if !ok {
			continue
		}
		snap.Instances = append(snap.Instances, InstanceRecord{
			ObjectID:    inst.ID,
			BlueprintID: inst.BlueprintID,
			State:       inst.Store.Snapshot(),
		})
	}
	snap.Contain = ws.Graph.Edges()
	for _, wearer := range ws.Graph.Wearers() {
		slots := ws.Graph.Equipped(wearer)
		keys := make([]string, 0, len(slots))
		for slot := range slots {
			keys = append(keys, slot)
		}
		sort.Strings(keys)
		for _, slot := range keys {
			snap.Equipment = append(snap.Equipment, EquipmentRecord{
				Wearer: wearer, Slot: slot, Item: slots[slot],
			})
		}
	}
	for _, pair := range ws.Combat.Pairs() {
		snap.Combat = append(snap.Combat, CombatRecord{
			A: pair.A, B: pair.B, NextRound: pair.NextRound,
		})
	}
	return snap
}

// Write persists the snapshot atomically: temp file in the same directory,
// fsync, rename. A crash mid-save leaves the previous snapshot intact.
func Write(snap *Snapshot, path string) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Load reads and validates a snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d not supported", snap.Version)
	}
	return &snap, nil
}

// Restore rebuilds world state from a snapshot in dependency order:
// instances first (no on_load), then containment, equipment and combat,
// then counters, then every post_restore hook. Instances whose blueprint
// no longer compiles are skipped with a warning instead of failing boot.
func Restore(snap *Snapshot, ws *world.State, hb *sched.Heartbeat, defaultHeartbeat time.Duration, now time.Time, log *zap.Logger) error {
	restored := make(map[string]bool, len(snap.Instances))
	for _, rec := range snap.Instances {
		if err := ws.Objects.Restore(rec.ObjectID, rec.State); err != nil {
			log.Warn("skipping instance from snapshot",
				zap.String("object", rec.ObjectID),
				zap.Error(err))
			continue
		}
		restored[rec.ObjectID] = true
	}

	for _, edge := range snap.Contain {
		child, container := edge[0], edge[1]
		if !restored[child] || !restored[container] {
			continue
		}
		if err := ws.Graph.Add(container, child); err != nil {
			log.Warn("skipping containment edge from snapshot",
				zap.String("child", child),
				zap.Error(err))
		}
	}

	for _, eq := range snap.Equipment {
		if !restored[eq.Wearer] || !restored[eq.Item] {
			continue
		}
		if err := ws.Graph.Equip(eq.Wearer, eq.Slot, eq.Item); err != nil {
			log.Warn("skipping equipment from snapshot",
				zap.String("wearer", eq.Wearer),
				zap.Error(err))
		}
	}

	for _, cb := range snap.Combat {
		if restored[cb.A] && restored[cb.B] {
			ws.Combat.StartAt(cb.A, cb.B, cb.NextRound)
		}
	}

	ws.Objects.RestoreCounters(snap.Counters)

	// Schedules are not captured; heartbeats re-register from capability,
	// callouts re-arm themselves in post_restore.
	for id := range restored {
		inst, ok := ws.Objects.Get(id)
		if !ok {
			continue
		}
		if inst.Chunk().HasMethod("heartbeat") {
			hb.Register(id, defaultHeartbeat, now)
		}
	}
	for _, id := range sortedKeys(restored) {
		inst, ok := ws.Objects.Get(id)
		if !ok || !inst.Chunk().HasMethod("post_restore") {
			continue
		}
		ws.InvokeHook(inst, "post_restore", nil)
	}

	log.Info("world restored",
		zap.Int("instances", len(restored)),
		zap.Time("savedAt", snap.SavedAt))
	return nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

