package persist

import (
	"context"
	"time"
)

// MemoryRow is one observation an NPC retained.
type MemoryRow struct {
	NpcID      string
	RoomID     string
	Kind       string
	ActorName  string
	Message    string
	ObservedAt time.Time
}

// MemoryRepo stores what AI NPCs witnessed, keyed by the NPC's blueprint
// id so memory survives instance churn and restarts.
type MemoryRepo struct {
	db *DB
}

func NewMemoryRepo(db *DB) *MemoryRepo {
	return &MemoryRepo{db: db}
}

func (r *MemoryRepo) Record(ctx context.Context, row MemoryRow) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO npc_memory (npc_id, room_id, kind, actor_name, message, observed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		row.NpcID, row.RoomID, row.Kind, row.ActorName, row.Message, row.ObservedAt,
	)
	return err
}

// Recall returns the NPC's most recent observations, newest first.
func (r *MemoryRepo) Recall(ctx context.Context, npcID string, limit int) ([]MemoryRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Pool.Query(ctx,
		`SELECT npc_id, room_id, kind, actor_name, message, observed_at
		 FROM npc_memory WHERE npc_id = $1
		 ORDER BY observed_at DESC LIMIT $2`,
		npcID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemoryRow
	for rows.Next() {
		var m MemoryRow
		if err := rows.Scan(&m.NpcID, &m.RoomID, &m.Kind, &m.ActorName, &m.Message, &m.ObservedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Prune drops observations older than the retention window.
func (r *MemoryRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM npc_memory WHERE observed_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
