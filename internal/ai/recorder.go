// Package ai holds the driver-side half of AI NPCs: the observation
// recorder that gives them long-term memory, and the pluggable language
// model seam their blueprints can consult.
package ai

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/command"
	"github.com/jitrealm/server/internal/persist"
)

// Recorder forwards room events witnessed by AI NPCs into the memory
// store. Observations queue on a channel and a single worker writes them,
// so the database never stalls the world-state critical section.
type Recorder struct {
	repo *persist.MemoryRepo
	ch   chan persist.MemoryRow
	done chan struct{}
	log  *zap.Logger
}

func NewRecorder(repo *persist.MemoryRepo, log *zap.Logger) *Recorder {
	r := &Recorder{
		repo: repo,
		ch:   make(chan persist.MemoryRow, 256),
		done: make(chan struct{}),
		log:  log,
	}
	go r.worker()
	return r
}

// ObserveRoomEvent implements command.Observer. Drops on backpressure;
// lost memories are an acceptable failure mode, a stalled tick is not.
func (r *Recorder) ObserveRoomEvent(roomID, observerID string, ev command.RoomEvent) {
	row := persist.MemoryRow{
		NpcID:      observerID,
		RoomID:     roomID,
		Kind:       string(ev.Kind),
		ActorName:  ev.ActorName,
		Message:    ev.Message,
		ObservedAt: time.Now().UTC(),
	}
	select {
	case r.ch <- row:
	default:
		r.log.Debug("memory queue full, observation dropped",
			zap.String("npc", observerID))
	}
}

func (r *Recorder) worker() {
	defer close(r.done)
	for row := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.repo.Record(ctx, row); err != nil {
			r.log.Warn("memory write failed",
				zap.String("npc", row.NpcID),
				zap.Error(err))
		}
		cancel()
	}
}

// Close flushes queued observations and stops the worker.
func (r *Recorder) Close() {
	close(r.ch)
	<-r.done
}
