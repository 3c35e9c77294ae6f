package command

// EventKind classifies a room event fanned out to AI observers after a
// player action.
type EventKind string

const (
	EventSpeech      EventKind = "speech"
	EventEmote       EventKind = "emote"
	EventItemDropped EventKind = "item_dropped"
	EventItemGiven   EventKind = "item_given"
	EventArrival     EventKind = "arrival"
	EventDeparture   EventKind = "departure"
	EventCombat      EventKind = "combat"
	EventCustom      EventKind = "custom"
)

// RoomEvent is the structured notification observers receive. Observers
// never see events they generated themselves.
type RoomEvent struct {
	Kind      EventKind
	ActorID   string
	ActorName string
	Message   string
	Target    string

	// Room overrides the fan-out room. Empty means the actor's room at
	// fan-out time; movement commands set it so departures reach the room
	// that was left.
	Room string
}

// luaTable converts the event into the map form the Lua bridge turns into
// a table for on_room_event.
func (ev RoomEvent) luaTable() map[string]any {
	return map[string]any{
		"kind":       string(ev.Kind),
		"actor":      ev.ActorID,
		"actor_name": ev.ActorName,
		"message":    ev.Message,
		"target":     ev.Target,
	}
}

// Observer is the Go-side hook for room events: the NPC memory recorder
// and the LLM seam register here.
type Observer interface {
	ObserveRoomEvent(roomID, observerID string, ev RoomEvent)
}
