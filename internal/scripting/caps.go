package scripting

import (
	"sort"
	"strings"
)

// Cap is one behavioral capability a blueprint declares. Capability checks
// at runtime are bit tests; the set is fixed at load time.
type Cap uint32

const (
	CapRoom Cap = 1 << iota
	CapItem
	CapLiving
	CapCarryable
	CapEquippable
	CapWeapon
	CapArmour
	CapConsumable
	CapReadable
	CapSpawner
	CapHeartbeat
	CapResettable
	CapOnEnter
	CapOnLeave
	CapOnReload
	CapDaemon
	CapAINPC
	CapWearer
	CapStackable
	CapNPC
	CapPlayer
	CapContainer
)

var capNames = map[string]Cap{
	"room":       CapRoom,
	"item":       CapItem,
	"living":     CapLiving,
	"carryable":  CapCarryable,
	"equippable": CapEquippable,
	"weapon":     CapWeapon,
	"armour":     CapArmour,
	"armor":      CapArmour,
	"consumable": CapConsumable,
	"readable":   CapReadable,
	"spawner":    CapSpawner,
	"heartbeat":  CapHeartbeat,
	"resettable": CapResettable,
	"on-enter":   CapOnEnter,
	"on-leave":   CapOnLeave,
	"on-reload":  CapOnReload,
	"daemon":     CapDaemon,
	"ai-npc":     CapAINPC,
	"ai_npc":     CapAINPC,
	"wearer":     CapWearer,
	"stackable":  CapStackable,
	"npc":        CapNPC,
	"player":     CapPlayer,
	"container":  CapContainer,
}

// CapSet is the tagged capability set of a loaded blueprint.
type CapSet uint32

func (s CapSet) Has(c Cap) bool { return uint32(s)&uint32(c) != 0 }

func (s CapSet) String() string {
	var names []string
	for name, c := range capNames {
		if name == "armor" || name == "ai_npc" {
			continue
		}
		if s.Has(c) {
			names = append(names, name)
		}
	}
	// map iteration order is random; keep output stable
	sort.Strings(names)
	return strings.Join(names, ",")
}


// parseCap resolves a capability name from world source; unknown names are
// reported by the loader as a compile-class error.
func parseCap(name string) (Cap, bool) {
	c, ok := capNames[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Hook method names with an implied capability: declaring the method is
// equivalent to listing the capability.
var hookCaps = map[string]Cap{
	"heartbeat":     CapHeartbeat,
	"on_enter":      CapOnEnter,
	"on_leave":      CapOnLeave,
	"on_reload":     CapOnReload,
	"on_room_event": CapAINPC,
	"reset":         CapResettable,
}
