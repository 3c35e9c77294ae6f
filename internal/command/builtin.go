package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jitrealm/server/internal/core/ident"
	"github.com/jitrealm/server/internal/msg"
	"github.com/jitrealm/server/internal/world"
)

// RegisterBuiltins installs the driver's player commands.
func RegisterBuiltins(r *Registry) {
	r.Register(&Command{Name: "look", Aliases: []string{"l"}, Category: "world",
		Usage: "look [thing]", Desc: "Describe the room or one thing in it.", Run: cmdLook})
	r.Register(&Command{Name: "go", Aliases: []string{"north", "south", "east", "west", "up", "down", "n", "s", "e", "w", "u", "d"}, Category: "world",
		Usage: "go <direction>", Desc: "Leave through an exit.", Run: cmdGo})
	r.Register(&Command{Name: "say", Aliases: []string{"'"}, Category: "chat",
		Usage: "say <text>", Desc: "Speak to everyone in the room.", Run: cmdSay})
	r.Register(&Command{Name: "emote", Aliases: []string{":"}, Category: "chat",
		Usage: "emote <action>", Desc: "Perform a visible action.", Run: cmdEmote})
	r.Register(&Command{Name: "tell", Category: "chat",
		Usage: "tell <player> <text>", Desc: "Send a private message.", Run: cmdTell})
	r.Register(&Command{Name: "get", Aliases: []string{"take"}, Category: "items",
		Usage: "get <item>", Desc: "Pick up an item.", Run: cmdGet})
	r.Register(&Command{Name: "drop", Category: "items",
		Usage: "drop <item>", Desc: "Drop a carried item.", Run: cmdDrop})
	r.Register(&Command{Name: "give", Category: "items",
		Usage: "give <item> to <target>", Desc: "Hand an item over.", Run: cmdGive})
	r.Register(&Command{Name: "inventory", Aliases: []string{"i", "inv"}, Category: "items",
		Usage: "inventory", Desc: "List what you carry.", Run: cmdInventory})
	r.Register(&Command{Name: "equip", Aliases: []string{"wield", "wear"}, Category: "items",
		Usage: "equip <item>", Desc: "Equip a carried item.", Run: cmdEquip})
	r.Register(&Command{Name: "unequip", Aliases: []string{"remove"}, Category: "items",
		Usage: "unequip <slot|item>", Desc: "Unequip an item.", Run: cmdUnequip})
	r.Register(&Command{Name: "kill", Aliases: []string{"attack", "k"}, Category: "combat",
		Usage: "kill <target>", Desc: "Attack something.", Run: cmdKill})
	r.Register(&Command{Name: "flee", Category: "combat",
		Usage: "flee", Desc: "Try to escape combat through a random exit.", Run: cmdFlee})
	r.Register(&Command{Name: "who", Category: "info",
		Usage: "who", Desc: "List connected players.", Run: cmdWho})
	r.Register(&Command{Name: "help", Aliases: []string{"?"}, Category: "info",
		Usage: "help", Desc: "List available commands.", Run: cmdHelp})
	r.Register(&Command{Name: "quit", Category: "info",
		Usage: "quit", Desc: "Save and disconnect.", Run: cmdQuit})
}

func cmdLook(ctx *Context, args []string) error {
	if len(args) > 0 {
		inst, ok := ctx.World.ResolveInRoom(ctx.ActorID, strings.Join(args, " "))
		if !ok {
			return fmt.Errorf("You see no %s here.", args[0])
		}
		ctx.Println("{bold}" + inst.Name() + "{/}")
		if long, ok := inst.Chunk().FieldString("long"); ok {
			ctx.Println(long)
		}
		if qty := inst.Quantity(); qty > 1 {
			ctx.Printf("There are %d of them.", qty)
		}
		return nil
	}

	room, ok := ctx.Room()
	if !ok {
		ctx.Println("You float in a formless void.")
		return nil
	}
	inst, _ := ctx.World.Objects.Get(room)
	ctx.Println("{bold}" + inst.Name() + "{/}")
	if long, ok := inst.Chunk().FieldString("long"); ok {
		ctx.Println(long)
	}

	exits := ctx.World.Exits(room)
	if len(exits) > 0 {
		dirs := make([]string, 0, len(exits))
		for d := range exits {
			dirs = append(dirs, d)
		}
		sort.Strings(dirs)
		ctx.Println("{cyan}Exits: " + strings.Join(dirs, ", ") + "{/}")
	}

	for _, id := range ctx.World.Graph.Contents(room) {
		if id == ctx.ActorID {
			continue
		}
		occ, ok := ctx.World.Objects.Get(id)
		if !ok {
			continue
		}
		line := occ.Short()
		if qty := occ.Quantity(); qty > 1 {
			line = fmt.Sprintf("%s (x%d)", line, qty)
		}
		ctx.Println("  " + line)
	}
	return nil
}

func cmdGo(ctx *Context, args []string) error {
	dir := ""
	if len(args) > 0 {
		dir = strings.ToLower(args[0])
	}
	if dir == "" {
		return fmt.Errorf("Go where?")
	}
	room, ok := ctx.Room()
	if !ok {
		return fmt.Errorf("You are nowhere; there is nowhere to go.")
	}
	exits := ctx.World.Exits(room)
	dest, ok := exits[dir]
	if !ok {
		dest, ok = exits[expandDirection(dir)]
	}
	if !ok {
		return fmt.Errorf("You cannot go %s.", dir)
	}
	destID, err := resolveRoomRef(ctx, dest)
	if err != nil {
		ctx.Log.Warn("broken exit")
		return fmt.Errorf("That way is blocked.")
	}
	if err := ctx.World.MoveObject(ctx.ActorID, destID); err != nil {
		return fmt.Errorf("That way is blocked.")
	}
	// Both events fire only once the move has actually happened; the
	// departure targets the room just left.
	ctx.Emit(RoomEvent{Kind: EventDeparture, Message: dir, Room: room})
	ctx.Emit(RoomEvent{Kind: EventArrival, Room: destID})
	return cmdLook(ctx, nil)
}

// expandDirection maps the one-letter compass aliases players actually type.
func expandDirection(dir string) string {
	switch dir {
	case "n":
		return "north"
	case "s":
		return "south"
	case "e":
		return "east"
	case "w":
		return "west"
	case "u":
		return "up"
	case "d":
		return "down"
	}
	return dir
}

// resolveRoomRef turns an exit value into a live room instance: instance
// ids pass through, blueprint ids resolve to the existing instance or a
// fresh clone. Rooms are singletons per blueprint.
func resolveRoomRef(ctx *Context, ref string) (string, error) {
	if ident.IsInstanceID(ref) {
		if _, ok := ctx.World.Objects.Get(ref); !ok {
			return "", fmt.Errorf("exit target %s is gone", ref)
		}
		return ref, nil
	}
	if b, ok := ctx.World.Objects.Blueprint(ref); ok {
		if ids := b.InstanceIDs(); len(ids) > 0 {
			return ids[0], nil
		}
	}
	return ctx.World.Objects.Clone(ref, nil)
}

func cmdSay(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Say what?")
	}
	room, ok := ctx.Room()
	if !ok {
		return fmt.Errorf("Nobody can hear you here.")
	}
	text := strings.Join(args, " ")
	ctx.Queue.Enqueue(msg.Message{
		Sender: ctx.ActorID,
		Kind:   msg.KindSay,
		Room:   room,
		Text:   fmt.Sprintf("%s says: %s", ctx.ActorName, text),
	})
	ctx.Emit(RoomEvent{Kind: EventSpeech, Message: text})
	return nil
}

func cmdEmote(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Emote what?")
	}
	room, ok := ctx.Room()
	if !ok {
		return fmt.Errorf("Nobody can see you here.")
	}
	action := strings.Join(args, " ")
	ctx.Println(fmt.Sprintf("%s %s", ctx.ActorName, action))
	ctx.Queue.Enqueue(msg.Message{
		Sender: ctx.ActorID,
		Kind:   msg.KindEmote,
		Room:   room,
		Text:   fmt.Sprintf("%s %s", ctx.ActorName, action),
	})
	ctx.Emit(RoomEvent{Kind: EventEmote, Message: action})
	return nil
}

func cmdTell(ctx *Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("Usage: tell <player> <text>")
	}
	target, ok := ctx.Players.PlayerID(args[0])
	if !ok {
		return fmt.Errorf("No such player: %s", args[0])
	}
	text := strings.Join(args[1:], " ")
	ctx.Queue.Enqueue(msg.Message{
		Sender:    ctx.ActorID,
		Recipient: target,
		Kind:      msg.KindTell,
		Text:      fmt.Sprintf("%s tells you: %s", ctx.ActorName, text),
	})
	ctx.Printf("You tell %s: %s", args[0], text)
	return nil
}

func cmdGet(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Get what?")
	}
	word := strings.Join(args, " ")
	inst, ok := ctx.World.ResolveInRoom(ctx.ActorID, word)
	if !ok {
		return fmt.Errorf("You see no %s here.", word)
	}
	if parent, _ := ctx.World.Graph.Container(inst.ID); parent == ctx.ActorID {
		return fmt.Errorf("You already have %s.", inst.Name())
	}
	if err := ctx.World.MoveObject(inst.ID, ctx.ActorID); err != nil {
		return fmt.Errorf("You cannot take %s.", inst.Name())
	}
	ctx.Printf("You take %s.", inst.Name())
	return nil
}

func cmdDrop(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Drop what?")
	}
	word := strings.Join(args, " ")
	inst, ok := findCarried(ctx, word)
	if !ok {
		return fmt.Errorf("You carry no %s.", word)
	}
	room, ok := ctx.Room()
	if !ok {
		return fmt.Errorf("There is no floor here.")
	}
	name := inst.Name()
	if err := ctx.World.MoveObject(inst.ID, room); err != nil {
		return err
	}
	ctx.Printf("You drop %s.", name)
	ctx.Emit(RoomEvent{Kind: EventItemDropped, Message: name, Target: inst.ID})
	return nil
}

func cmdGive(ctx *Context, args []string) error {
	// "give sword to guard" and "give sword guard" both work.
	var itemWord, targetWord string
	for i, a := range args {
		if strings.EqualFold(a, "to") && i > 0 && i < len(args)-1 {
			itemWord = strings.Join(args[:i], " ")
			targetWord = strings.Join(args[i+1:], " ")
			break
		}
	}
	if itemWord == "" && len(args) >= 2 {
		itemWord = strings.Join(args[:len(args)-1], " ")
		targetWord = args[len(args)-1]
	}
	if itemWord == "" || targetWord == "" {
		return fmt.Errorf("Usage: give <item> to <target>")
	}

	item, ok := findCarried(ctx, itemWord)
	if !ok {
		return fmt.Errorf("You carry no %s.", itemWord)
	}
	target, ok := ctx.World.ResolveInRoom(ctx.ActorID, targetWord)
	if !ok || target.ID == ctx.ActorID {
		return fmt.Errorf("There is no %s here.", targetWord)
	}
	name := item.Name()
	if err := ctx.World.MoveObject(item.ID, target.ID); err != nil {
		return err
	}
	ctx.Printf("You give %s to %s.", name, target.Name())
	ctx.Emit(RoomEvent{Kind: EventItemGiven, Message: name, Target: target.ID})
	return nil
}

func cmdInventory(ctx *Context, args []string) error {
	ids := ctx.World.Graph.Contents(ctx.ActorID)
	if len(ids) == 0 {
		ctx.Println("You carry nothing.")
		return nil
	}
	equipped := ctx.World.Graph.Equipped(ctx.ActorID)
	worn := make(map[string]string, len(equipped))
	for slot, item := range equipped {
		worn[item] = slot
	}
	ctx.Println("You carry:")
	for _, id := range ids {
		inst, ok := ctx.World.Objects.Get(id)
		if !ok {
			continue
		}
		line := "  " + inst.Name()
		if qty := inst.Quantity(); qty > 1 {
			line = fmt.Sprintf("%s (x%d)", line, qty)
		}
		if slot, ok := worn[id]; ok {
			line += " {green}[" + slot + "]{/}"
		}
		ctx.Println(line)
	}
	return nil
}

// itemSlot picks the equipment slot an item occupies: the blueprint names
// it, or "held" by default.
func itemSlot(inst *world.Instance) string {
	if slot, ok := inst.Store.String("slot"); ok {
		return slot
	}
	if slot, ok := inst.Chunk().FieldString("slot"); ok {
		return slot
	}
	return "held"
}

func cmdEquip(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Equip what?")
	}
	word := strings.Join(args, " ")
	inst, ok := findCarried(ctx, word)
	if !ok {
		return fmt.Errorf("You carry no %s.", word)
	}
	slot := itemSlot(inst)
	if err := ctx.World.Graph.Equip(ctx.ActorID, slot, inst.ID); err != nil {
		if cur, ok := ctx.World.Graph.EquippedItem(ctx.ActorID, slot); ok {
			if curInst, ok := ctx.World.Objects.Get(cur); ok {
				return fmt.Errorf("You already have %s equipped there.", curInst.Name())
			}
		}
		return err
	}
	ctx.Printf("You equip %s [%s].", inst.Name(), slot)
	return nil
}

func cmdUnequip(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Unequip what?")
	}
	word := strings.ToLower(strings.Join(args, " "))
	slots := ctx.World.Graph.Equipped(ctx.ActorID)
	for slot, itemID := range slots {
		inst, ok := ctx.World.Objects.Get(itemID)
		if slot == word || (ok && strings.ToLower(inst.Name()) == word) {
			if _, err := ctx.World.Graph.Unequip(ctx.ActorID, slot); err != nil {
				return err
			}
			if ok {
				ctx.Printf("You unequip %s.", inst.Name())
			} else {
				ctx.Printf("You unequip the %s slot.", slot)
			}
			return nil
		}
	}
	return fmt.Errorf("You have no %s equipped.", word)
}

func cmdKill(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Kill what?")
	}
	word := strings.Join(args, " ")
	target, ok := ctx.World.ResolveInRoom(ctx.ActorID, word)
	if !ok || target.ID == ctx.ActorID {
		return fmt.Errorf("There is no %s here.", word)
	}
	if cur, _ := ctx.World.Combat.Target(ctx.ActorID); cur == target.ID {
		return fmt.Errorf("You are already fighting %s.", target.Name())
	}
	ctx.World.Combat.Start(ctx.ActorID, target.ID, ctx.Clock.Now())
	ctx.Printf("{red}You attack %s!{/}", target.Name())
	room, _ := ctx.Room()
	ctx.Queue.Enqueue(msg.Message{
		Sender: ctx.ActorID,
		Kind:   msg.KindEmote,
		Room:   room,
		Text:   fmt.Sprintf("%s attacks %s!", ctx.ActorName, target.Name()),
	})
	ctx.Emit(RoomEvent{Kind: EventCombat, Message: "attack", Target: target.ID})
	return nil
}

func cmdFlee(ctx *Context, args []string) error {
	if !ctx.World.Combat.IsInCombat(ctx.ActorID) {
		return fmt.Errorf("You are not fighting anyone.")
	}
	room, _ := ctx.Room()
	dir, dest, fled := ctx.World.Flee(ctx.ActorID)
	if !fled {
		ctx.Println("{red}You fail to escape!{/}")
		return nil
	}
	destID, err := resolveRoomRef(ctx, dest)
	if err != nil {
		return fmt.Errorf("You stumble and go nowhere.")
	}
	if err := ctx.World.MoveObject(ctx.ActorID, destID); err != nil {
		return err
	}
	ctx.Printf("{yellow}You flee %s!{/}", dir)
	ctx.Emit(RoomEvent{Kind: EventDeparture, Message: dir, Room: room})
	ctx.Emit(RoomEvent{Kind: EventArrival, Room: destID})
	return cmdLook(ctx, nil)
}

func cmdWho(ctx *Context, args []string) error {
	names := ctx.Players.Names()
	ctx.Printf("{bold}%d player(s) online:{/}", len(names))
	for _, n := range names {
		ctx.Println("  " + n)
	}
	return nil
}

func cmdHelp(ctx *Context, args []string) error {
	cat := ""
	for _, cmd := range ctx.Commands.Visible(ctx.Wizard) {
		if cmd.Category != cat {
			cat = cmd.Category
			ctx.Println("{bold}" + cat + "{/}")
		}
		ctx.Printf("  %-28s %s", cmd.Usage, cmd.Desc)
	}
	return nil
}

func cmdQuit(ctx *Context, args []string) error {
	ctx.Println("Goodbye.")
	ctx.Out.RequestQuit()
	return nil
}

func findCarried(ctx *Context, word string) (*world.Instance, bool) {
	word = strings.ToLower(word)
	var prefix *world.Instance
	hits := 0
	for _, id := range ctx.World.Graph.Contents(ctx.ActorID) {
		inst, ok := ctx.World.Objects.Get(id)
		if !ok {
			continue
		}
		if id == word || strings.ToLower(inst.Name()) == word {
			return inst, true
		}
		if strings.HasPrefix(strings.ToLower(inst.Name()), word) {
			prefix = inst
			hits++
		}
	}
	if hits == 1 {
		return prefix, true
	}
	return nil, false
}

