package command

import (
	"fmt"
	"strings"
)

// RegisterWizard installs the driver administration commands. Every one is
// invisible to non-wizards.
func RegisterWizard(r *Registry) {
	r.Register(&Command{Name: "@clone", Wizard: true, Category: "wizard",
		Usage: "@clone <blueprint>", Desc: "Clone a blueprint into your inventory.", Run: cmdClone})
	r.Register(&Command{Name: "@dest", Wizard: true, Category: "wizard",
		Usage: "@dest <object>", Desc: "Destruct an instance.", Run: cmdDest})
	r.Register(&Command{Name: "@reload", Wizard: true, Category: "wizard",
		Usage: "@reload <blueprint>", Desc: "Recompile a blueprint; live instances migrate.", Run: cmdReload})
	r.Register(&Command{Name: "@unload", Wizard: true, Category: "wizard",
		Usage: "@unload <blueprint>", Desc: "Destruct all instances and drop the blueprint.", Run: cmdUnload})
	r.Register(&Command{Name: "@callouts", Wizard: true, Category: "wizard",
		Usage: "@callouts [object]", Desc: "Show pending callouts.", Run: cmdCallouts})
	r.Register(&Command{Name: "@save", Wizard: true, Category: "wizard",
		Usage: "@save", Desc: "Write a world snapshot now.", Run: cmdSave})
	r.Register(&Command{Name: "@shutdown", Wizard: true, Category: "wizard",
		Usage: "@shutdown [reason]", Desc: "Save and stop the server.", Run: cmdShutdown})
	r.Register(&Command{Name: "@goto", Wizard: true, Category: "wizard",
		Usage: "@goto <room>", Desc: "Teleport to a room.", Run: cmdGoto})
	r.Register(&Command{Name: "@stat", Wizard: true, Category: "wizard",
		Usage: "@stat <object>", Desc: "Inspect an instance's state.", Run: cmdStat})
}

func cmdClone(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Usage: @clone <blueprint>")
	}
	id, err := ctx.World.Objects.Clone(args[0], nil)
	if err != nil {
		return fmt.Errorf("clone failed: %v", err)
	}
	if err := ctx.World.MoveObject(id, ctx.ActorID); err != nil {
		return err
	}
	ctx.Printf("Cloned %s.", id)
	return nil
}

func cmdDest(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Usage: @dest <object>")
	}
	inst, ok := ctx.World.ResolveInRoom(ctx.ActorID, strings.Join(args, " "))
	if !ok {
		if byID, found := ctx.World.Objects.Get(args[0]); found {
			inst = byID
		} else {
			return fmt.Errorf("No such object: %s", args[0])
		}
	}
	if inst.ID == ctx.ActorID {
		return fmt.Errorf("Destructing yourself is not supported.")
	}
	id := inst.ID
	if err := ctx.World.Objects.Destruct(id); err != nil {
		return err
	}
	ctx.Printf("Destructed %s.", id)
	return nil
}

func cmdReload(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Usage: @reload <blueprint>")
	}
	if err := ctx.World.Objects.Reload(args[0]); err != nil {
		return fmt.Errorf("reload failed: %v", err)
	}
	b, _ := ctx.World.Objects.Blueprint(args[0])
	ctx.Printf("Reloaded %s (%d instance(s) migrated).", args[0], b.InstanceCount())
	return nil
}

func cmdUnload(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Usage: @unload <blueprint>")
	}
	if err := ctx.World.Objects.Unload(args[0]); err != nil {
		return fmt.Errorf("unload failed: %v", err)
	}
	ctx.Printf("Unloaded %s.", args[0])
	return nil
}

func cmdCallouts(ctx *Context, args []string) error {
	if len(args) > 0 {
		pending := ctx.Callouts.Pending(args[0])
		if len(pending) == 0 {
			ctx.Printf("No callouts pending on %s.", args[0])
			return nil
		}
		for _, co := range pending {
			ctx.Printf("  #%d %s.%s due %s", co.ID, co.Target, co.Method,
				co.Due.Format("15:04:05"))
		}
		return nil
	}
	ctx.Printf("%d callout(s) pending.", ctx.Callouts.Len())
	return nil
}

func cmdSave(ctx *Context, args []string) error {
	if err := ctx.Control.RequestSave(); err != nil {
		return fmt.Errorf("save failed: %v", err)
	}
	ctx.Println("World saved.")
	return nil
}

func cmdShutdown(ctx *Context, args []string) error {
	reason := strings.Join(args, " ")
	if reason == "" {
		reason = "wizard request"
	}
	ctx.Println("Shutting down.")
	ctx.Control.RequestShutdown(reason)
	return nil
}

func cmdGoto(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Usage: @goto <room>")
	}
	destID, err := resolveRoomRef(ctx, args[0])
	if err != nil {
		return fmt.Errorf("No such room: %s", args[0])
	}
	if !ctx.World.IsRoom(destID) {
		return fmt.Errorf("%s is not a room.", destID)
	}
	if err := ctx.World.MoveObject(ctx.ActorID, destID); err != nil {
		return err
	}
	return cmdLook(ctx, nil)
}

func cmdStat(ctx *Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Usage: @stat <object>")
	}
	inst, ok := ctx.World.Objects.Get(args[0])
	if !ok {
		if inRoom, found := ctx.World.ResolveInRoom(ctx.ActorID, strings.Join(args, " ")); found {
			inst = inRoom
		} else {
			return fmt.Errorf("No such object: %s", args[0])
		}
	}
	ctx.Printf("{bold}%s{/} (blueprint %s)", inst.ID, inst.BlueprintID)
	ctx.Printf("  caps: %s", inst.Caps().String())
	ctx.Printf("  methods: %s", strings.Join(inst.Chunk().MethodNames(), ", "))
	if parent, ok := ctx.World.Graph.Container(inst.ID); ok {
		ctx.Printf("  in: %s", parent)
	}
	if contents := ctx.World.Graph.Contents(inst.ID); len(contents) > 0 {
		ctx.Printf("  contents: %s", strings.Join(contents, ", "))
	}
	if target, ok := ctx.World.Combat.Target(inst.ID); ok {
		ctx.Printf("  fighting: %s", target)
	}
	for _, key := range inst.Store.Keys() {
		v, _ := inst.Store.Get(key)
		ctx.Printf("  %s = %v", key, v.Any())
	}
	return nil
}
