package scripting

import (
	"context"
	"fmt"
	"sort"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Chunk is the loaded code unit of one blueprint: its own LState, the
// export table the source returned, and the method table resolved from it.
// All calls into a chunk happen under the world-state critical section, so
// no internal locking is needed.
type Chunk struct {
	Blueprint string
	LoadedAt  time.Time

	state    *lua.LState
	exports  *lua.LTable
	methods  map[string]*lua.LFunction
	commands map[string]*lua.LFunction
	aliases  map[string]string
	caps     CapSet
	closed   bool
}

// index walks the export table: collects the method table, the declared
// capability set, and any local command table.
func (c *Chunk) index() error {
	var indexErr error
	c.exports.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok {
			return
		}
		if fn, ok := v.(*lua.LFunction); ok {
			c.methods[string(name)] = fn
			if implied, ok := hookCaps[string(name)]; ok {
				c.caps |= CapSet(implied)
			}
		}
	})

	if caps, ok := c.exports.RawGetString("caps").(*lua.LTable); ok {
		caps.ForEach(func(_, v lua.LValue) {
			name := v.String()
			bit, ok := parseCap(name)
			if !ok && indexErr == nil {
				indexErr = fmt.Errorf("%w: unknown capability %q", ErrCompile, name)
				return
			}
			c.caps |= CapSet(bit)
		})
	}
	if indexErr != nil {
		return indexErr
	}

	if cmds, ok := c.exports.RawGetString("commands").(*lua.LTable); ok {
		cmds.ForEach(func(k, v lua.LValue) {
			if fn, ok := v.(*lua.LFunction); ok {
				c.commands[k.String()] = fn
			}
		})
	}
	if al, ok := c.exports.RawGetString("command_aliases").(*lua.LTable); ok {
		al.ForEach(func(k, v lua.LValue) {
			if _, exists := c.commands[v.String()]; exists {
				c.aliases[k.String()] = v.String()
			}
		})
	}
	return nil
}

func (c *Chunk) Caps() CapSet { return c.caps }

func (c *Chunk) HasMethod(name string) bool {
	_, ok := c.methods[name]
	return ok
}

// MethodNames returns the method table's keys; used by schedule-time
// validation and the @stat wizard command.
func (c *Chunk) MethodNames() []string {
	names := make([]string, 0, len(c.methods))
	for n := range c.methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CommandNames returns the local commands this blueprint advertises.
func (c *Chunk) CommandNames() []string {
	names := make([]string, 0, len(c.commands))
	for n := range c.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupCommand resolves a local command word, aliases included. The
// returned name is the primary command name.
func (c *Chunk) LookupCommand(word string) (string, bool) {
	if _, ok := c.commands[word]; ok {
		return word, true
	}
	if primary, ok := c.aliases[word]; ok {
		return primary, true
	}
	return "", false
}

// FieldString reads a string-valued export field ("name", "short", ...).
func (c *Chunk) FieldString(name string) (string, bool) {
	if c.closed {
		return "", false
	}
	if s, ok := c.exports.RawGetString(name).(lua.LString); ok {
		return string(s), true
	}
	return "", false
}

// FieldInt reads a numeric export field.
func (c *Chunk) FieldInt(name string) (int64, bool) {
	if c.closed {
		return 0, false
	}
	if n, ok := c.exports.RawGetString(name).(lua.LNumber); ok {
		return int64(n), true
	}
	return 0, false
}

// FieldStringMap reads a table export field of string keys and string
// values, e.g. a room's exits table.
func (c *Chunk) FieldStringMap(name string) map[string]string {
	if c.closed {
		return nil
	}
	t, ok := c.exports.RawGetString(name).(*lua.LTable)
	if !ok {
		return nil
	}
	m := make(map[string]string)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = v.String()
	})
	return m
}

// Invoke calls a method (or a local command when cmd is true) with a fresh
// call-context table as the first argument followed by positional args.
// The context, when non-nil, bounds the call's wall time; gopher-lua
// checks it between VM instructions.
func (c *Chunk) Invoke(ctx context.Context, method string, callCtx map[string]any, args []any) (err error) {
	return c.invoke(ctx, c.methods[method], method, callCtx, args)
}

// InvokeCommand calls a local command function by primary name.
func (c *Chunk) InvokeCommand(ctx context.Context, name string, callCtx map[string]any, args []any) error {
	return c.invoke(ctx, c.commands[name], name, callCtx, args)
}

func (c *Chunk) invoke(ctx context.Context, fn *lua.LFunction, name string, callCtx map[string]any, args []any) (err error) {
	if c.closed {
		return ErrClosed
	}
	if fn == nil {
		return fmt.Errorf("%w: %s.%s", ErrNoMethod, c.Blueprint, name)
	}

	L := c.state
	if ctx != nil {
		L.SetContext(ctx)
		defer L.RemoveContext()
	}

	largs := make([]lua.LValue, 0, len(args)+1)
	largs = append(largs, ToLua(L, mapToAny(callCtx)))
	for _, a := range args {
		largs = append(largs, ToLua(L, a))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("world code panic in %s.%s: %v", c.Blueprint, name, r)
		}
	}()
	return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, largs...)
}

func mapToAny(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Close releases the chunk's LState so the runtime can reclaim the loaded
// code. Idempotent.
func (c *Chunk) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.state.Close()
}

func (c *Chunk) Closed() bool { return c.closed }
