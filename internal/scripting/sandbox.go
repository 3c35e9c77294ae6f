package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// The sandbox publishes only base/table/string/math plus the driver API.
// Everything else (file I/O, process control, module loading, raw
// coroutines) is outside the contract surface world code may reference.

// forbiddenGlobals are base-library escape hatches removed after OpenBase.
var forbiddenGlobals = []string{
	"dofile", "loadfile", "load", "loadstring", "require",
	"collectgarbage", "rawequal", "rawget", "rawset", "rawlen",
	"getfenv", "setfenv", "getmetatable", "setmetatable", "module",
	"newproxy", "print",
}

// forbiddenSymbols is the compile-time denylist: a chunk whose constant
// pool references one of these is rejected before it ever runs.
var forbiddenSymbols = map[string]bool{
	"os": true, "io": true, "debug": true, "package": true,
	"dofile": true, "loadfile": true, "loadstring": true,
	"require": true, "channel": true, "coroutine": true,
}

// newSandboxedState builds an isolated LState with the allowlisted stdlib
// subset opened and the escape hatches stripped.
func newSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		IncludeGoStackTrace: false,
	})

	for _, open := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(open.fn))
		L.Push(lua.LString(open.name))
		L.Call(1, 0)
	}

	for _, name := range forbiddenGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// checkSymbols scans a compiled function prototype (and its nested
// closures) for references to forbidden globals. Global reads compile to
// string constants in gopher-lua, so the constant pool is the allowlist's
// enforcement point.
func checkSymbols(proto *lua.FunctionProto) error {
	for _, k := range proto.Constants {
		if s, ok := k.(lua.LString); ok && forbiddenSymbols[string(s)] {
			return fmt.Errorf("%w: symbol %q is outside the driver contract", ErrSandbox, string(s))
		}
	}
	for _, sub := range proto.FunctionPrototypes {
		if err := checkSymbols(sub); err != nil {
			return err
		}
	}
	return nil
}
