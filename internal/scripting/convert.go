package scripting

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ToLua converts a Go value produced by the driver (state values, callout
// args, event fields) into its Lua representation. Nested maps and slices
// become tables.
func ToLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case time.Time:
		return lua.LNumber(x.UnixMilli())
	case []byte:
		return lua.LString(string(x))
	case []any:
		t := L.NewTable()
		for i, e := range x {
			t.RawSetInt(i+1, ToLua(L, e))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, e := range x {
			t.RawSetString(k, ToLua(L, e))
		}
		return t
	default:
		return lua.LNil
	}
}

// FromLua converts a Lua value back into the driver's plain-Go form.
// Numbers come back as int64 when integral, float64 otherwise.
func FromLua(lv lua.LValue) any {
	switch x := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		f := float64(x)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(x)
	case *lua.LTable:
		m := make(map[string]any)
		x.ForEach(func(k, v lua.LValue) {
			m[k.String()] = FromLua(v)
		})
		return m
	default:
		return nil
	}
}
