// Package scripting compiles world source files into isolated, collectible
// Lua code units. One blueprint = one source file = one sandboxed LState;
// closing the state releases everything the blueprint loaded.
package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"

	"github.com/jitrealm/server/internal/core/ident"
)

var (
	ErrCompile         = errors.New("scripting: compile failed")
	ErrNoExport        = errors.New("scripting: source must return its export table")
	ErrMultipleExports = errors.New("scripting: source returned more than one value")
	ErrSandbox         = errors.New("scripting: sandbox violation")
	ErrClosed          = errors.New("scripting: chunk released")
	ErrNoMethod        = errors.New("scripting: no such method")
)

// Binding is one driver API function published to world code under the
// global `driver` table.
type Binding struct {
	Name string
	Fn   lua.LGFunction
}

// Engine loads blueprints from the world source tree. Bind the driver API
// before the first Load; every chunk gets the same published surface.
type Engine struct {
	worldDir string
	bindings []Binding
	log      *zap.Logger
}

func NewEngine(worldDir string, log *zap.Logger) *Engine {
	return &Engine{worldDir: worldDir, log: log}
}

// Bind registers a driver API function. Not safe to call after Load.
func (e *Engine) Bind(name string, fn lua.LGFunction) {
	e.bindings = append(e.bindings, Binding{Name: name, Fn: fn})
}

// Load compiles the blueprint's source file in isolation and returns its
// chunk. The caller owns the chunk and must Close it to release the code
// unit.
func (e *Engine) Load(bp string) (*Chunk, error) {
	if err := ident.ValidateBlueprintID(bp); err != nil {
		return nil, err
	}
	path := filepath.Join(e.worldDir, filepath.FromSlash(ident.SourcePath(bp)))
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, bp, err)
	}

	ast, err := parse.Parse(strings.NewReader(string(src)), bp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, bp, err)
	}
	proto, err := lua.Compile(ast, bp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, bp, err)
	}
	if err := checkSymbols(proto); err != nil {
		return nil, fmt.Errorf("%s: %w", bp, err)
	}

	L := newSandboxedState()
	e.installAPI(L)

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, bp, err)
	}

	nret := L.GetTop()
	if nret == 0 {
		L.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoExport, bp)
	}
	if nret > 1 {
		L.Close()
		return nil, fmt.Errorf("%w: %s", ErrMultipleExports, bp)
	}
	exports, ok := L.Get(-1).(*lua.LTable)
	L.Pop(nret)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoExport, bp)
	}

	c := &Chunk{
		Blueprint: bp,
		LoadedAt:  time.Now(),
		state:     L,
		exports:   exports,
		methods:   make(map[string]*lua.LFunction),
		commands:  make(map[string]*lua.LFunction),
		aliases:   make(map[string]string),
	}
	if err := c.index(); err != nil {
		L.Close()
		return nil, fmt.Errorf("%s: %w", bp, err)
	}
	e.log.Debug("blueprint loaded",
		zap.String("blueprint", bp),
		zap.String("caps", c.caps.String()),
		zap.Int("methods", len(c.methods)))
	return c, nil
}

func (e *Engine) installAPI(L *lua.LState) {
	driver := L.NewTable()
	for _, b := range e.bindings {
		driver.RawSetString(b.Name, L.NewFunction(b.Fn))
	}
	L.SetGlobal("driver", driver)
}
