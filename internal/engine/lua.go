package engine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/Shopify/go-lua"

	"github.com/botflow/engine/pkg/api"
)

type (
	// LuaEnv runs sandboxed scripts against session variables, with a
	// state pool and a bytecode cache keyed by script content
	LuaEnv struct {
		statePool chan *lua.State
		scripts   sync.Map
	}

	compiledLua struct {
		bytecode []byte
	}
)

const (
	luaStatePoolSize   = 10
	luaTableIndex      = -2
	luaMapTableIndex   = -3
	luaGlobalTableName = "_G"

	luaPrelude = "local vars = select(1, ...)\n" +
		"local text = select(2, ...)\n"
)

var (
	ErrScriptCompile = errors.New("script compile error")
	ErrScriptRuntime = errors.New("script execution error")
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// NewLuaEnv creates a script environment with a pooled interpreter state
func NewLuaEnv() *LuaEnv {
	return &LuaEnv{
		statePool: make(chan *lua.State, luaStatePoolSize),
	}
}

// Check compiles a script without running it, surfacing syntax errors
func (e *LuaEnv) Check(script string) error {
	_, err := e.compiled(script)
	return err
}

// Run executes a script. The script sees the session variables as the
// `vars` table and the inbound text as `text`. A table result becomes
// variable mutations; a scalar result is returned as a single value
func (e *LuaEnv) Run(
	script string, vars api.Variables, text string,
) (api.Variables, string, error) {
	c, err := e.compiled(script)
	if err != nil {
		return nil, "", err
	}

	L := e.getState()
	defer e.returnState(L)

	e.setupSandbox(L)
	if err := L.Load(
		bytes.NewReader(c.bytecode), "chunk", "b",
	); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrScriptRuntime, err)
	}

	pushVariables(L, vars)
	L.PushString(text)

	if err := L.ProtectedCall(2, 1, 0); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrScriptRuntime, err)
	}

	var mutations api.Variables
	var result string
	if L.IsTable(-1) {
		mutations = tableToVariables(L, -1)
	} else {
		result = luaValueToString(L, -1)
	}
	L.Pop(1)

	return mutations, result, nil
}

func (e *LuaEnv) compiled(script string) (*compiledLua, error) {
	key := scriptCacheKey(script)
	if val, ok := e.scripts.Load(key); ok {
		return val.(*compiledLua), nil
	}

	c, err := e.compile(script)
	if err != nil {
		return nil, err
	}
	e.scripts.Store(key, c)
	return c, nil
}

func (e *LuaEnv) compile(script string) (*compiledLua, error) {
	L := lua.NewState()
	e.setupSandbox(L)

	if err := lua.LoadString(L, luaPrelude+script); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptCompile, err)
	}

	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptCompile, err)
	}
	return &compiledLua{bytecode: buf.Bytes()}, nil
}

func (e *LuaEnv) setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaTableIndex, name)
	}
	L.Pop(1)
}

func (e *LuaEnv) getState() *lua.State {
	select {
	case L := <-e.statePool:
		return L
	default:
		return lua.NewState()
	}
}

func (e *LuaEnv) returnState(L *lua.State) {
	L.SetTop(0)

	select {
	case e.statePool <- L:
	default:
	}
}

func scriptCacheKey(script string) string {
	sum := sha256.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}

func pushVariables(L *lua.State, vars api.Variables) {
	L.CreateTable(0, len(vars))
	for k, v := range vars {
		L.PushString(k)
		L.PushString(v)
		L.SetTable(luaMapTableIndex)
	}
}

func tableToVariables(L *lua.State, index int) api.Variables {
	res := api.Variables{}

	L.PushNil()
	for L.Next(index - 1) {
		if L.IsString(-2) {
			key, _ := L.ToString(-2)
			res[key] = luaValueToString(L, -1)
		}
		L.Pop(1)
	}
	return res
}

func luaValueToString(L *lua.State, index int) string {
	switch {
	case L.IsNil(index):
		return ""
	case L.IsBoolean(index):
		return strconv.FormatBool(L.ToBoolean(index))
	case L.IsNumber(index):
		num, _ := L.ToNumber(index)
		if num == float64(int64(num)) {
			return strconv.FormatInt(int64(num), 10)
		}
		return strconv.FormatFloat(num, 'g', -1, 64)
	case L.IsString(index):
		s, _ := L.ToString(index)
		return s
	}
	return ""
}
