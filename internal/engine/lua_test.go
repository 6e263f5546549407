package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botflow/engine/internal/engine"
	"github.com/botflow/engine/pkg/api"
)

func TestLuaTableResultBecomesMutations(t *testing.T) {
	env := engine.NewLuaEnv()

	mutations, result, err := env.Run(
		`return {total = 2 + 2, label = "sum"}`, api.Variables{}, "",
	)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, "4", mutations["total"])
	assert.Equal(t, "sum", mutations["label"])
}

func TestLuaScalarResult(t *testing.T) {
	env := engine.NewLuaEnv()

	mutations, result, err := env.Run(
		`return "hello " .. text`, api.Variables{}, "world",
	)
	require.NoError(t, err)
	assert.Nil(t, mutations)
	assert.Equal(t, "hello world", result)
}

func TestLuaSeesSessionVariables(t *testing.T) {
	env := engine.NewLuaEnv()

	_, result, err := env.Run(
		`return vars.name .. "/" .. vars.role`,
		api.Variables{"name": "Ada", "role": "admin"}, "",
	)
	require.NoError(t, err)
	assert.Equal(t, "Ada/admin", result)
}

func TestLuaCompileError(t *testing.T) {
	env := engine.NewLuaEnv()

	err := env.Check(`return ((`)
	assert.ErrorIs(t, err, engine.ErrScriptCompile)

	_, _, err = env.Run(`return ((`, api.Variables{}, "")
	assert.ErrorIs(t, err, engine.ErrScriptCompile)
}

func TestLuaRuntimeError(t *testing.T) {
	env := engine.NewLuaEnv()

	_, _, err := env.Run(
		`error("boom")`, api.Variables{}, "",
	)
	assert.ErrorIs(t, err, engine.ErrScriptRuntime)
}

func TestLuaSandboxBlocksSystemAccess(t *testing.T) {
	env := engine.NewLuaEnv()

	_, _, err := env.Run(
		`return os.time()`, api.Variables{}, "",
	)
	assert.ErrorIs(t, err, engine.ErrScriptRuntime)
}

func TestLuaStatePoolReuse(t *testing.T) {
	env := engine.NewLuaEnv()

	for range 25 {
		_, result, err := env.Run(
			`return tostring(#text)`, api.Variables{}, "four",
		)
		require.NoError(t, err)
		assert.Equal(t, "4", result)
	}
}
