package engine

import (
	"time"

	"github.com/botflow/engine/pkg/api"
)

// DefaultHandlers wires the standard handler for every node type against
// the engine's collaborators
func DefaultHandlers(
	deps *Deps, jobs *JobQueue, lua *LuaEnv,
) *HandlerRegistry {
	r := NewHandlerRegistry()
	r.Register(api.NodeTypeStart, startHandler{})
	r.Register(api.NodeTypeEnd, endHandler{})
	r.Register(api.NodeTypeMessage, &messageHandler{
		out: deps.Transport,
	})
	r.Register(api.NodeTypeKeyboard, &keyboardHandler{
		out: deps.Transport,
	})
	r.Register(api.NodeTypeCondition, conditionHandler{})
	r.Register(api.NodeTypeDelay, &delayHandler{now: time.Now})
	r.Register(api.NodeTypeVariable, variableHandler{})
	r.Register(api.NodeTypeRandom, randomHandler{})
	r.Register(api.NodeTypeAPI, &apiHandler{
		invoker: deps.Invoker,
	})
	r.Register(api.NodeTypeDatabase, &databaseHandler{
		db: deps.Database,
	})
	r.Register(api.NodeTypeFile, &fileHandler{
		files: deps.Files,
		out:   deps.Transport,
	})
	r.Register(api.NodeTypeGroup, &groupHandler{jobs: jobs})
	r.Register(api.NodeTypeAI, &aiHandler{
		model: deps.Inference,
		out:   deps.Transport,
	})
	r.Register(api.NodeTypeScript, &scriptHandler{lua: lua})
	return r
}
