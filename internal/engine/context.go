package engine

import (
	"regexp"
	"strings"

	"github.com/botflow/engine/internal/flow"
	"github.com/botflow/engine/internal/transport"
	"github.com/botflow/engine/pkg/api"
)

// ExecContext carries the state of one run through the handlers: the
// compiled graph, the session being advanced, and the inbound event that
// triggered it. Continuations fire with a synthetic event carrying only
// the session's identity
type ExecContext struct {
	Graph   *flow.CompiledGraph
	Session *api.Session
	Event   *api.InboundEvent
}

var varPattern = regexp.MustCompile(
	`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`,
)

// Resolve substitutes {{name}} placeholders with session variables and
// builtins. Unknown names resolve to the empty string
func (ec *ExecContext) Resolve(s string) string {
	return ec.resolveWith(s, func(v string) string { return v })
}

// ResolveEscaped substitutes placeholders with values escaped for the
// message's format mode, so user-supplied text cannot break the markup
func (ec *ExecContext) ResolveEscaped(s, formatMode string) string {
	return ec.resolveWith(s, func(v string) string {
		return transport.EscapeValue(v, formatMode)
	})
}

// ResolveMap substitutes placeholders in every value of a template map
func (ec *ExecContext) ResolveMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return m
	}
	res := make(map[string]string, len(m))
	for k, v := range m {
		res[k] = ec.Resolve(v)
	}
	return res
}

func (ec *ExecContext) resolveWith(s string, esc func(string) string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return varPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := varPattern.FindStringSubmatch(m)[1]
		return esc(ec.lookup(name))
	})
}

func (ec *ExecContext) lookup(name string) string {
	if v, ok := ec.Session.Variables[name]; ok {
		return v
	}
	switch name {
	case "text":
		return ec.Event.Text
	case "user_id":
		return string(ec.Session.Key.User)
	case "tenant_id":
		return string(ec.Session.Key.Tenant)
	case "chat":
		return ec.Session.ChatAddress
	}
	return ""
}
