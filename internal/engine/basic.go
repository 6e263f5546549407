package engine

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/botflow/engine/internal/transport"
	"github.com/botflow/engine/pkg/api"
)

type (
	startHandler struct{}

	endHandler struct{}

	messageHandler struct {
		out transport.Transport
	}

	keyboardHandler struct {
		out transport.Transport
	}

	conditionHandler struct{}

	delayHandler struct {
		now func() time.Time
	}

	variableHandler struct{}

	randomHandler struct{}
)

var (
	_ Handler = startHandler{}
	_ Handler = endHandler{}
	_ Handler = (*messageHandler)(nil)
	_ Resumer = (*keyboardHandler)(nil)
	_ Handler = conditionHandler{}
	_ Handler = (*delayHandler)(nil)
	_ Handler = variableHandler{}
	_ Handler = randomHandler{}
)

func (startHandler) Execute(
	context.Context, *ExecContext, *api.Node,
) (*api.Outcome, error) {
	return api.Continue(), nil
}

func (endHandler) Execute(
	context.Context, *ExecContext, *api.Node,
) (*api.Outcome, error) {
	return api.Terminate(), nil
}

func (h *messageHandler) Execute(
	ctx context.Context, ec *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	cfg := node.Message
	err := h.out.SendMessage(ctx, &transport.Message{
		TenantID:   ec.Session.Key.Tenant,
		Chat:       ec.Session.ChatAddress,
		Text:       ec.ResolveEscaped(cfg.Text, cfg.FormatMode),
		FormatMode: cfg.FormatMode,
	})
	if err != nil {
		return nil, err
	}
	return api.Continue(), nil
}

// Execute sends the prompt with its buttons and suspends at this node
// until the user replies
func (h *keyboardHandler) Execute(
	ctx context.Context, ec *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	if err := h.prompt(ctx, ec, node); err != nil {
		return nil, err
	}
	return api.Suspend(node.ID), nil
}

// Resume matches the reply against the node's buttons and branches on the
// matched button's label. Callback data matches exactly, button text
// case-insensitively. An empty or unrecognized reply re-prompts and
// suspends again
func (h *keyboardHandler) Resume(
	ctx context.Context, ec *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	reply := ec.Event.CallbackData
	if reply == "" {
		reply = ec.Event.Text
	}

	if reply != "" {
		for _, b := range node.Keyboard.Buttons {
			if b.CallbackData == reply {
				return api.ContinueBranch(buttonLabel(b)), nil
			}
		}
		for _, b := range node.Keyboard.Buttons {
			if strings.EqualFold(b.Text, reply) {
				return api.ContinueBranch(buttonLabel(b)), nil
			}
		}
	}

	if err := h.prompt(ctx, ec, node); err != nil {
		return nil, err
	}
	return api.Suspend(node.ID), nil
}

func (h *keyboardHandler) prompt(
	ctx context.Context, ec *ExecContext, node *api.Node,
) error {
	cfg := node.Keyboard
	return h.out.SendMessage(ctx, &transport.Message{
		TenantID:   ec.Session.Key.Tenant,
		Chat:       ec.Session.ChatAddress,
		Text:       ec.ResolveEscaped(cfg.Text, cfg.FormatMode),
		FormatMode: cfg.FormatMode,
		Buttons:    cfg.Buttons,
		Inline:     cfg.Inline,
	})
}

func buttonLabel(b api.Button) api.Label {
	if b.CallbackData != "" {
		return api.Label(b.CallbackData)
	}
	return api.Label(b.Text)
}

func (conditionHandler) Execute(
	_ context.Context, ec *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	if evalCondition(ec, node.Condition) {
		return api.ContinueBranch(api.LabelTrue), nil
	}
	return api.ContinueBranch(api.LabelFalse), nil
}

// evalCondition compares case-insensitively for the text operators;
// exists checks presence of a non-empty value
func evalCondition(ec *ExecContext, cfg *api.ConditionConfig) bool {
	input, ok := conditionInput(ec, cfg)
	value := strings.ToLower(ec.Resolve(cfg.Value))
	folded := strings.ToLower(input)

	switch cfg.Operator {
	case api.OpEquals:
		return folded == value
	case api.OpNotEquals:
		return folded != value
	case api.OpContains:
		return strings.Contains(folded, value)
	case api.OpStartsWith:
		return strings.HasPrefix(folded, value)
	case api.OpExists:
		return ok && input != ""
	}
	return false
}

func conditionInput(
	ec *ExecContext, cfg *api.ConditionConfig,
) (string, bool) {
	if cfg.Variable != "" {
		v, ok := ec.Session.Variables[cfg.Variable]
		return v, ok
	}
	return ec.Event.Text, ec.Event.Text != ""
}

func (h *delayHandler) Execute(
	_ context.Context, _ *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	at := h.now().Add(node.Delay.Duration())
	return api.SuspendUntil(node.ID, at), nil
}

func (variableHandler) Execute(
	_ context.Context, ec *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	cfg := node.Variable
	value := ec.Resolve(cfg.Value)

	var next string
	switch cfg.Operation {
	case api.VarOpSet:
		next = value
	case api.VarOpAppend:
		next = ec.Session.Variables[cfg.Name] + value
	case api.VarOpPrepend:
		next = value + ec.Session.Variables[cfg.Name]
	case api.VarOpIncrement:
		next = adjustNumeric(ec.Session.Variables[cfg.Name], value, 1)
	case api.VarOpDecrement:
		next = adjustNumeric(ec.Session.Variables[cfg.Name], value, -1)
	}
	return api.Continue().WithMutation(cfg.Name, next), nil
}

// adjustNumeric treats an unset or non-numeric variable as zero and a
// missing or non-numeric delta as one
func adjustNumeric(current, delta string, sign int64) string {
	base, err := strconv.ParseInt(current, 10, 64)
	if err != nil {
		base = 0
	}
	step, err := strconv.ParseInt(delta, 10, 64)
	if delta == "" || err != nil {
		step = 1
	}
	return strconv.FormatInt(base+sign*step, 10)
}

func (randomHandler) Execute(
	_ context.Context, ec *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	cfg := node.Random
	picked := pickWeighted(cfg.Options)

	outcome := api.ContinueBranch(api.Label(picked))
	if cfg.Variable != "" {
		outcome.WithMutation(cfg.Variable, picked)
	}
	return outcome, nil
}

func pickWeighted(options []api.RandomOption) string {
	total := 0
	for _, o := range options {
		if o.Weight > 0 {
			total += o.Weight
		}
	}
	if total == 0 {
		return options[rand.IntN(len(options))].Value
	}

	n := rand.IntN(total)
	for _, o := range options {
		if o.Weight <= 0 {
			continue
		}
		n -= o.Weight
		if n < 0 {
			return o.Value
		}
	}
	return options[len(options)-1].Value
}
