package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/botflow/engine/internal/client"
	"github.com/botflow/engine/internal/tenantdb"
	"github.com/botflow/engine/internal/transport"
	"github.com/botflow/engine/pkg/api"
)

type (
	apiHandler struct {
		invoker client.Invoker
	}

	databaseHandler struct {
		db tenantdb.Store
	}

	fileHandler struct {
		files *blob.Bucket
		out   transport.Transport
	}

	groupHandler struct {
		jobs *JobQueue
	}

	aiHandler struct {
		model client.Inference
		out   transport.Transport
	}

	scriptHandler struct {
		lua *LuaEnv
	}
)

var (
	ErrFileNotFound = errors.New("file not found")

	_ Handler = (*apiHandler)(nil)
	_ Handler = (*databaseHandler)(nil)
	_ Handler = (*fileHandler)(nil)
	_ Handler = (*groupHandler)(nil)
	_ Handler = (*aiHandler)(nil)
	_ Handler = (*scriptHandler)(nil)
)

func (h *apiHandler) Execute(
	ctx context.Context, ec *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	vars, err := h.invoker.Invoke(ctx, node.HTTP, ec.Resolve)
	if err != nil {
		return nil, err
	}

	outcome := api.Continue()
	for name, value := range vars {
		outcome.WithMutation(name, value)
	}
	return outcome, nil
}

func (h *databaseHandler) Execute(
	ctx context.Context, ec *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	cfg := node.Database
	expr, err := tenantdb.ParseFilter(ec.Resolve(cfg.Filter))
	if err != nil {
		return nil, err
	}

	tenant := ec.Session.Key.Tenant
	values := ec.ResolveMap(cfg.Values)

	var result string
	switch cfg.Operation {
	case api.DBSelect:
		recs, err := h.db.Select(ctx, tenant, cfg.Table, expr)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(recs)
		if err != nil {
			return nil, err
		}
		result = string(data)
	case api.DBInsert:
		id, err := h.db.Insert(ctx, tenant, cfg.Table, values)
		if err != nil {
			return nil, err
		}
		result = id
	case api.DBUpdate:
		n, err := h.db.Update(ctx, tenant, cfg.Table, expr, values)
		if err != nil {
			return nil, err
		}
		result = strconv.Itoa(n)
	case api.DBDelete:
		n, err := h.db.Delete(ctx, tenant, cfg.Table, expr)
		if err != nil {
			return nil, err
		}
		result = strconv.Itoa(n)
	case api.DBCount:
		n, err := h.db.Count(ctx, tenant, cfg.Table, expr)
		if err != nil {
			return nil, err
		}
		result = strconv.Itoa(n)
	}

	outcome := api.Continue()
	if cfg.Variable != "" {
		outcome.WithMutation(cfg.Variable, result)
	}
	return outcome, nil
}

func (h *fileHandler) Execute(
	ctx context.Context, ec *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	cfg := node.File
	doc := &transport.Document{
		TenantID: ec.Session.Key.Tenant,
		Chat:     ec.Session.ChatAddress,
		Filename: cfg.Filename,
		Caption:  ec.Resolve(cfg.Caption),
	}

	source := ec.Resolve(cfg.Source)
	if isRemoteSource(source) {
		doc.URL = source
	} else {
		data, err := h.files.ReadAll(ctx, source)
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, source)
		}
		if err != nil {
			return nil, api.Transient(err)
		}
		doc.Data = data
	}

	if err := h.out.SendDocument(ctx, doc); err != nil {
		return nil, err
	}
	return api.Continue(), nil
}

func isRemoteSource(source string) bool {
	return strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://")
}

// Execute enqueues the group operation and continues immediately; the job
// queue carries it out off the event-processing path
func (h *groupHandler) Execute(
	_ context.Context, ec *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	cfg := node.Group
	h.jobs.Enqueue(&transport.GroupOp{
		TenantID: ec.Session.Key.Tenant,
		UserID:   ec.Session.Key.User,
		Action:   cfg.Action,
		Group:    ec.Resolve(cfg.Group),
		Payload:  ec.ResolveMap(cfg.Payload),
	})
	return api.Continue(), nil
}

func (h *aiHandler) Execute(
	ctx context.Context, ec *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	cfg := node.AI
	req := &client.CompletionRequest{
		Model:  cfg.Model,
		System: cfg.System,
		Prompt: ec.Resolve(cfg.Prompt),
	}

	var text string
	if cfg.Stream {
		var sb strings.Builder
		err := h.model.Stream(ctx, req, func(chunk string) error {
			sb.WriteString(chunk)
			return h.out.SendMessage(ctx, &transport.Message{
				TenantID: ec.Session.Key.Tenant,
				Chat:     ec.Session.ChatAddress,
				Text:     chunk,
			})
		})
		if err != nil {
			return nil, err
		}
		text = sb.String()
	} else {
		res, err := h.model.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		text = res
	}

	outcome := api.Continue()
	if cfg.Variable != "" {
		outcome.WithMutation(cfg.Variable, text)
	}
	if !cfg.Stream && cfg.Variable == "" {
		err := h.out.SendMessage(ctx, &transport.Message{
			TenantID: ec.Session.Key.Tenant,
			Chat:     ec.Session.ChatAddress,
			Text:     text,
		})
		if err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

func (h *scriptHandler) Execute(
	_ context.Context, ec *ExecContext, node *api.Node,
) (*api.Outcome, error) {
	cfg := node.Script
	mutations, result, err := h.lua.Run(
		cfg.Script, ec.Session.Variables, ec.Event.Text,
	)
	if err != nil {
		return nil, err
	}

	outcome := api.Continue()
	for name, value := range mutations {
		outcome.WithMutation(name, value)
	}
	if cfg.Variable != "" && result != "" {
		outcome.WithMutation(cfg.Variable, result)
	}
	return outcome, nil
}
