package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/botflow/engine/pkg/api"
)

type (
	// Invoker issues the outbound calls configured on api nodes and maps
	// response fields into session variables
	Invoker interface {
		Invoke(
			ctx context.Context, cfg *api.HTTPConfig, resolve Resolver,
		) (api.Variables, error)
	}

	// Resolver substitutes placeholders in request templates before the
	// call goes out
	Resolver func(string) string

	// HTTPInvoker is the production Invoker over net/http
	HTTPInvoker struct {
		httpClient *http.Client
		timeout    time.Duration
	}
)

const maxResponseBytes = 1 << 20 // 1 MiB

var (
	ErrHTTPStatus = errors.New("api call returned error status")

	_ Invoker = (*HTTPInvoker)(nil)
)

// NewHTTPInvoker creates an invoker with the given default timeout. A node
// may shorten or extend it through its own timeout setting
func NewHTTPInvoker(timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

// Invoke performs the configured call. Timeouts, connection failures, and
// 5xx responses are transient; 4xx responses fail the node permanently
func (c *HTTPInvoker) Invoke(
	ctx context.Context, cfg *api.HTTPConfig, resolve Resolver,
) (api.Variables, error) {
	timeout := c.timeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if cfg.Body != "" {
		body = strings.NewReader(resolve(cfg.Body))
	}

	req, err := http.NewRequestWithContext(
		ctx, method, resolve(cfg.URL), body,
	)
	if err != nil {
		return nil, err
	}
	for name, value := range cfg.Headers {
		req.Header.Set(name, resolve(value))
	}
	if cfg.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, api.Transient(err)
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, api.Transient(err)
	}

	if res.StatusCode >= 500 {
		return nil, api.Transient(
			fmt.Errorf("%w: %s", ErrHTTPStatus, res.Status),
		)
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s", ErrHTTPStatus, res.Status)
	}

	return mapResponse(data, cfg.ResponseMapping), nil
}

func mapResponse(data []byte, mapping map[string]string) api.Variables {
	if len(mapping) == 0 {
		return api.Variables{}
	}

	res := make(api.Variables, len(mapping))
	for name, path := range mapping {
		res[name] = gjson.GetBytes(data, path).String()
	}
	return res
}
