package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/botflow/engine/pkg/api"
)

// Webhook pushes outbound deliveries to a tenant-facing bridge over HTTP.
// Network failures and 5xx responses are marked transient so the executor
// retries them
type Webhook struct {
	client  *http.Client
	baseURL string
}

var (
	ErrDeliveryRejected = errors.New("transport rejected delivery")

	_ Transport = (*Webhook)(nil)
)

// NewWebhook creates a webhook transport targeting the given base URL
func NewWebhook(baseURL string, timeout time.Duration) *Webhook {
	return &Webhook{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// SendMessage delivers a text message
func (w *Webhook) SendMessage(ctx context.Context, msg *Message) error {
	return w.post(ctx, "/message", msg)
}

// SendDocument delivers a file
func (w *Webhook) SendDocument(ctx context.Context, doc *Document) error {
	return w.post(ctx, "/document", doc)
}

// SendGroupOp asks the bridge to carry out a group operation
func (w *Webhook) SendGroupOp(ctx context.Context, op *GroupOp) error {
	return w.post(ctx, "/group", op)
}

func (w *Webhook) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, w.baseURL+path, bytes.NewReader(data),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := w.client.Do(req)
	if err != nil {
		return api.Transient(err)
	}
	defer func() { _ = res.Body.Close() }()
	_, _ = io.Copy(io.Discard, res.Body)

	switch {
	case res.StatusCode < 300:
		return nil
	case res.StatusCode >= 500:
		return api.Transient(
			fmt.Errorf("%w: %s", ErrDeliveryRejected, res.Status),
		)
	default:
		return fmt.Errorf("%w: %s", ErrDeliveryRejected, res.Status)
	}
}
