package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/botflow/engine/pkg/api"
)

type (
	// Inference calls the model-inference collaborator for ai nodes
	Inference interface {
		Complete(ctx context.Context, req *CompletionRequest) (string, error)
		Stream(
			ctx context.Context, req *CompletionRequest,
			fn func(chunk string) error,
		) error
	}

	// CompletionRequest is one prompt sent to the model endpoint
	CompletionRequest struct {
		Model  string `json:"model,omitempty"`
		System string `json:"system,omitempty"`
		Prompt string `json:"prompt"`
		Stream bool   `json:"stream,omitempty"`
	}

	// ModelClient is the production Inference over HTTP
	ModelClient struct {
		httpClient *http.Client
		endpoint   string
		apiKey     string
	}

	completionResponse struct {
		Text string `json:"text"`
	}

	streamChunk struct {
		Text string `json:"text"`
		Done bool   `json:"done"`
	}
)

var (
	ErrModelStatus      = errors.New("model call returned error status")
	ErrModelUnavailable = errors.New("model endpoint not configured")

	_ Inference = (*ModelClient)(nil)
)

// NewModelClient creates an inference client for the given endpoint
func NewModelClient(
	endpoint, apiKey string, timeout time.Duration,
) *ModelClient {
	return &ModelClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// Complete sends the prompt and returns the full response text
func (c *ModelClient) Complete(
	ctx context.Context, req *CompletionRequest,
) (string, error) {
	res, err := c.post(ctx, req)
	if err != nil {
		return "", err
	}
	defer func() { _ = res.Body.Close() }()

	var cr completionResponse
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return "", err
	}
	return cr.Text, nil
}

// Stream sends the prompt and calls fn for each response chunk as it
// arrives. The chunks concatenate to the full response text
func (c *ModelClient) Stream(
	ctx context.Context, req *CompletionRequest, fn func(string) error,
) error {
	streamReq := *req
	streamReq.Stream = true

	res, err := c.post(ctx, &streamReq)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	scanner := bufio.NewScanner(res.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return err
		}
		if chunk.Done {
			return nil
		}
		if err := fn(chunk.Text); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (c *ModelClient) post(
	ctx context.Context, req *CompletionRequest,
) (*http.Response, error) {
	if c.endpoint == "" {
		return nil, ErrModelUnavailable
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint, bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, api.Transient(err)
	}

	if res.StatusCode >= 500 {
		_ = res.Body.Close()
		return nil, api.Transient(
			fmt.Errorf("%w: %s", ErrModelStatus, res.Status),
		)
	}
	if res.StatusCode >= 400 {
		_ = res.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrModelStatus, res.Status)
	}
	return res, nil
}
