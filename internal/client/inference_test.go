package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botflow/engine/internal/client"
	"github.com/botflow/engine/pkg/api"
)

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"text":"Hello, Ada!"}`))
		},
	))
	t.Cleanup(srv.Close)

	mc := client.NewModelClient(srv.URL, "secret", time.Second)
	text, err := mc.Complete(context.Background(), &client.CompletionRequest{
		Prompt: "Greet the user",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada!", text)
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(
				"{\"text\":\"Hel\"}\n{\"text\":\"lo\"}\n{\"done\":true}\n",
			))
		},
	))
	t.Cleanup(srv.Close)

	mc := client.NewModelClient(srv.URL, "", time.Second)

	var chunks []string
	err := mc.Stream(context.Background(), &client.CompletionRequest{
		Prompt: "Greet the user",
	}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
}

func TestCompleteServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	))
	t.Cleanup(srv.Close)

	mc := client.NewModelClient(srv.URL, "", time.Second)
	_, err := mc.Complete(context.Background(), &client.CompletionRequest{
		Prompt: "hi",
	})
	require.Error(t, err)
	assert.True(t, api.IsTransient(err))
}

func TestCompleteNoEndpoint(t *testing.T) {
	mc := client.NewModelClient("", "", time.Second)
	_, err := mc.Complete(context.Background(), &client.CompletionRequest{
		Prompt: "hi",
	})
	assert.ErrorIs(t, err, client.ErrModelUnavailable)
}
