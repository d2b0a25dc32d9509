package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, embedStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/embeddings":
			var req embedRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if embedStatus != http.StatusOK {
				w.WriteHeader(embedStatus)
				_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
				return
			}
			_, _ = w.Write([]byte(`{"embedding":[0.5,-0.25,1]}`))
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"all-minilm:latest"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbed(t *testing.T) {
	srv := newServer(t, http.StatusOK)
	p := New(srv.URL, "all-minilm")

	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25, 1}, vec)
}

func TestEmbedErrorStatus(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError)
	p := New(srv.URL, "all-minilm")

	_, err := p.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestHealthPing(t *testing.T) {
	srv := newServer(t, http.StatusOK)

	require.NoError(t, New(srv.URL, "all-minilm:latest").HealthPing(context.Background()))
	require.Error(t, New(srv.URL, "nomic-embed-text").HealthPing(context.Background()))
}
