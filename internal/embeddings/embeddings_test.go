package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-analyzer/internal/config"
)

func TestOllamaEmbedder(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "minilm", req.Model)
		calls++
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(&config.EmbedderConfig{Model: "minilm", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 3, e.GetDimension())
	assert.Equal(t, 1, calls)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vecs[1])
	assert.Equal(t, 3, calls)
}

func TestOllamaEmbedderConfiguredDimension(t *testing.T) {
	dim := 8
	e, err := NewOllamaEmbedder(&config.EmbedderConfig{Model: "m", BaseURL: "http://127.0.0.1:1", Dimension: &dim})
	require.NoError(t, err)
	assert.Equal(t, 8, e.GetDimension())

	_, err = NewOllamaEmbedder(&config.EmbedderConfig{Model: "m"})
	assert.Error(t, err)
}

func TestOllamaEmbedderEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(&config.EmbedderConfig{Model: "m", BaseURL: srv.URL})
	assert.ErrorContains(t, err, "empty embedding")
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0.5,0.5]},
			{"object":"embedding","index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	dim := 2
	e, err := NewOpenAIEmbedder(&config.EmbedderConfig{Provider: "openai", APIKey: "k", Model: "custom", BaseURL: srv.URL + "/v1", Dimension: &dim})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, vecs[0])
	assert.Equal(t, []float64{0.5, 0.5}, vecs[1])
}

func TestFactory(t *testing.T) {
	f := NewFactory()

	e, err := f.Create(&config.EmbedderConfig{Provider: "openai", APIKey: "k", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, e.GetDimension())

	_, err = f.Create(&config.EmbedderConfig{Provider: "openai", Model: "x"})
	assert.Error(t, err)

	_, err = f.Create(&config.EmbedderConfig{Provider: "vllm"})
	assert.Error(t, err)
}
