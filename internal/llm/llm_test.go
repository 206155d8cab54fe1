package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/chronos/internal/config"
)

func TestParseJSONResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"plain", `{"key": "value", "num": 42}`},
		{"json fence", "```json\n{\"key\": \"value\", \"num\": 42}\n```"},
		{"plain fence", "```\n{\"key\": \"value\", \"num\": 42}\n```"},
		{"whitespace", "  \n  {\"key\": \"value\", \"num\": 42}  \n  "},
		{"surrounding prose", "Here is the schedule:\n{\"key\": \"value\", \"num\": 42}\nHope it helps."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseJSONResponse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, "value", result["key"])
			assert.Equal(t, float64(42), result["num"])
		})
	}
}

func TestParseJSONResponseRejects(t *testing.T) {
	_, err := ParseJSONResponse("")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ParseJSONResponse("not json at all")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ParseJSONResponse("{not: valid}")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoJSON))
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3.2:3b", body["model"])
		assert.Equal(t, false, body["stream"])
		w.Write([]byte(`{"message": {"content": "{\"ok\": true}"}}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider("llama3.2:3b", srv.URL)
	out, err := p.Generate(context.Background(), "prompt", 100)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
}

func TestOllamaIsConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models": [{"name": "llama3.2:3b"}]}`))
	}))
	defer srv.Close()

	assert.True(t, NewOllamaProvider("llama3.2:3b", srv.URL).IsConfigured(context.Background()))
	assert.False(t, NewOllamaProvider("mistral", srv.URL).IsConfigured(context.Background()))
}

func TestOpenAIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("gpt-4o-mini", "sk-test")
	p.BaseURL = srv.URL
	_, err := p.Generate(context.Background(), "prompt", 100)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Write([]byte(`{"choices": [{"message": {"content": "hello"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("gpt-4o-mini", "sk-test")
	p.BaseURL = srv.URL
	out, err := p.Generate(context.Background(), "prompt", 100)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = NewOpenAIProvider("gpt-4o-mini", "").Generate(context.Background(), "p", 1)
	assert.Error(t, err)
}

func TestCreateProviderNone(t *testing.T) {
	assert.Nil(t, CreateProvider(context.Background(), config.AI{Provider: "none"}, nil))
}

func TestCreateProviderFallsBackToOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	t.Setenv("CHRONOS_TEST_OPENAI_KEY", "sk-test")
	p := CreateProvider(context.Background(), config.AI{
		Provider:    "ollama",
		Model:       "llama3.2:3b",
		OllamaURL:   srv.URL,
		OpenAIModel: "gpt-4o-mini",
		APIKeyEnv:   "CHRONOS_TEST_OPENAI_KEY",
	}, nil)
	require.NotNil(t, p)
	assert.Equal(t, "openai", p.Name())
}
