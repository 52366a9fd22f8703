package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admate-rag-go/internal/config"
)

func TestOllamaClient_Complete(t *testing.T) {
	t.Run("sends prompt with options", func(t *testing.T) {
		var got generateRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/generate", r.URL.Path)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"response":"**핵심 답변** 가능합니다.","done":true}`))
		}))
		defer srv.Close()

		c := NewOllamaClient(config.LLMConfig{BaseURL: srv.URL, Model: "qwen2.5:7b"})
		text, err := c.Complete(context.Background(), "질문", Options{Temperature: Float64(0.3), MaxTokens: 2000})
		require.NoError(t, err)

		assert.Equal(t, "**핵심 답변** 가능합니다.", text)
		assert.Equal(t, "qwen2.5:7b", got.Model)
		assert.False(t, got.Stream)
		require.NotNil(t, got.Options)
		assert.Equal(t, 2000, got.Options.NumPredict)
		require.NotNil(t, got.Options.Temperature)
		assert.InDelta(t, 0.3, *got.Options.Temperature, 1e-9)
	})

	t.Run("omits options when unset", func(t *testing.T) {
		var raw map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
			_, _ = w.Write([]byte(`{"response":"ok","done":true}`))
		}))
		defer srv.Close()

		c := NewOllamaClient(config.LLMConfig{BaseURL: srv.URL, Model: "m"})
		_, err := c.Complete(context.Background(), "p", Options{})
		require.NoError(t, err)
		_, hasOptions := raw["options"]
		assert.False(t, hasOptions)
	})

	t.Run("sends zero temperature", func(t *testing.T) {
		var raw struct {
			Options map[string]interface{} `json:"options"`
		}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
			_, _ = w.Write([]byte(`{"response":"ok","done":true}`))
		}))
		defer srv.Close()

		c := NewOllamaClient(config.LLMConfig{BaseURL: srv.URL, Model: "m"})
		_, err := c.Complete(context.Background(), "p", OptionsFromConfig(config.LLMGenerationConfig{Temperature: 0}))
		require.NoError(t, err)
		require.NotNil(t, raw.Options)
		temp, ok := raw.Options["temperature"]
		require.True(t, ok)
		assert.Equal(t, float64(0), temp)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer srv.Close()

		c := NewOllamaClient(config.LLMConfig{BaseURL: srv.URL, Model: "m"})
		_, err := c.Complete(context.Background(), "p", Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("context deadline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		c := NewOllamaClient(config.LLMConfig{BaseURL: srv.URL, Model: "m"})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := c.Complete(ctx, "p", Options{})
		require.Error(t, err)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestOllamaClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(config.LLMConfig{BaseURL: srv.URL})
	assert.NoError(t, c.Ping(context.Background()))
}

func TestOpenAICompatibleClient_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"광고 ", "승인은 ", "24시간"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient(config.LLMConfig{BaseURL: srv.URL + "/", APIKey: "key", Model: "deepseek-chat"})
	text, err := c.Complete(context.Background(), "질문", Options{MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "광고 승인은 24시간", text)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 100, *got.MaxTokens)
	assert.Nil(t, got.Temperature)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(config.LLMConfig{Provider: "ollama", Model: "qwen2.5:7b"})
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5:7b", c.Model())

	_, err = NewClient(config.LLMConfig{Provider: "bard"})
	assert.Error(t, err)
}

func TestOpenAICompatibleClient_ZeroTemperature(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient(config.LLMConfig{BaseURL: srv.URL, Model: "deepseek-chat"})
	_, err := c.Complete(context.Background(), "p", OptionsFromConfig(config.LLMGenerationConfig{Temperature: 0, MaxTokens: 50}))
	require.NoError(t, err)

	temp, ok := raw["temperature"]
	require.True(t, ok)
	assert.Equal(t, float64(0), temp)
	assert.Equal(t, float64(50), raw["max_tokens"])
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.LLMGenerationConfig{Temperature: 0.3, TopP: 0.9, MaxTokens: 2000})
	require.NotNil(t, opts.Temperature)
	assert.InDelta(t, 0.3, *opts.Temperature, 1e-9)
	assert.Equal(t, 2000, opts.MaxTokens)
}
