// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

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
)

func TestCompleteSuccess(t *testing.T) {
	var gotAuth string
	var gotReq chatCompletionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  hello there  "}},
			},
			"usage": map[string]int{
				"prompt_tokens":     10,
				"completion_tokens": 4,
				"total_tokens":      14,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL), WithModel("test-model"))
	resp, err := c.Complete(context.Background(), ChatRequest{
		System:      "be terse",
		User:        "say hello",
		Temperature: 0.2,
		MaxTokens:   100,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, 14, resp.Usage.TotalTokens)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "test-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "say hello", gotReq.Messages[1].Content)
}

func TestCompleteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), ChatRequest{User: "hi"})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), ChatRequest{User: "hi"})
	assert.ErrorContains(t, err, "empty choices")
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "model overloaded"},
		})
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), ChatRequest{User: "hi"})
	assert.ErrorContains(t, err, "model overloaded")
}

func TestCompleteRequiresKey(t *testing.T) {
	c := NewClient("   ")
	_, err := c.Complete(context.Background(), ChatRequest{User: "hi"})
	assert.ErrorContains(t, err, "api key required")
}
