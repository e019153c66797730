package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Capitals", req.Title)
		assert.Equal(t, 2, req.QuestionCount)

		resp := GeneratedTest{
			Questions: []GeneratedQuestion{
				{
					Title: "Capital of France?",
					Answers: []GeneratedAnswer{
						{Title: "Paris", IsCorrect: true},
						{Title: "Lyon", IsCorrect: false},
					},
				},
				{
					Title: "Capital of Spain?",
					Answers: []GeneratedAnswer{
						{Title: "Madrid", IsCorrect: true},
						{Title: "Barcelona", IsCorrect: false},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5000)
	generated, err := client.Generate(context.Background(), Request{
		Title:         "Capitals",
		Theme:         "geography",
		QuestionCount: 2,
		Language:      "en",
	})

	require.NoError(t, err)
	require.Len(t, generated.Questions, 2)
	assert.Equal(t, "Capital of France?", generated.Questions[0].Title)
	assert.True(t, generated.Questions[0].Answers[0].IsCorrect)
}

func TestGenerate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5000)
	_, err := client.Generate(context.Background(), Request{Theme: "geography", QuestionCount: 1})

	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerate_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5000)
	_, err := client.Generate(context.Background(), Request{Theme: "geography", QuestionCount: 1})

	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerate_EmptyQuestions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"questions":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5000)
	_, err := client.Generate(context.Background(), Request{Theme: "geography", QuestionCount: 1})

	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerate_DeadlineExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL, 5000)
	_, err := client.Generate(ctx, Request{Theme: "geography", QuestionCount: 1})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
