package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/postpilot/pkg/llm"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(&llm.Config{Model: "gpt-4o-mini"}); err == nil {
		t.Error("expected error for missing api key")
	}
	if _, err := New(&llm.Config{APIKey: "sk-test"}); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := New(&llm.Config{APIKey: "sk-test", Model: "gpt-4o-mini"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCompleteAgainstFakeServer(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello from model"}}]}`))
	}))
	defer server.Close()

	client, err := New(&llm.Config{
		BaseURL: server.URL,
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out, err := client.Complete(context.Background(), llm.Request{
		System: "you are a test",
		User:   "say hello",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "hello from model" {
		t.Errorf("output = %q", out)
	}

	msgs, ok := gotBody["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected 2 messages in request, got %v", gotBody["messages"])
	}
}

func TestCompleteIsBoundedByTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Hold the connection open until the client gives up.
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := New(&llm.Config{
		BaseURL: server.URL,
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		Timeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	start := time.Now()
	_, err = client.Complete(context.Background(), llm.Request{User: "hi"})
	if err == nil {
		t.Fatal("expected error from stuck server")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Complete took %v, want prompt return after timeout", elapsed)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client, err := New(&llm.Config{BaseURL: server.URL, APIKey: "sk-test", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := client.Complete(context.Background(), llm.Request{User: "hi"}); err == nil {
		t.Error("expected error for empty choices")
	}
}
