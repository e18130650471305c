package httpfga

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akozyrev/ragshield/internal/core/domain"
)

func TestCheckSendsTupleAndDecodesDecision(t *testing.T) {
	var got checkRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/check" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(checkResponse{Allowed: true})
	}))
	defer server.Close()

	client := New(server.URL, "secret", time.Second, nil)
	allowed, err := client.Check(context.Background(), "user:alice", "can_view", "document:doc-1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed decision")
	}
	if got.Subject != "user:alice" || got.Relation != "can_view" || got.Object != "document:doc-1" {
		t.Fatalf("unexpected tuple sent: %+v", got)
	}
}

func TestCheckDeniedDecisionIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(checkResponse{Allowed: false})
	}))
	defer server.Close()

	client := New(server.URL, "", time.Second, nil)
	allowed, err := client.Check(context.Background(), "user:bob", "can_view", "document:doc-1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if allowed {
		t.Fatalf("expected denial")
	}
}

func TestCheckServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "policy store down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "", time.Second, nil)
	_, err := client.Check(context.Background(), "user:alice", "can_view", "document:doc-1")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected wrapped ErrTemporary, got %v", err)
	}
}

func TestCheckClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad tuple", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, "", time.Second, nil)
	_, err := client.Check(context.Background(), "user:alice", "can_view", "document:doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("4xx must not be retried, got temporary error %v", err)
	}
}
