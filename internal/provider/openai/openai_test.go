package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adpulse/adpulse/internal/domain"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("expected default model, got %q", req.Model)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("expected json_object response format")
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "gpt-4o-mini-2024-07-18",
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"role":    "assistant",
					"content": `{"variants":[{"headline":"Go far","body":"Shoes for the long run.","cta":"Shop now"}]}`,
				}},
			},
		})
	}))
	defer srv.Close()

	p := New("sk-test", srv.URL)
	variants, model, err := p.Generate(context.Background(), domain.CreativeRequest{
		Product:  "running shoes",
		Audience: "marathon runners",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(variants) != 1 || variants[0].CTA != "Shop now" {
		t.Errorf("unexpected variants: %+v", variants)
	}
	if model != "gpt-4o-mini-2024-07-18" {
		t.Errorf("expected the upstream-reported model, got %q", model)
	}
}

func TestGenerate_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New("sk-test", srv.URL)
	_, _, err := p.Generate(context.Background(), domain.CreativeRequest{Product: "x", Audience: "y"})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	p := New("sk-test", srv.URL)
	_, _, err := p.Generate(context.Background(), domain.CreativeRequest{Product: "x", Audience: "y"})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New("sk-test", srv.URL)
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}
}
