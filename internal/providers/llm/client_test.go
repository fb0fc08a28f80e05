package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/httpx"
)

func TestExtractSendsMessagesRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" || r.Header.Get("anthropic-version") == "" {
			t.Fatalf("missing auth headers")
		}
		var body messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Model != DefaultModel || len(body.Messages) != 1 || body.Messages[0].Content != "what is pepe trading at" {
			t.Fatalf("unexpected body: %+v", body)
		}
		_, _ = w.Write([]byte("{\"content\":[{\"type\":\"text\",\"text\":\"```json\\n{\\\"tokens\\\":[\\\"pepe\\\"],\\\"currency\\\":\\\"USD\\\"}\\n```\"}]}"))
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), "secret", "").WithBaseURL(srv.URL)
	got, err := c.Extract(context.Background(), "what is pepe trading at")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got.Tokens) != 1 || got.Tokens[0] != "PEPE" || got.Currency != "usd" {
		t.Fatalf("unexpected extraction: %+v", got)
	}
}

func TestExtractRequiresAPIKey(t *testing.T) {
	c := New(httpx.New(time.Second, 0), "", "")
	_, err := c.Extract(context.Background(), "hello")
	if clierr.CodeOf(err) != clierr.CodeAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestParseExtractionVariants(t *testing.T) {
	got, err := parseExtraction(`Sure! {"tokens":["$wif"," eth ",""]} hope that helps`)
	if err != nil {
		t.Fatalf("parseExtraction failed: %v", err)
	}
	if len(got.Tokens) != 2 || got.Tokens[0] != "$wif" || got.Tokens[1] != "ETH" || got.Currency != "usd" {
		t.Fatalf("unexpected extraction: %+v", got)
	}
	if _, err := parseExtraction("no json here"); err == nil {
		t.Fatal("expected decode error")
	}
}
