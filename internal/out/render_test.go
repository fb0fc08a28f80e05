package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/defi-chat/internal/config"
	"github.com/ggonzalez94/defi-chat/internal/model"
)

type reply struct {
	Content string `json:"content"`
}

func (r reply) Text() string { return r.Content }

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    map[string]any{"content": "hi", "metadata": map[string]any{"intent": "Help", "chain_id": 1}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"content", "metadata.intent"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if out["content"] != "hi" || out["metadata.intent"] != "Help" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out["metadata"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderPlainKeyValues(t *testing.T) {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    []map[string]any{{"symbol": "USDC", "chain_id": 534352}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "symbol=USDC") {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}

func TestRenderPlainUsesText(t *testing.T) {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  false,
		Data:     reply{Content: "I couldn't find token $MOON on Base."},
		Error:    &model.ErrorBody{Code: 21, Type: "resolution_miss", Message: "I couldn't find token $MOON on Base."},
		Warnings: []string{"cache disabled"},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()
	if !strings.HasPrefix(got, "error: I couldn't find token $MOON on Base. (resolution_miss)\n") {
		t.Fatalf("missing error line: %q", got)
	}
	if !strings.Contains(got, "\nI couldn't find token $MOON on Base.\n") || !strings.Contains(got, "warning: cache disabled") {
		t.Fatalf("unexpected plain output: %q", got)
	}
}
