package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bdobrica/ilji/internal/ilji/mode"
)

// capture records the last JSON request body a test server received.
type capture struct {
	mu   sync.Mutex
	path string
	body map[string]any
}

func (c *capture) record(r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	c.mu.Lock()
	c.path = r.URL.Path
	c.body = m
	c.mu.Unlock()
}

func sampleRequest() Request {
	return Request{
		Model:  "test-model",
		System: "너는 운동 코치야.",
		Messages: []Message{
			{Role: RoleUser, Content: "스쿼트 100kg 5세트"},
			{Role: RoleAssistant, Content: "좋아요!"},
			{Role: RoleUser, Content: "다음은?"},
		},
		Temperature: Temperature(0),
	}
}

func TestAnthropic_Complete(t *testing.T) {
	var got capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.record(r)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"test-model",
			"content":[{"type":"text","text":"데드리프트 "},{"type":"text","text":"추천해요"}],
			"stop_reason":"end_turn","stop_sequence":null,
			"usage":{"input_tokens":10,"output_tokens":5}}`)
	}))
	defer srv.Close()

	a := NewAnthropic(AnthropicConfig{APIKey: "sk-test", BaseURL: srv.URL})
	out, err := a.Complete(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "데드리프트 추천해요" {
		t.Errorf("out = %q", out)
	}

	if got.path != "/v1/messages" {
		t.Errorf("path = %q", got.path)
	}
	if got.body["model"] != "test-model" {
		t.Errorf("model = %v", got.body["model"])
	}
	if temp, ok := got.body["temperature"]; !ok || temp.(float64) != 0 {
		t.Errorf("temperature = %v (present=%v), want 0", temp, ok)
	}
	if mt := got.body["max_tokens"].(float64); mt != DefaultMaxTokens {
		t.Errorf("max_tokens = %v", mt)
	}
	msgs := got.body["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("messages len = %d, want 3", len(msgs))
	}
	if role := msgs[1].(map[string]any)["role"]; role != "assistant" {
		t.Errorf("messages[1].role = %v", role)
	}
}

func TestAnthropic_Errors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", 429, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`, ErrTransient},
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`, ErrTransient},
		{"bad request", 400, `{"type":"error","error":{"type":"invalid_request_error","message":"nope"}}`, ErrContent},
		{"empty content", 200, `{"id":"m","type":"message","role":"assistant","model":"x","content":[],
			"stop_reason":"max_tokens","stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":0}}`, ErrContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			a := NewAnthropic(AnthropicConfig{APIKey: "sk-test", BaseURL: srv.URL})
			_, err := a.Complete(context.Background(), sampleRequest())
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestOpenAI_Complete(t *testing.T) {
	var got capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.record(r)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  你好 (nǐ hǎo)  "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	out, err := o.Complete(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "你好 (nǐ hǎo)" {
		t.Errorf("out = %q", out)
	}
	if got.path != "/v1/chat/completions" {
		t.Errorf("path = %q", got.path)
	}

	msgs := got.body["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("messages len = %d, want system + 3", len(msgs))
	}
	if role := msgs[0].(map[string]any)["role"]; role != "system" {
		t.Errorf("messages[0].role = %v", role)
	}
	if _, ok := got.body["temperature"]; !ok {
		t.Error("zero temperature was dropped from the request")
	}
}

func TestOpenAI_Errors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", 503, `{"error":{"message":"down","type":"server_error"}}`, ErrTransient},
		{"unauthorized", 401, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, ErrContent},
		{"no choices", 200, `{"id":"c","object":"chat.completion","choices":[]}`, ErrContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
			_, err := o.Complete(context.Background(), sampleRequest())
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	a := NewAnthropic(AnthropicConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	if _, err := a.Complete(context.Background(), Request{Model: "m"}); err == nil {
		t.Error("expected error for empty messages")
	}
	if _, err := a.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}}); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestTiers_Model(t *testing.T) {
	tiers := Tiers{Fast: "fast-1", Smart: "smart-1"}
	if got := tiers.Model(mode.TierSmart); got != "smart-1" {
		t.Errorf("smart = %q", got)
	}
	if got := tiers.Model(mode.TierFast); got != "fast-1" {
		t.Errorf("fast = %q", got)
	}
	if got := (Tiers{Fast: "f"}).Model(mode.TierSmart); got != "f" {
		t.Errorf("smart fallback = %q", got)
	}
	if got := (Tiers{}).Model(mode.TierFast); got != DefaultTiers.Fast {
		t.Errorf("zero tiers = %q", got)
	}
}
