// Package llm is the model-inference collaborator.
//
// A Completer turns a system prompt and an ordered list of prior turns into
// one reply. The package ships two implementations, Anthropic (the default)
// and OpenAI (any OpenAI-compatible endpoint), and classifies their failures
// into two sentinels that callers test with errors.Is:
//
//   - ErrTransient: throttling, upstream 5xx, network failure. The request
//     may succeed if repeated later.
//   - ErrContent: the model answered but produced nothing usable, or the
//     request itself was refused.
//
// Completers never retry; retry policy belongs to the caller.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/bdobrica/ilji/internal/ilji/mode"
)

// ErrTransient marks failures worth retrying later.
var ErrTransient = errors.New("llm: transient upstream failure")

// ErrContent marks responses that carry no usable text.
var ErrContent = errors.New("llm: unusable model response")

// DefaultMaxTokens caps each completion when the request leaves it unset.
const DefaultMaxTokens = 1024

// Role is the author of one request message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior turn sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Request is one completion call.
type Request struct {
	Model    string
	System   string
	Messages []Message

	// Temperature is nil to use the provider default.
	Temperature *float64

	// MaxTokens defaults to DefaultMaxTokens.
	MaxTokens int
}

// Temperature returns a pointer to t for Request.Temperature.
func Temperature(t float64) *float64 { return &t }

// Completer is implemented by every model backend. Implementations must be
// safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Tiers maps a mode's tier to a concrete model ID.
type Tiers struct {
	Fast  string
	Smart string
}

// DefaultTiers are the Anthropic model IDs used when none are configured.
var DefaultTiers = Tiers{
	Fast:  "claude-haiku-4-5-20251001",
	Smart: "claude-sonnet-4-6",
}

// Model returns the model ID for tier, falling back to Fast.
func (t Tiers) Model(tier mode.Tier) string {
	if tier == mode.TierSmart && t.Smart != "" {
		return t.Smart
	}
	if t.Fast != "" {
		return t.Fast
	}
	return DefaultTiers.Fast
}

// classify maps an HTTP status code onto the sentinel taxonomy.
func classify(provider string, status int, err error) error {
	switch {
	case status == 429 || status == 408 || status >= 500:
		return fmt.Errorf("%s: %w: status %d: %v", provider, ErrTransient, status, err)
	case status >= 400:
		return fmt.Errorf("%s: %w: status %d: %v", provider, ErrContent, status, err)
	default:
		return fmt.Errorf("%s: %w: %v", provider, ErrTransient, err)
	}
}

func validate(req Request) error {
	if req.Model == "" {
		return fmt.Errorf("llm: model must not be empty")
	}
	if len(req.Messages) == 0 {
		return fmt.Errorf("llm: at least one message is required")
	}
	return nil
}

func maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return DefaultMaxTokens
}
