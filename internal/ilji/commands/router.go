// Package commands parses and routes slash commands such as /저장.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Prefix starts every command.
const Prefix = "/"

// ErrNotACommand is returned by Parse for text without the prefix.
var ErrNotACommand = errors.New("commands: not a command")

// UnknownCommandError is returned by Route for unregistered names.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("commands: unknown command %q", e.Name)
}

// Command is a parsed command line.
type Command struct {
	Name string
	Args []string
	// Raw is the text after the prefix.
	Raw string
}

// Invocation is where a command was issued.
type Invocation struct {
	RoomID string
	Actor  string
	Label  string
}

// Handler runs a command and returns the reply text.
type Handler func(ctx context.Context, cmd *Command, inv Invocation) (string, error)

// Router maps command names and aliases to handlers.
type Router struct {
	prefix   string
	handlers map[string]Handler
	names    []string
}

// NewRouter returns an empty Router for prefix.
func NewRouter(prefix string) *Router {
	return &Router{prefix: prefix, handlers: make(map[string]Handler)}
}

// Register binds name and its aliases to h. Names are matched
// case-insensitively.
func (r *Router) Register(name string, h Handler, aliases ...string) {
	r.names = append(r.names, name)
	for _, n := range append([]string{name}, aliases...) {
		r.handlers[strings.ToLower(n)] = h
	}
}

// Names lists the registered primary names in registration order.
func (r *Router) Names() []string {
	return append([]string(nil), r.names...)
}

// IsCommand reports whether text would be parsed as a command.
func (r *Router) IsCommand(text string) bool {
	_, err := r.Parse(text)
	return err == nil
}

// Parse splits text into a Command. A bare prefix or a prefix followed by
// whitespace is not a command.
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, r.prefix) {
		return nil, ErrNotACommand
	}
	raw := strings.TrimPrefix(text, r.prefix)
	parts := strings.Fields(raw)
	if len(parts) == 0 || raw != strings.TrimLeft(raw, " \t") {
		return nil, ErrNotACommand
	}
	return &Command{Name: parts[0], Args: parts[1:], Raw: raw}, nil
}

// Route parses text and runs its handler.
func (r *Router) Route(ctx context.Context, text string, inv Invocation) (string, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return "", err
	}
	h, ok := r.handlers[strings.ToLower(cmd.Name)]
	if !ok {
		return "", &UnknownCommandError{Name: cmd.Name}
	}
	return h(ctx, cmd, inv)
}
