// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reasoningtest provides an in-memory reasoning.Service for tests.
package reasoningtest

import (
	"context"
	"sync"

	"github.com/pdiddy/arxiv-digest/internal/reasoning"
)

// HandlerFunc answers one exchange.
type HandlerFunc func(ctx context.Context, messages []reasoning.Message) (string, error)

// Fake records every exchange and answers it with Handler. It is safe for
// concurrent use.
type Fake struct {
	Handler HandlerFunc

	mu    sync.Mutex
	calls [][]reasoning.Message
}

// New returns a Fake answering with h.
func New(h HandlerFunc) *Fake {
	return &Fake{Handler: h}
}

// Replies returns a Fake that answers calls with replies in order and then
// repeats the last one.
func Replies(replies ...string) *Fake {
	f := &Fake{}
	f.Handler = func(context.Context, []reasoning.Message) (string, error) {
		n := f.Calls() - 1
		if n >= len(replies) {
			n = len(replies) - 1
		}
		if n < 0 {
			return "", nil
		}
		return replies[n], nil
	}
	return f
}

// Complete implements reasoning.Service.
func (f *Fake) Complete(ctx context.Context, messages []reasoning.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]reasoning.Message(nil), messages...))
	f.mu.Unlock()

	if f.Handler == nil {
		return "", nil
	}
	return f.Handler(ctx, messages)
}

// Calls returns the number of exchanges received.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Call returns the messages of the i-th exchange.
func (f *Fake) Call(i int) []reasoning.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// LastUser returns the content of the last user message of the i-th
// exchange.
func (f *Fake) LastUser(i int) string {
	msgs := f.Call(i)
	for j := len(msgs) - 1; j >= 0; j-- {
		if msgs[j].Role == reasoning.RoleUser {
			return msgs[j].Content
		}
	}
	return ""
}
