// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reasoning is the provider-neutral client for the chat-completion
// service that classifies affiliations and answers filter questions. Calls
// are made at zero temperature and are never retried automatically: a failed
// call marks its record for the next resumed run.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/arxiv-digest/internal/observability"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

// Role tags a message in an exchange.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of an exchange.
type Message struct {
	Role    Role
	Content string
}

// System returns a system-role message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user-role message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant-role message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Service completes a role-tagged exchange and returns the reply text.
type Service interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var (
	ErrMissingAPIKey   = errors.New("reasoning service API key is not set")
	ErrUnknownProvider = errors.New("unknown reasoning provider")
	ErrEmptyResponse   = errors.New("reasoning service returned no text")
)

// APIError is a non-success response from the provider.
type APIError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API returned %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s API: %v", e.Provider, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsTransient reports whether retrying later could succeed.
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// New builds the Service selected by cfg.Provider.
func New(cfg types.AIConfig) (Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Instrument counts every call made through svc under operation.
func Instrument(svc Service, m *observability.Metrics, operation string) Service {
	if m == nil {
		return svc
	}
	return &instrumented{svc: svc, metrics: m, operation: operation}
}

type instrumented struct {
	svc       Service
	metrics   *observability.Metrics
	operation string
}

func (i *instrumented) Complete(ctx context.Context, messages []Message) (string, error) {
	out, err := i.svc.Complete(ctx, messages)
	i.metrics.RecordReasoningCall(i.operation, err)
	return out, err
}
