// Package completion answers free-form chat messages through a
// text-completion backend. Backends are interchangeable behind [Backend]
// and report failures as [*Error] so callers can branch on [Kind]
// instead of on error text.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Kind int

const (
	KindUnavailable Kind = iota
	KindRateLimited
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unavailable"
	}
}

// Error is returned by every backend for any failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("completion: ")
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the failure kind of err; errors that did not come from a
// backend count as unavailable.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnavailable
}

const (
	BackendEcho   = "echo"
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

type Options struct {
	Backend string
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// New builds the backend named by opts.Backend.
func New(opts Options) (Backend, error) {
	client := &http.Client{Timeout: opts.Timeout}
	switch opts.Backend {
	case "", BackendEcho:
		return Echo{}, nil
	case BackendGemini:
		if opts.APIKey == "" {
			return nil, errors.New("gemini backend requires an api key")
		}
		return NewGemini(client, opts.BaseURL, opts.APIKey, opts.Model), nil
	case BackendOpenAI:
		if opts.APIKey == "" {
			return nil, errors.New("openai backend requires an api key")
		}
		return NewOpenAI(client, opts.BaseURL, opts.APIKey, opts.Model), nil
	default:
		return nil, fmt.Errorf("unknown completion backend %q", opts.Backend)
	}
}

// Echo repeats the message back. It is the default when no model is
// configured.
type Echo struct{}

func (Echo) Complete(_ context.Context, _, user string) (string, error) {
	return "Got it: " + user, nil
}
