// Package ai wraps the external text-generation providers used for chat
// replies and inactivity nudges.
package ai

import (
	"context"
	"errors"

	"companion-chat/internal/models"
)

// PromptKind selects which prompt a provider renders.
type PromptKind string

const (
	KindChatReply       PromptKind = "chat_reply"
	KindInactivityNudge PromptKind = "inactivity_nudge"
)

var (
	ErrTimeout           = errors.New("ai provider timed out")
	ErrUnavailable       = errors.New("ai provider unavailable")
	ErrNoHealthyProvider = errors.New("no healthy ai provider")
)

// Request is everything a provider needs to produce text.
type Request struct {
	Persona models.Persona
	Kind    PromptKind
	History []models.Message
}

// Provider generates text for a persona. Implementations must honor ctx
// cancellation; the caller owns the timeout.
type Provider interface {
	Name() string
	Healthy() bool
	Generate(ctx context.Context, req Request) (string, error)
}

// classify maps context and transport errors onto the provider taxonomy.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return errors.Join(ErrUnavailable, err)
}
