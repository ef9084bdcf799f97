package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"companion-chat/internal/logging"
	"companion-chat/internal/models"
	"companion-chat/internal/observability"
	"companion-chat/internal/registry"
)

// Result is generated text plus whether it came from the fallback catalog.
type Result struct {
	Text     string
	Provider string
	Degraded bool
}

// Responder calls the first healthy provider under a bounded timeout and
// degrades to the fallback catalog on any failure. It never returns an error.
type Responder struct {
	providers *registry.Registry[Provider]
	catalog   *Catalog
	timeout   time.Duration
	logger    *zap.Logger
}

// NewResponder wires a responder.
func NewResponder(providers *registry.Registry[Provider], catalog *Catalog, timeout time.Duration, logger *zap.Logger) *Responder {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Responder{providers: providers, catalog: catalog, timeout: timeout, logger: logging.OrNop(logger)}
}

// Reply produces the persona's answer to the conversation.
func (r *Responder) Reply(ctx context.Context, persona models.Persona, history []models.Message) Result {
	return r.generate(ctx, Request{Persona: persona, Kind: KindChatReply, History: history})
}

// Nudge produces a message inviting an idle user back.
func (r *Responder) Nudge(ctx context.Context, persona models.Persona, history []models.Message) Result {
	return r.generate(ctx, Request{Persona: persona, Kind: KindInactivityNudge, History: history})
}

func (r *Responder) generate(ctx context.Context, req Request) Result {
	text, provider, err := r.call(ctx, req)
	if err == nil {
		return Result{Text: text, Provider: provider}
	}

	reason := "unavailable"
	switch {
	case errors.Is(err, ErrTimeout):
		reason = "timeout"
	case errors.Is(err, ErrNoHealthyProvider):
		reason = "no_provider"
	}
	observability.IncAIFallback(string(req.Kind), reason)
	r.logger.Warn("ai provider degraded, using fallback",
		zap.String("kind", string(req.Kind)),
		zap.String("provider", provider),
		zap.Int("persona_id", req.Persona.ID),
		zap.String("reason", reason),
		zap.Error(err))
	return Result{Text: r.catalog.Pick(req.Kind, req.Persona), Degraded: true}
}

func (r *Responder) call(ctx context.Context, req Request) (string, string, error) {
	if r.providers == nil {
		return "", "", ErrNoHealthyProvider
	}
	provider, ok := r.providers.Select()
	if !ok {
		return "", "", ErrNoHealthyProvider
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := provider.Generate(callCtx, req)
		done <- outcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return "", provider.Name(), classify(callCtx, out.err)
		}
		text := strings.TrimSpace(out.text)
		if text == "" {
			return "", provider.Name(), ErrUnavailable
		}
		return text, provider.Name(), nil
	case <-callCtx.Done():
		return "", provider.Name(), errors.Join(ErrTimeout, callCtx.Err())
	}
}
