package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-chat/internal/models"
)

func TestOpenAIProviderGenerate(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"  Woof!  "}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "key", srv.URL, "gpt-4o-mini")
	text, err := p.Generate(context.Background(), Request{
		Persona: models.Persona{Name: "Rex", Kind: "dog"},
		Kind:    KindChatReply,
		History: []models.Message{{Sender: models.SenderUser, Content: "hi"}, {Sender: models.SenderAgent, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Woof!", text)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "Rex")
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, got.Messages[2].Role)
}

func TestOpenAIProviderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "key", srv.URL, "m")
	_, err := p.Generate(context.Background(), Request{Kind: KindChatReply})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAIProviderNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "key", srv.URL, "m")
	_, err := p.Generate(context.Background(), Request{Kind: KindInactivityNudge})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAIProviderHealthyRequiresKey(t *testing.T) {
	assert.False(t, NewOpenAIProvider("openai", "", "", "m").Healthy())
	assert.True(t, NewOpenAIProvider("openai", "k", "", "m").Healthy())
}

func TestClassify(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	assert.ErrorIs(t, classify(ctx, errors.New("boom")), ErrTimeout)
	assert.ErrorIs(t, classify(context.Background(), errors.New("boom")), ErrUnavailable)
	assert.NoError(t, classify(context.Background(), nil))
}

func TestNudgePromptAsksForInvitation(t *testing.T) {
	msgs := chatMessages(Request{Persona: models.Persona{Name: "Mochi", Traits: "aloof"}, Kind: KindInactivityNudge})
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "Personality: aloof.")
	assert.Contains(t, msgs[0].Content, "inviting them back")
	assert.Equal(t, openai.ChatMessageRoleUser, msgs[1].Role)
}
