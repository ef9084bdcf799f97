package ai

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"companion-chat/internal/models"
)

func systemPrompt(persona models.Persona, kind PromptKind) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s", persona.Name)
	if persona.Kind != "" {
		fmt.Fprintf(&sb, ", a %s", persona.Kind)
	}
	sb.WriteString(", chatting with your owner as their companion.")
	if persona.Traits != "" {
		fmt.Fprintf(&sb, " Personality: %s.", persona.Traits)
	}
	sb.WriteString(" Stay in character, keep replies short and warm, and never mention being an AI.")

	if kind == KindInactivityNudge {
		sb.WriteString("\n\nYour owner has not talked to you for a while. Write one short message (under 120 characters) ")
		sb.WriteString("inviting them back into the conversation, referring to what you talked about last if possible.")
	}
	return sb.String()
}

func chatMessages(req Request) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req.Persona, req.Kind)})
	for _, m := range req.History {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: roleFor(m.Sender), Content: m.Content})
	}
	if req.Kind == KindInactivityNudge {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "(no reply for a while)"})
	}
	return msgs
}

func roleFor(sender models.Sender) string {
	switch sender {
	case models.SenderAgent:
		return openai.ChatMessageRoleAssistant
	case models.SenderSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
