package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Roles aceptados en una conversación.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Model    string        `json:"model,omitempty"`
}

// ChatResponse es la forma normalizada que recibe el cliente de /chat.
type ChatResponse struct {
	Text string          `json:"text"`
	Raw  json.RawMessage `json:"raw"`
}

// Validate verifica que la conversación no esté vacía y que cada turno tenga role y content.
func (r ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return NewValidationError("messages[] required")
	}
	for i, m := range r.Messages {
		role := strings.TrimSpace(m.Role)
		if role == "" || strings.TrimSpace(m.Content) == "" {
			return NewValidationError(fmt.Sprintf("messages[%d] requires role and content", i))
		}
		switch role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return NewValidationError(fmt.Sprintf("messages[%d] has unsupported role %q", i, m.Role))
		}
	}
	return nil
}

// ParseChatRequest decodifica un body crudo de /chat. Un campo messages ausente
// o que no sea un array se reporta como ValidationError.
func ParseChatRequest(body []byte) (ChatRequest, error) {
	var envelope struct {
		Messages json.RawMessage `json:"messages"`
		Model    string          `json:"model"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ChatRequest{}, NewValidationError("invalid json body")
	}
	raw := strings.TrimSpace(string(envelope.Messages))
	if raw == "" || raw == "null" || !strings.HasPrefix(raw, "[") {
		return ChatRequest{}, NewValidationError("messages[] required")
	}
	var msgs []ChatMessage
	if err := json.Unmarshal(envelope.Messages, &msgs); err != nil {
		return ChatRequest{}, NewValidationError("messages[] must contain {role, content} objects")
	}
	req := ChatRequest{Messages: msgs, Model: strings.TrimSpace(envelope.Model)}
	if err := req.Validate(); err != nil {
		return ChatRequest{}, err
	}
	return req, nil
}
