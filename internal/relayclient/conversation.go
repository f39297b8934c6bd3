package relayclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mr-relay/internal/audio"
	"mr-relay/internal/domain"
)

// DefaultSystemPrompt es el prompt de sistema del asistente del visor.
const DefaultSystemPrompt = "You are an MR assistant."

// Reply es el resultado de un turno: texto y, si se pidió, el audio decodificado.
// Una falla de síntesis no invalida el texto y queda en AudioErr.
type Reply struct {
	Text     string
	Audio    *audio.Decoded
	AudioErr error
}

// Conversation envía turnos de un solo mensaje (system + user), igual que el
// cliente del visor, protegidos por un SendGuard.
type Conversation struct {
	client *Client
	guard  *SendGuard
	system string
	voice  string
	speak  bool
}

type ConversationOptions struct {
	SystemPrompt string
	Voice        string
	Speak        bool
	Guard        *SendGuard
}

func NewConversation(client *Client, opts ConversationOptions) *Conversation {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Guard == nil {
		opts.Guard = NewSendGuard(DefaultDuplicateWindow)
	}
	return &Conversation{
		client: client,
		guard:  opts.Guard,
		system: opts.SystemPrompt,
		voice:  opts.Voice,
		speak:  opts.Speak,
	}
}

// Send valida el texto con el guard, llama a /chat y opcionalmente a /tts.
func (c *Conversation) Send(ctx context.Context, text string) (Reply, error) {
	msg, release, err := c.guard.Acquire(text)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	resp, err := c.client.Chat(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: c.system},
		{Role: domain.RoleUser, Content: msg},
	})
	if err != nil {
		return Reply{}, fmt.Errorf("chat: %w", err)
	}
	reply := Reply{Text: resp.Text}
	if !c.speak || resp.Text == "" {
		return reply, nil
	}

	decoded, err := c.client.Speak(ctx, resp.Text, c.voice)
	if err != nil {
		c.client.logger.Warn("tts failed", zap.Error(err))
		reply.AudioErr = err
		return reply, nil
	}
	reply.Audio = decoded
	return reply, nil
}
