package llm

import (
	"context"
	"encoding/json"

	"mr-relay/internal/domain"
)

// Provider define las operaciones del proveedor que el relay reenvía.
// Los métodos que devuelven []byte entregan el JSON crudo del proveedor.
type Provider interface {
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) ([]byte, error)
	CreateRealtimeSession(ctx context.Context, req RealtimeSessionRequest) ([]byte, error)
	Speech(ctx context.Context, req SpeechRequest) (domain.AudioBlob, error)
	Transcribe(ctx context.Context, req TranscriptionRequest) ([]byte, error)
}

type ChatCompletionRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
}

type RealtimeSessionRequest struct {
	Model        string `json:"model"`
	Voice        string `json:"voice,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// SpeechRequest pide el formato tanto con response_format como con format,
// porque distintos proveedores compatibles leen uno u otro.
type SpeechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
	Format         string `json:"format"`
}

type TranscriptionRequest struct {
	Model  string
	Upload domain.STTUpload
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractChatText devuelve choices[0].message.content o "" si falta cualquier parte del camino.
func ExtractChatText(raw []byte) string {
	var cr chatCompletionResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return ""
	}
	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == nil {
		return ""
	}
	return *cr.Choices[0].Message.Content
}
