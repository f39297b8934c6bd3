package llm

import (
	"context"
	"sync"

	"mr-relay/internal/domain"
)

// MockClient permite tests sin llamar al proveedor real. Cuenta las llamadas
// por operación para verificar que la validación corta antes del upstream.
type MockClient struct {
	mu sync.Mutex

	ChatBody    []byte
	SessionBody []byte
	Audio       domain.AudioBlob
	STTBody     []byte
	Err         error

	ChatCalls    int
	SessionCalls int
	SpeechCalls  int
	STTCalls     int

	LastChat    ChatCompletionRequest
	LastSession RealtimeSessionRequest
	LastSpeech  SpeechRequest
	LastSTT     TranscriptionRequest
}

func (m *MockClient) ChatCompletion(_ context.Context, req ChatCompletionRequest) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatCalls++
	m.LastChat = req
	return m.ChatBody, m.Err
}

func (m *MockClient) CreateRealtimeSession(_ context.Context, req RealtimeSessionRequest) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SessionCalls++
	m.LastSession = req
	return m.SessionBody, m.Err
}

func (m *MockClient) Speech(_ context.Context, req SpeechRequest) (domain.AudioBlob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SpeechCalls++
	m.LastSpeech = req
	return m.Audio, m.Err
}

func (m *MockClient) Transcribe(_ context.Context, req TranscriptionRequest) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.STTCalls++
	m.LastSTT = req
	return m.STTBody, m.Err
}
