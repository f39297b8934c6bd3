package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mr-relay/internal/domain"
	"mr-relay/internal/llm"
)

var errInvalidUpstreamJSON = errors.New("upstream returned invalid json")

// RelayOptions agrupa los defaults de modelos y límites que aplica el relay.
type RelayOptions struct {
	ChatModel            string
	ChatTemperature      float64
	RealtimeModel        string
	RealtimeVoice        string
	RealtimeInstructions string
	TTSModel             string
	TTSVoice             string
	STTModel             string
	MaxAudioBytes        int64
}

// RelayService valida requests, completa defaults y delega en el proveedor.
// No guarda estado entre requests.
type RelayService struct {
	provider llm.Provider
	logger   *zap.Logger
	opts     RelayOptions
}

func NewRelayService(provider llm.Provider, logger *zap.Logger, opts RelayOptions) *RelayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ChatModel == "" {
		opts.ChatModel = "gpt-4o-mini"
	}
	if opts.ChatTemperature == 0 {
		opts.ChatTemperature = 0.6
	}
	if opts.RealtimeModel == "" {
		opts.RealtimeModel = "gpt-4o-realtime-preview"
	}
	if opts.TTSModel == "" {
		opts.TTSModel = "gpt-4o-mini-tts"
	}
	if opts.TTSVoice == "" {
		opts.TTSVoice = "verse"
	}
	if opts.STTModel == "" {
		opts.STTModel = "gpt-4o-transcribe"
	}
	if opts.MaxAudioBytes <= 0 {
		opts.MaxAudioBytes = 20 << 20
	}
	return &RelayService{provider: provider, logger: logger, opts: opts}
}

// MaxAudioBytes expone el techo de tamaño para archivos de /stt.
func (s *RelayService) MaxAudioBytes() int64 {
	return s.opts.MaxAudioBytes
}

// Chat reenvía la conversación y extrae el texto de la primera respuesta.
func (s *RelayService) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return domain.ChatResponse{}, err
	}
	model := req.Model
	if model == "" {
		model = s.opts.ChatModel
	}

	raw, err := s.provider.ChatCompletion(ctx, llm.ChatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: s.opts.ChatTemperature,
	})
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("chat completion: %w", err)
	}
	if !json.Valid(raw) {
		return domain.ChatResponse{}, fmt.Errorf("chat completion: %w", errInvalidUpstreamJSON)
	}

	return domain.ChatResponse{
		Text: llm.ExtractChatText(raw),
		Raw:  json.RawMessage(raw),
	}, nil
}

// Session pide una credencial efímera nueva; nunca se cachea.
func (s *RelayService) Session(ctx context.Context) (json.RawMessage, error) {
	raw, err := s.provider.CreateRealtimeSession(ctx, llm.RealtimeSessionRequest{
		Model:        s.opts.RealtimeModel,
		Voice:        s.opts.RealtimeVoice,
		Instructions: s.opts.RealtimeInstructions,
	})
	if err != nil {
		return nil, fmt.Errorf("realtime session: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("realtime session: %w", errInvalidUpstreamJSON)
	}
	return json.RawMessage(raw), nil
}

// Speech sintetiza texto a MP3. Los errores del proveedor se devuelven
// intactos para que el handler pueda reenviar status y body.
func (s *RelayService) Speech(ctx context.Context, req domain.TTSRequest) (domain.AudioBlob, error) {
	if err := req.Validate(); err != nil {
		return domain.AudioBlob{}, err
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = s.opts.TTSVoice
	}
	blob, err := s.provider.Speech(ctx, llm.SpeechRequest{
		Model:          s.opts.TTSModel,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: domain.TTSFormat,
		Format:         domain.TTSFormat,
	})
	if err != nil {
		return domain.AudioBlob{}, fmt.Errorf("speech: %w", err)
	}
	return blob, nil
}

// Transcribe reenvía el audio y devuelve el JSON del proveedor sin modificar.
func (s *RelayService) Transcribe(ctx context.Context, upload domain.STTUpload) (json.RawMessage, error) {
	if len(upload.Data) == 0 {
		return nil, domain.NewValidationError("audio file required (field name: audio, file or audio_file)")
	}
	if int64(len(upload.Data)) > s.opts.MaxAudioBytes {
		return nil, domain.NewValidationError(fmt.Sprintf("audio file exceeds %d bytes", s.opts.MaxAudioBytes))
	}
	raw, err := s.provider.Transcribe(ctx, llm.TranscriptionRequest{
		Model:  s.opts.STTModel,
		Upload: upload,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("transcription: %w", errInvalidUpstreamJSON)
	}
	return json.RawMessage(raw), nil
}
