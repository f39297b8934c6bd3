// Package relayclient consume el relay desde Go: chat, sesiones realtime,
// síntesis y transcripción. Es el equivalente del cliente del visor.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"mr-relay/internal/audio"
	"mr-relay/internal/domain"
)

const maxResponseBytes = 64 << 20

var (
	ErrNoEphemeralKey  = errors.New("relayclient: session response has no client_secret.value")
	ErrEmptyTranscript = errors.New("relayclient: transcription returned empty text")
	ErrEmptyAudio      = errors.New("relayclient: tts returned empty audio")
)

// StatusError es una respuesta no exitosa del relay.
type StatusError struct {
	Method      string
	Path        string
	Status      int
	Body        []byte
	ContentType string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay %s %s: %d %s", e.Method, e.Path, e.Status, strings.TrimSpace(string(e.Body)))
}

// Client habla con un relay desplegado.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
	decoder *audio.Decoder
	maxBody int64
}

type Option func(*Client)

// WithToken agrega Authorization: Bearer a cada request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDecoder reemplaza el decodificador usado por Speak.
func WithDecoder(d *audio.Decoder) Option {
	return func(c *Client) {
		if d != nil {
			c.decoder = d
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 90 * time.Second},
		logger:  zap.NewNop(),
		decoder: audio.NewDecoder(),
		maxBody: maxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health consulta GET /health.
func (c *Client) Health(ctx context.Context) error {
	_, _, err := c.do(ctx, http.MethodGet, "/health", nil, "")
	return err
}

// Chat envía la conversación completa y devuelve el texto normalizado.
func (c *Client) Chat(ctx context.Context, messages []domain.ChatMessage) (domain.ChatResponse, error) {
	payload, err := json.Marshal(domain.ChatRequest{Messages: messages})
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("marshal chat: %w", err)
	}
	body, _, err := c.do(ctx, http.MethodPost, "/chat", bytes.NewReader(payload), "application/json")
	if err != nil {
		return domain.ChatResponse{}, err
	}
	var resp domain.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ChatResponse{}, fmt.Errorf("decode chat response: %w", err)
	}
	return resp, nil
}

// Session pide una sesión realtime y devuelve el payload crudo junto con la
// vista tipada.
func (c *Client) Session(ctx context.Context) (domain.SessionPayload, json.RawMessage, error) {
	body, _, err := c.do(ctx, http.MethodGet, "/session", nil, "")
	if err != nil {
		return domain.SessionPayload{}, nil, err
	}
	var payload domain.SessionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.SessionPayload{}, nil, fmt.Errorf("decode session: %w", err)
	}
	return payload, json.RawMessage(body), nil
}

// EphemeralKey devuelve client_secret.value de una sesión nueva.
func (c *Client) EphemeralKey(ctx context.Context) (string, error) {
	payload, _, err := c.Session(ctx)
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(payload.ClientSecret.Value)
	if key == "" {
		return "", ErrNoEphemeralKey
	}
	return key, nil
}

// Speech devuelve el audio de /tts sin decodificar.
func (c *Client) Speech(ctx context.Context, text, voice string) (domain.AudioBlob, error) {
	payload, err := json.Marshal(domain.TTSRequest{Text: text, Voice: voice})
	if err != nil {
		return domain.AudioBlob{}, fmt.Errorf("marshal tts: %w", err)
	}
	body, ctype, err := c.do(ctx, http.MethodPost, "/tts", bytes.NewReader(payload), "application/json")
	if err != nil {
		return domain.AudioBlob{}, err
	}
	if len(body) < 8 {
		return domain.AudioBlob{}, ErrEmptyAudio
	}
	return domain.AudioBlob{Data: body, ContentType: ctype}, nil
}

// Speak sintetiza y decodifica, clasificando el audio por sus bytes.
func (c *Client) Speak(ctx context.Context, text, voice string) (*audio.Decoded, error) {
	blob, err := c.Speech(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	decoded, err := c.decoder.Decode(blob)
	if err != nil {
		return nil, err
	}
	if decoded.Probed {
		c.logger.Info("tts audio format probed",
			zap.String("content_type", blob.ContentType),
			zap.String("format", decoded.Format.String()),
		)
	}
	return decoded, nil
}

// Transcribe sube audio a /stt en el campo "audio" y devuelve el texto.
func (c *Client) Transcribe(ctx context.Context, upload domain.STTUpload) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := upload.Filename
	if filename == "" {
		filename = "speech.wav"
	}
	ctype := upload.ContentType
	if ctype == "" {
		ctype = "audio/wav"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, domain.STTFieldNames[0], strings.ReplaceAll(filename, `"`, "")))
	h.Set("Content-Type", ctype)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return "", fmt.Errorf("write audio part: %w", err)
	}
	fields := [][2]string{{"language", upload.Language}, {"prompt", upload.Prompt}}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	body, _, err := c.do(ctx, http.MethodPost, "/stt", &buf, mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	return transcriptText(body)
}

// TranscribePCM codifica las muestras como WAV de 16 bits y las transcribe.
func (c *Client) TranscribePCM(ctx context.Context, pcm *audio.PCM) (string, error) {
	if pcm == nil || len(pcm.Samples) == 0 {
		return "", fmt.Errorf("relayclient: no samples to transcribe")
	}
	return c.Transcribe(ctx, domain.STTUpload{
		Filename:    "speech.wav",
		ContentType: "audio/wav",
		Data:        audio.EncodeWAV(pcm.Samples, pcm.Channels, pcm.SampleRate),
	})
}

// transcriptText lee "text" del JSON de transcripción; si la respuesta no es
// JSON se usa el body como texto plano.
func transcriptText(body []byte) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	text := string(body)
	if err := json.Unmarshal(body, &resp); err == nil {
		text = resp.Text
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("relay %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, "", fmt.Errorf("relay %s %s: read body: %w", method, path, err)
	}
	if int64(len(respBody)) > c.maxBody {
		return nil, "", fmt.Errorf("relay %s %s: %w (%d bytes)", method, path, domain.ErrResponseTooLarge, c.maxBody)
	}
	ctype := resp.Header.Get("Content-Type")
	c.logger.Debug("relay call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &StatusError{
			Method:      method,
			Path:        path,
			Status:      resp.StatusCode,
			Body:        respBody,
			ContentType: ctype,
		}
	}
	return respBody, ctype, nil
}
