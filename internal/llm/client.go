package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"mr-relay/internal/domain"
)

const (
	pathChatCompletions = "/chat/completions"
	pathRealtimeSession = "/realtime/sessions"
	pathAudioSpeech     = "/audio/speech"
	pathTranscriptions  = "/audio/transcriptions"

	maxUpstreamBody = 64 << 20
)

// HTTPClient implementa Provider contra una API compatible con OpenAI.
// No reintenta.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
	maxBody int64
}

// NewHTTPClient construye el cliente con timeout acotado y transporte instrumentado.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:  logger,
		maxBody: maxUpstreamBody,
	}
}

func (c *HTTPClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) ([]byte, error) {
	body, _, err := c.postJSON(ctx, pathChatCompletions, req, nil)
	return body, err
}

func (c *HTTPClient) CreateRealtimeSession(ctx context.Context, req RealtimeSessionRequest) ([]byte, error) {
	body, _, err := c.postJSON(ctx, pathRealtimeSession, req, nil)
	return body, err
}

func (c *HTTPClient) Speech(ctx context.Context, req SpeechRequest) (domain.AudioBlob, error) {
	body, ctype, err := c.postJSON(ctx, pathAudioSpeech, req, map[string]string{
		"Accept": domain.TTSContentType,
	})
	if err != nil {
		return domain.AudioBlob{}, err
	}
	return domain.AudioBlob{Data: body, ContentType: ctype}, nil
}

func (c *HTTPClient) Transcribe(ctx context.Context, req TranscriptionRequest) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("model", req.Model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if req.Upload.Language != "" {
		if err := mw.WriteField("language", req.Upload.Language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}
	if req.Upload.Prompt != "" {
		if err := mw.WriteField("prompt", req.Upload.Prompt); err != nil {
			return nil, fmt.Errorf("write prompt field: %w", err)
		}
	}

	filename := req.Upload.Filename
	if filename == "" {
		filename = "audio.wav"
	}
	ctype := req.Upload.ContentType
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", ctype)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(req.Upload.Data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	body, _, err := c.do(ctx, pathTranscriptions, &buf, mw.FormDataContentType(), nil)
	return body, err
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload any, headers map[string]string) ([]byte, string, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, path, bytes.NewReader(bodyBytes), "application/json", headers)
}

func (c *HTTPClient) do(ctx context.Context, path string, body io.Reader, contentType string, headers map[string]string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("upstream transport error", zap.String("path", path), zap.Error(err))
		return nil, "", &domain.TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, "", &domain.TransportError{Path: path, Err: fmt.Errorf("read response: %w", err)}
	}
	if int64(len(respBody)) > c.maxBody {
		c.logger.Warn("upstream response too large", zap.String("path", path), zap.Int64("limit", c.maxBody))
		return nil, "", &domain.TransportError{Path: path, Err: fmt.Errorf("%w (%d bytes)", domain.ErrResponseTooLarge, c.maxBody)}
	}
	ctype := resp.Header.Get("Content-Type")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("upstream error status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("latency", time.Since(start)),
		)
		return nil, "", &domain.UpstreamError{
			Path:        path,
			Status:      resp.StatusCode,
			Body:        respBody,
			ContentType: ctype,
		}
	}

	c.logger.Debug("upstream call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(respBody)),
		zap.Duration("latency", time.Since(start)),
	)
	return respBody, ctype, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
