package relayclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mr-relay/internal/audio"
	"mr-relay/internal/domain"
	relayhttp "mr-relay/internal/http"
	"mr-relay/internal/llm"
	"mr-relay/internal/service"
)

func newTestRelay(t *testing.T, mock *llm.MockClient, opts relayhttp.RouterOptions) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	relaySvc := service.NewRelayService(mock, logger, service.RelayOptions{})
	handler := relayhttp.NewRelayHandler(logger, relaySvc, 2<<20)
	srv := httptest.NewServer(relayhttp.NewRouter(logger, handler, opts))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Chat(t *testing.T) {
	mock := &llm.MockClient{ChatBody: []byte(`{"choices":[{"message":{"content":"hola desde el relay"}}]}`)}
	srv := newTestRelay(t, mock, relayhttp.RouterOptions{})

	resp, err := New(srv.URL).Chat(context.Background(), []domain.ChatMessage{{Role: "user", Content: "hola"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "hola desde el relay" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if mock.ChatCalls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", mock.ChatCalls)
	}
}

func TestClient_ChatValidationError(t *testing.T) {
	mock := &llm.MockClient{}
	srv := newTestRelay(t, mock, relayhttp.RouterOptions{})

	_, err := New(srv.URL).Chat(context.Background(), nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
	if mock.ChatCalls != 0 {
		t.Fatalf("expected no upstream calls")
	}
}

func TestClient_EphemeralKey(t *testing.T) {
	mock := &llm.MockClient{SessionBody: []byte(`{"id":"sess_1","model":"gpt-4o-realtime-preview","client_secret":{"value":"ek_123","expires_at":1700000000}}`)}
	srv := newTestRelay(t, mock, relayhttp.RouterOptions{})

	c := New(srv.URL)
	payload, raw, err := c.Session(context.Background())
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if payload.ID != "sess_1" || payload.ClientSecret.ExpiresAt != 1700000000 || !strings.Contains(string(raw), "ek_123") {
		t.Fatalf("unexpected session %+v raw=%s", payload, raw)
	}
	key, err := c.EphemeralKey(context.Background())
	if err != nil || key != "ek_123" {
		t.Fatalf("expected ek_123, got %q (%v)", key, err)
	}
}

func TestClient_EphemeralKeyMissing(t *testing.T) {
	mock := &llm.MockClient{SessionBody: []byte(`{"id":"sess_1"}`)}
	srv := newTestRelay(t, mock, relayhttp.RouterOptions{})

	if _, err := New(srv.URL).EphemeralKey(context.Background()); !errors.Is(err, ErrNoEphemeralKey) {
		t.Fatalf("expected ErrNoEphemeralKey, got %v", err)
	}
}

func TestClient_SpeakSniffsMislabeledWAV(t *testing.T) {
	wav := audio.EncodeWAV([]float32{0, 0.5, -0.5, 0.25}, 1, 24000)
	mock := &llm.MockClient{Audio: domain.AudioBlob{Data: wav, ContentType: "audio/mpeg"}}
	srv := newTestRelay(t, mock, relayhttp.RouterOptions{})

	decoded, err := New(srv.URL).Speak(context.Background(), "hola", "")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	if decoded.Format != audio.FormatWAV || decoded.Probed {
		t.Fatalf("expected signature-detected wav, got %+v", decoded)
	}
	if decoded.PCM.SampleRate != 24000 || len(decoded.PCM.Samples) != 4 {
		t.Fatalf("unexpected pcm %+v", decoded.PCM)
	}
}

func TestClient_SpeechUpstreamErrorPassthrough(t *testing.T) {
	mock := &llm.MockClient{Err: &domain.UpstreamError{
		Path:        "/audio/speech",
		Status:      http.StatusUnprocessableEntity,
		Body:        []byte(`{"error":{"message":"voice not found"}}`),
		ContentType: "application/json",
	}}
	srv := newTestRelay(t, mock, relayhttp.RouterOptions{})

	_, err := New(srv.URL).Speech(context.Background(), "hola", "nope")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != http.StatusUnprocessableEntity || string(se.Body) != `{"error":{"message":"voice not found"}}` {
		t.Fatalf("unexpected passthrough %d %s", se.Status, se.Body)
	}
}

func TestClient_SpeechTooShort(t *testing.T) {
	mock := &llm.MockClient{Audio: domain.AudioBlob{Data: []byte("ID3"), ContentType: "audio/mpeg"}}
	srv := newTestRelay(t, mock, relayhttp.RouterOptions{})

	if _, err := New(srv.URL).Speech(context.Background(), "hola", ""); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestClient_RejectsOversizedResponse(t *testing.T) {
	mock := &llm.MockClient{Audio: domain.AudioBlob{Data: make([]byte, 64), ContentType: "audio/mpeg"}}
	srv := newTestRelay(t, mock, relayhttp.RouterOptions{})

	c := New(srv.URL)
	c.maxBody = 63
	if _, err := c.Speech(context.Background(), "hola", ""); !errors.Is(err, domain.ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}
}

func TestClient_TranscribePCM(t *testing.T) {
	mock := &llm.MockClient{STTBody: []byte(`{"text":"  hola mundo \n"}`)}
	srv := newTestRelay(t, mock, relayhttp.RouterOptions{})

	pcm := &audio.PCM{Samples: []float32{0, 0.1, 0.2, 0.3}, Channels: 1, SampleRate: 16000}
	text, err := New(srv.URL).TranscribePCM(context.Background(), pcm)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hola mundo" {
		t.Fatalf("unexpected text %q", text)
	}
	if mock.STTCalls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", mock.STTCalls)
	}
	up := mock.LastSTT.Upload
	if up.Filename != "speech.wav" || up.ContentType != "audio/wav" {
		t.Fatalf("unexpected upload metadata %q %q", up.Filename, up.ContentType)
	}
	if audio.Sniff(up.Data, "") != audio.FormatWAV {
		t.Fatalf("expected wav upload")
	}
}

func TestClient_TranscribeEmpty(t *testing.T) {
	mock := &llm.MockClient{STTBody: []byte(`{"text":"   "}`)}
	srv := newTestRelay(t, mock, relayhttp.RouterOptions{})

	_, err := New(srv.URL).Transcribe(context.Background(), domain.STTUpload{Data: []byte("RIFF....WAVE")})
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
}

func TestClient_TokenIsSent(t *testing.T) {
	jwtSvc := service.NewJWTService("secret", time.Hour)
	token, err := jwtSvc.Issue("hl2", "hololens")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	mock := &llm.MockClient{ChatBody: []byte(`{"choices":[{"message":{"content":"ok"}}]}`)}
	srv := newTestRelay(t, mock, relayhttp.RouterOptions{JWT: jwtSvc})
	msgs := []domain.ChatMessage{{Role: "user", Content: "hola"}}

	var se *StatusError
	if _, err := New(srv.URL).Chat(context.Background(), msgs); !errors.As(err, &se) || se.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}
	if _, err := New(srv.URL, WithToken(token)).Chat(context.Background(), msgs); err != nil {
		t.Fatalf("chat with token: %v", err)
	}
}

func TestClient_Health(t *testing.T) {
	srv := newTestRelay(t, &llm.MockClient{}, relayhttp.RouterOptions{})
	if err := New(srv.URL + "/").Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestTranscriptText(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{body: `{"text":"hola"}`, want: "hola"},
		{body: "texto plano\n", want: "texto plano"},
	}
	for _, tc := range cases {
		got, err := transcriptText([]byte(tc.body))
		if err != nil || got != tc.want {
			t.Fatalf("transcriptText(%q) = %q, %v", tc.body, got, err)
		}
	}
}
