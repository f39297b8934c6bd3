package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"mr-relay/internal/domain"
)

func TestHTTPClientChatCompletion(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hola"}}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/v1/", "sk-test", time.Second, zap.NewNop())
	raw, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Model:       "gpt-4o-mini",
		Messages:    []domain.ChatMessage{{Role: "user", Content: "hi"}},
		Temperature: 0.6,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("expected bearer credential, got %q", gotAuth)
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody.Model != "gpt-4o-mini" || len(gotBody.Messages) != 1 || gotBody.Temperature != 0.6 {
		t.Fatalf("unexpected forwarded body: %+v", gotBody)
	}
	if ExtractChatText(raw) != "hola" {
		t.Fatalf("expected extracted text, got %q", ExtractChatText(raw))
	}
}

func TestHTTPClientUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota"}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "sk-test", time.Second, zap.NewNop())
	_, err := c.CreateRealtimeSession(context.Background(), RealtimeSessionRequest{Model: "rt"})
	ue, ok := domain.AsUpstream(err)
	if !ok {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusTooManyRequests || string(ue.Body) != `{"error":{"message":"quota"}}` {
		t.Fatalf("unexpected upstream error: %+v", ue)
	}
	if ue.Path != pathRealtimeSession {
		t.Fatalf("unexpected path %q", ue.Path)
	}
}

func TestHTTPClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url, "sk-test", time.Second, zap.NewNop())
	_, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{Model: "m"})
	var te *domain.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestHTTPClientRejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(make([]byte, 33))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "sk-test", time.Second, zap.NewNop())
	c.maxBody = 32
	_, err := c.Speech(context.Background(), SpeechRequest{Model: "tts", Input: "hola"})
	var te *domain.TransportError
	if !errors.As(err, &te) || !errors.Is(err, domain.ErrResponseTooLarge) {
		t.Fatalf("expected oversized TransportError, got %v", err)
	}

	c.maxBody = 33
	blob, err := c.Speech(context.Background(), SpeechRequest{Model: "tts", Input: "hola"})
	if err != nil {
		t.Fatalf("body at the limit must pass: %v", err)
	}
	if len(blob.Data) != 33 {
		t.Fatalf("expected 33 bytes, got %d", len(blob.Data))
	}
}

func TestHTTPClientSpeechRequestsMP3(t *testing.T) {
	var gotAccept string
	var gotBody SpeechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3\x03audio"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "sk-test", time.Second, zap.NewNop())
	blob, err := c.Speech(context.Background(), SpeechRequest{
		Model: "tts", Input: "hello", Voice: "verse", ResponseFormat: "mp3", Format: "mp3",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAccept != "audio/mpeg" {
		t.Fatalf("expected Accept audio/mpeg, got %q", gotAccept)
	}
	if gotBody.ResponseFormat != "mp3" || gotBody.Format != "mp3" {
		t.Fatalf("expected mp3 in both format fields, got %+v", gotBody)
	}
	if string(blob.Data) != "ID3\x03audio" || blob.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected blob: %+v", blob)
	}
}

func TestHTTPClientTranscribeMultipart(t *testing.T) {
	var model, filename, partType, language string
	var data []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		model = r.FormValue("model")
		language = r.FormValue("language")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		filename = hdr.Filename
		partType = hdr.Header.Get("Content-Type")
		data, _ = io.ReadAll(f)
		_, _ = w.Write([]byte(`{"text":"hola","language":"es"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "sk-test", time.Second, zap.NewNop())
	raw, err := c.Transcribe(context.Background(), TranscriptionRequest{
		Model: "gpt-4o-transcribe",
		Upload: domain.STTUpload{
			Filename:    "speech.wav",
			ContentType: "audio/wav",
			Data:        []byte("RIFFdata"),
			Language:    "es",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "gpt-4o-transcribe" || filename != "speech.wav" || partType != "audio/wav" || language != "es" {
		t.Fatalf("unexpected multipart: model=%s filename=%s type=%s lang=%s", model, filename, partType, language)
	}
	if string(data) != "RIFFdata" {
		t.Fatalf("unexpected file bytes %q", data)
	}
	if string(raw) != `{"text":"hola","language":"es"}` {
		t.Fatalf("expected passthrough JSON, got %s", raw)
	}
}

func TestExtractChatTextDefensive(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: `{}`, want: ""},
		{in: `{"choices":[]}`, want: ""},
		{in: `{"choices":[{}]}`, want: ""},
		{in: `{"choices":[{"message":{}}]}`, want: ""},
		{in: `{"choices":[{"message":{"content":null}}]}`, want: ""},
		{in: `not json`, want: ""},
		{in: `{"choices":[{"message":{"content":"a"}},{"message":{"content":"b"}}]}`, want: "a"},
	}
	for _, tc := range cases {
		if got := ExtractChatText([]byte(tc.in)); got != tc.want {
			t.Fatalf("ExtractChatText(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
