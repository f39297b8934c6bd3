package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mr-relay/internal/audio"
	"mr-relay/internal/config"
	"mr-relay/internal/domain"
	"mr-relay/internal/relayclient"
)

const (
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorReset = "\033[0m"
)

// Scenario es una verificación contra un relay desplegado.
type Scenario struct {
	Name string
	Run  func(ctx context.Context, st *checkState) (string, error)
}

// checkState comparte resultados entre escenarios (el audio de /tts se reusa en /stt).
type checkState struct {
	client *relayclient.Client
	speech domain.AudioBlob
}

type checkResult struct {
	Name   string
	Detail string
	Err    error
	Took   time.Duration
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	client := relayclient.New(cfg.RelayURL,
		relayclient.WithToken(cfg.RelayToken),
		relayclient.WithLogger(logger),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	fmt.Printf("%s[relay]%s %s\n", colorCyan, colorReset, cfg.RelayURL)
	results := runScenarios(ctx, &checkState{client: client}, defaultScenarios())

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("%sFAIL%s %-22s %v (%s)\n", colorRed, colorReset, r.Name, r.Err, r.Took.Round(time.Millisecond))
			continue
		}
		fmt.Printf("%sOK%s   %-22s %s (%s)\n", colorGreen, colorReset, r.Name, r.Detail, r.Took.Round(time.Millisecond))
	}

	fmt.Println("==== Resumen ====")
	fmt.Printf("%d/%d escenarios OK\n", len(results)-failed, len(results))
	if failed > 0 {
		os.Exit(1)
	}
}

func runScenarios(ctx context.Context, st *checkState, scenarios []Scenario) []checkResult {
	results := make([]checkResult, 0, len(scenarios))
	for _, sc := range scenarios {
		start := time.Now()
		detail, err := sc.Run(ctx, st)
		results = append(results, checkResult{Name: sc.Name, Detail: detail, Err: err, Took: time.Since(start)})
	}
	return results
}

func defaultScenarios() []Scenario {
	return []Scenario{
		{Name: "health", Run: checkHealth},
		{Name: "chat", Run: checkChat},
		{Name: "chat rejects invalid", Run: checkChatValidation},
		{Name: "session", Run: checkSession},
		{Name: "tts", Run: checkTTS},
		{Name: "stt roundtrip", Run: checkSTTRoundTrip},
	}
}

func checkHealth(ctx context.Context, st *checkState) (string, error) {
	if err := st.client.Health(ctx); err != nil {
		return "", err
	}
	return "ok", nil
}

func checkChat(ctx context.Context, st *checkState) (string, error) {
	resp, err := st.client.Chat(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: relayclient.DefaultSystemPrompt},
		{Role: domain.RoleUser, Content: "Reply with the single word: pong"},
	})
	if err != nil {
		return "", err
	}
	if resp.Text == "" {
		return "", errors.New("empty text")
	}
	return fmt.Sprintf("%q", resp.Text), nil
}

func checkChatValidation(ctx context.Context, st *checkState) (string, error) {
	_, err := st.client.Chat(ctx, nil)
	var se *relayclient.StatusError
	if !errors.As(err, &se) {
		return "", fmt.Errorf("expected 400, got %v", err)
	}
	if se.Status != 400 {
		return "", fmt.Errorf("expected 400, got %d", se.Status)
	}
	return "400", nil
}

func checkSession(ctx context.Context, st *checkState) (string, error) {
	payload, _, err := st.client.Session(ctx)
	if err != nil {
		return "", err
	}
	if payload.ClientSecret.Value == "" {
		return "", relayclient.ErrNoEphemeralKey
	}
	return "model " + payload.Model, nil
}

func checkTTS(ctx context.Context, st *checkState) (string, error) {
	blob, err := st.client.Speech(ctx, "Hello from the relay check.", "")
	if err != nil {
		return "", err
	}
	st.speech = blob
	decoded, err := audio.Decode(blob)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %.2fs", decoded.Format, decoded.PCM.Duration()), nil
}

func checkSTTRoundTrip(ctx context.Context, st *checkState) (string, error) {
	if len(st.speech.Data) == 0 {
		return "", errors.New("no tts audio to transcribe")
	}
	text, err := st.client.Transcribe(ctx, domain.STTUpload{
		Filename:    "check.mp3",
		ContentType: st.speech.ContentType,
		Data:        st.speech.Data,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%q", text), nil
}
