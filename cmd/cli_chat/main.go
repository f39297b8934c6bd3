package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mr-relay/internal/audio"
	"mr-relay/internal/config"
	"mr-relay/internal/domain"
	"mr-relay/internal/relayclient"
	"mr-relay/internal/service"
)

const usage = `uso: cli_chat <comando> [flags]

comandos:
  chat          conversación interactiva contra /chat (y /tts con -speak)
  tts           sintetiza -text y guarda el audio en -out
  stt           transcribe el archivo -in
  session       imprime el payload de /session
  realtime      envía -in (wav) por una sesión realtime y guarda la respuesta en -out
  mint-token    emite un token de cliente firmado con RELAY_JWT_SECRET
  revoke-token  revoca -token en el redis compartido con el relay
`

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := "chat", []string{}
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	client := relayclient.New(cfg.RelayURL,
		relayclient.WithToken(cfg.RelayToken),
		relayclient.WithLogger(logger),
	)

	switch cmd {
	case "chat":
		err = runChat(ctx, client, cfg, args)
	case "tts":
		err = runTTS(ctx, client, cfg, args)
	case "stt":
		err = runSTT(ctx, client, args)
	case "session":
		err = runSession(ctx, client)
	case "realtime":
		err = runRealtime(ctx, client, cfg, logger, args)
	case "mint-token":
		err = runMintToken(cfg, args)
	case "revoke-token":
		err = runRevokeToken(ctx, cfg, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func runChat(ctx context.Context, client *relayclient.Client, cfg *config.ClientConfig, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	speak := fs.Bool("speak", false, "sintetizar cada respuesta con /tts")
	outDir := fs.String("out", "", "directorio donde guardar el audio de cada respuesta")
	_ = fs.Parse(args)

	conv := relayclient.NewConversation(client, relayclient.ConversationOptions{
		SystemPrompt: cfg.SystemPrompt,
		Voice:        cfg.Voice,
		Speak:        *speak || *outDir != "",
	})

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("---- Modo Chat (escribe 'salir' para terminar) ----")
	for turn := 1; ; turn++ {
		fmt.Print("Tu > ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("leer input: %w", err)
		}
		if strings.EqualFold(strings.TrimSpace(text), "salir") {
			fmt.Println("Saliendo del chat...")
			return nil
		}

		reply, err := conv.Send(ctx, text)
		switch {
		case errors.Is(err, relayclient.ErrEmptyMessage), errors.Is(err, relayclient.ErrDuplicateSend):
			continue
		case err != nil:
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Printf("Asistente > %s\n", reply.Text)

		if reply.AudioErr != nil {
			fmt.Printf("error TTS: %v\n", reply.AudioErr)
		}
		if reply.Audio != nil {
			fmt.Printf("(audio %s, %.1fs)\n", reply.Audio.Format, reply.Audio.PCM.Duration())
			if *outDir != "" {
				path := filepath.Join(*outDir, fmt.Sprintf("reply-%03d.wav", turn))
				if err := writePCM(path, reply.Audio.PCM); err != nil {
					fmt.Printf("error guardando audio: %v\n", err)
				}
			}
		}
	}
}

func runTTS(ctx context.Context, client *relayclient.Client, cfg *config.ClientConfig, args []string) error {
	fs := flag.NewFlagSet("tts", flag.ExitOnError)
	text := fs.String("text", "", "texto a sintetizar")
	voice := fs.String("voice", cfg.Voice, "voz")
	out := fs.String("out", "tts.wav", "archivo de salida")
	raw := fs.Bool("raw", false, "guardar los bytes tal como los devuelve el relay")
	_ = fs.Parse(args)

	if *raw {
		blob, err := client.Speech(ctx, *text, *voice)
		if err != nil {
			return err
		}
		fmt.Printf("%d bytes (%s, detectado %s)\n", len(blob.Data), blob.ContentType, audio.Sniff(blob.Data, blob.ContentType))
		return os.WriteFile(*out, blob.Data, 0o644)
	}

	decoded, err := client.Speak(ctx, *text, *voice)
	if err != nil {
		return err
	}
	fmt.Printf("formato %s, %d Hz, %d canales, %.2fs\n",
		decoded.Format, decoded.PCM.SampleRate, decoded.PCM.Channels, decoded.PCM.Duration())
	return writePCM(*out, decoded.PCM)
}

func runSTT(ctx context.Context, client *relayclient.Client, args []string) error {
	fs := flag.NewFlagSet("stt", flag.ExitOnError)
	in := fs.String("in", "", "archivo de audio (wav o mp3)")
	language := fs.String("language", "", "idioma ISO-639-1 opcional")
	prompt := fs.String("prompt", "", "prompt opcional para el transcriptor")
	_ = fs.Parse(args)

	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	ctype := "application/octet-stream"
	switch audio.Sniff(data, "") {
	case audio.FormatWAV:
		ctype = "audio/wav"
	case audio.FormatMP3:
		ctype = domain.TTSContentType
	}
	text, err := client.Transcribe(ctx, domain.STTUpload{
		Filename:    filepath.Base(*in),
		ContentType: ctype,
		Data:        data,
		Language:    *language,
		Prompt:      *prompt,
	})
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runSession(ctx context.Context, client *relayclient.Client) error {
	payload, raw, err := client.Session(ctx)
	if err != nil {
		return err
	}
	var pretty map[string]any
	if err := json.Unmarshal(raw, &pretty); err == nil {
		if b, err := json.MarshalIndent(pretty, "", "  "); err == nil {
			raw = b
		}
	}
	fmt.Println(string(raw))
	if payload.ClientSecret.ExpiresAt > 0 {
		fmt.Printf("clave efímera expira: %s\n", time.Unix(payload.ClientSecret.ExpiresAt, 0).Format(time.RFC3339))
	}
	return nil
}

func runRealtime(ctx context.Context, client *relayclient.Client, cfg *config.ClientConfig, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("realtime", flag.ExitOnError)
	in := fs.String("in", "", "wav pcm a enviar")
	out := fs.String("out", "realtime.wav", "archivo para el audio de respuesta")
	wait := fs.Duration("wait", 30*time.Second, "tiempo máximo esperando la respuesta")
	_ = fs.Parse(args)

	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	pcm, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if pcm.SampleRate != relayclient.DefaultRealtimeSampleRate {
		logger.Warn("input sample rate differs from realtime pcm16 rate",
			zap.Int("input", pcm.SampleRate),
			zap.Int("expected", relayclient.DefaultRealtimeSampleRate),
		)
	}

	rt, err := client.DialRealtime(ctx, relayclient.RealtimeConfig{
		URL:   cfg.RealtimeURL,
		Model: cfg.RealtimeModel,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.UpdateSession(ctx); err != nil {
		return err
	}
	samples := pcm.Mono()
	chunk := pcm.SampleRate / 10
	if chunk <= 0 {
		chunk = len(samples)
	}
	for start := 0; start < len(samples); start += chunk {
		end := min(start+chunk, len(samples))
		if err := rt.AppendAudio(ctx, samples[start:end]); err != nil {
			return err
		}
	}
	if err := rt.Commit(ctx); err != nil {
		return err
	}
	if err := rt.CreateResponse(ctx); err != nil {
		return err
	}

	var reply []float32
	timeout := time.After(*wait)
	fmt.Print("Asistente > ")
loop:
	for {
		select {
		case ev, ok := <-rt.Events():
			if !ok {
				break loop
			}
			if ev.Err != nil {
				fmt.Printf("\n[error] %v\n", ev.Err)
			}
			fmt.Print(ev.Text)
			reply = append(reply, ev.Audio...)
			if ev.Type == "response.done" {
				break loop
			}
		case <-timeout:
			fmt.Println("\n(tiempo de espera agotado)")
			break loop
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	fmt.Println()
	if err := rt.Err(); err != nil {
		return err
	}
	if len(reply) == 0 {
		return nil
	}
	return writePCM(*out, &audio.PCM{Samples: reply, Channels: 1, SampleRate: rt.SampleRate()})
}

func runMintToken(cfg *config.ClientConfig, args []string) error {
	fs := flag.NewFlagSet("mint-token", flag.ExitOnError)
	clientID := fs.String("client", "", "identificador del cliente (por defecto un uuid)")
	device := fs.String("device", "hololens", "dispositivo")
	ttl := fs.Duration("ttl", time.Duration(cfg.JWTTTLMinutes)*time.Minute, "vigencia del token")
	_ = fs.Parse(args)

	jwtSvc := service.NewJWTService(cfg.JWTSecret, *ttl)
	if !jwtSvc.Enabled() {
		return errors.New("RELAY_JWT_SECRET not set")
	}
	id := strings.TrimSpace(*clientID)
	if id == "" {
		id = uuid.NewString()
	}
	token, err := jwtSvc.Issue(id, *device)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runRevokeToken(ctx context.Context, cfg *config.ClientConfig, args []string) error {
	fs := flag.NewFlagSet("revoke-token", flag.ExitOnError)
	token := fs.String("token", "", "token a revocar")
	_ = fs.Parse(args)

	if cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR not set")
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctxPing).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute).
		WithRevocationStore(service.NewRedisTokenRevocationStore(redisClient))
	claims, err := jwtSvc.Revoke(*token)
	if err != nil {
		return err
	}
	fmt.Printf("token %s de %s revocado\n", claims.ID, claims.ClientID)
	return nil
}

func writePCM(path string, pcm *audio.PCM) error {
	if err := os.WriteFile(path, audio.EncodeWAV(pcm.Samples, pcm.Channels, pcm.SampleRate), 0o644); err != nil {
		return err
	}
	fmt.Printf("audio guardado en %s\n", path)
	return nil
}
