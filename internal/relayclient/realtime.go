package relayclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mr-relay/internal/audio"
)

const (
	DefaultRealtimeURL   = "wss://api.openai.com/v1/realtime"
	DefaultRealtimeModel = "gpt-4o-realtime-preview"

	// DefaultRealtimeSampleRate es la frecuencia de pcm16 en la API realtime.
	DefaultRealtimeSampleRate = 24000

	realtimeWriteTimeout = 10 * time.Second
)

var ErrRealtimeClosed = errors.New("relayclient: realtime session closed")

// RealtimeConfig configura la conexión websocket contra el proveedor.
type RealtimeConfig struct {
	URL        string
	Model      string
	SampleRate int
	Dialer     *websocket.Dialer
}

// RealtimeEvent es un evento del servidor ya interpretado. Text trae deltas
// de texto o transcripción y Audio los frames decodificados a float.
type RealtimeEvent struct {
	Type  string
	Text  string
	Audio []float32
	Err   error
	Raw   json.RawMessage
}

// Realtime es una sesión websocket abierta con una clave efímera del relay.
type Realtime struct {
	conn       *websocket.Conn
	logger     *zap.Logger
	sampleRate int

	writeMu sync.Mutex
	events  chan RealtimeEvent
	done    chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// DialRealtime obtiene una clave efímera de /session y abre el websocket
// del proveedor con ella. La clave del proveedor nunca pasa por el cliente.
func (c *Client) DialRealtime(ctx context.Context, cfg RealtimeConfig) (*Realtime, error) {
	key, err := c.EphemeralKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("ephemeral key: %w", err)
	}
	return DialRealtimeWithKey(ctx, key, cfg, c.logger)
}

// DialRealtimeWithKey abre la sesión con una clave efímera ya obtenida.
func DialRealtimeWithKey(ctx context.Context, key string, cfg RealtimeConfig, logger *zap.Logger) (*Realtime, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultRealtimeURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultRealtimeModel
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultRealtimeSampleRate
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 15 * time.Second, Proxy: http.ProxyFromEnvironment}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	q.Set("model", cfg.Model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+key)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := cfg.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	rt := &Realtime{
		conn:       conn,
		logger:     logger,
		sampleRate: cfg.SampleRate,
		events:     make(chan RealtimeEvent, 64),
		done:       make(chan struct{}),
	}
	go rt.readLoop()
	logger.Info("realtime connected", zap.String("model", cfg.Model))
	return rt, nil
}

// SampleRate es la frecuencia asumida para los frames pcm16 de la sesión.
func (r *Realtime) SampleRate() int {
	return r.sampleRate
}

// Events entrega los eventos del servidor; se cierra al terminar la sesión.
func (r *Realtime) Events() <-chan RealtimeEvent {
	return r.events
}

// Err devuelve el error que terminó la lectura, si hubo.
func (r *Realtime) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// UpdateSession fija pcm16 como formato de entrada.
func (r *Realtime) UpdateSession(ctx context.Context) error {
	return r.send(ctx, map[string]any{
		"type":    "session.update",
		"session": map[string]any{"input_audio_format": "pcm16"},
	})
}

// AppendAudio envía muestras normalizadas como pcm16 en base64.
func (r *Realtime) AppendAudio(ctx context.Context, samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	return r.send(ctx, map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(audio.FloatToPCM16(samples)),
	})
}

func (r *Realtime) Commit(ctx context.Context) error {
	return r.send(ctx, map[string]any{"type": "input_audio_buffer.commit"})
}

func (r *Realtime) CreateResponse(ctx context.Context) error {
	return r.send(ctx, map[string]any{"type": "response.create"})
}

// Close cierra la conexión; es seguro llamarlo varias veces.
func (r *Realtime) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		r.writeMu.Lock()
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		r.writeMu.Unlock()
		err = r.conn.Close()
	})
	return err
}

func (r *Realtime) send(ctx context.Context, event map[string]any) error {
	select {
	case <-r.done:
		return ErrRealtimeClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %v: %w", event["type"], err)
	}

	deadline := time.Now().Add(realtimeWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := r.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send %v: %w", event["type"], err)
	}
	return nil
}

func (r *Realtime) readLoop() {
	defer close(r.events)
	for {
		_, msg, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					r.errMu.Lock()
					r.err = err
					r.errMu.Unlock()
					r.logger.Warn("realtime read failed", zap.Error(err))
				}
			}
			return
		}

		ev := parseRealtimeEvent(msg)
		if ev.Err != nil {
			r.logger.Warn("realtime event error", zap.String("type", ev.Type), zap.Error(ev.Err))
		}
		select {
		case r.events <- ev:
		case <-r.done:
			return
		}
	}
}

type serverEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
	Text  string `json:"text"`
	Audio string `json:"audio"`
	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseRealtimeEvent(msg []byte) RealtimeEvent {
	ev := RealtimeEvent{Raw: json.RawMessage(msg)}
	var se serverEvent
	if err := json.Unmarshal(msg, &se); err != nil {
		ev.Err = fmt.Errorf("decode event: %w", err)
		return ev
	}
	ev.Type = se.Type

	switch {
	case se.Type == "error":
		if se.Error != nil {
			ev.Err = fmt.Errorf("realtime %s: %s", se.Error.Type, se.Error.Message)
		} else {
			ev.Err = errors.New("realtime error event")
		}
	case strings.HasSuffix(se.Type, "audio.delta"):
		ev.Audio, ev.Err = decodeAudioDelta(se.Delta)
	case strings.HasSuffix(se.Type, "text.delta"), strings.HasSuffix(se.Type, "transcript.delta"):
		ev.Text = se.Delta
	default:
		// formatos viejos traen text/audio en el primer nivel
		if se.Text != "" {
			ev.Text = se.Text
		}
		if se.Audio != "" {
			ev.Audio, ev.Err = decodeAudioDelta(se.Audio)
		}
	}
	return ev
}

func decodeAudioDelta(b64 string) ([]float32, error) {
	if b64 == "" {
		return nil, nil
	}
	pcm, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode audio delta: %w", err)
	}
	return audio.PCM16ToFloat(pcm), nil
}
