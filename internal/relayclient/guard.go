package relayclient

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// DefaultDuplicateWindow es el intervalo en el que un mismo texto se considera reenvío.
const DefaultDuplicateWindow = 300 * time.Millisecond

var (
	ErrEmptyMessage  = errors.New("relayclient: empty message")
	ErrDuplicateSend = errors.New("relayclient: duplicate send")
	ErrSendInFlight  = errors.New("relayclient: send already in flight")
)

// SendGuard evita envíos dobles: el mismo texto dentro de la ventana, o
// cualquier envío mientras otro sigue en curso.
type SendGuard struct {
	mu       sync.Mutex
	window   time.Duration
	now      func() time.Time
	inFlight bool
	lastText string
	lastAt   time.Time
}

func NewSendGuard(window time.Duration) *SendGuard {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &SendGuard{window: window, now: time.Now}
}

// Acquire recorta text y reserva el envío. release debe llamarse al terminar;
// llamarla más de una vez no tiene efecto.
func (g *SendGuard) Acquire(text string) (msg string, release func(), err error) {
	msg = strings.TrimSpace(text)
	if msg == "" {
		return "", nil, ErrEmptyMessage
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.inFlight {
		return "", nil, ErrSendInFlight
	}
	if msg == g.lastText && now.Sub(g.lastAt) < g.window {
		return "", nil, ErrDuplicateSend
	}
	g.lastText = msg
	g.lastAt = now
	g.inFlight = true

	var once sync.Once
	release = func() {
		once.Do(func() {
			g.mu.Lock()
			g.inFlight = false
			g.mu.Unlock()
		})
	}
	return msg, release, nil
}

// InFlight reporta si hay un envío en curso.
func (g *SendGuard) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}
