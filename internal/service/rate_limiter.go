package service

import (
	"strings"
	"sync"
	"time"
)

// RateLimiter limita la cantidad de requests por clave de cliente dentro de una ventana.
type RateLimiter interface {
	Allow(key string) bool
}

type windowCounter struct {
	count int
	start time.Time
}

// MemoryRateLimiter es un limitador de ventana fija en memoria del proceso.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	max      int
	counters map[string]*windowCounter
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryRateLimiter crea el limitador y arranca la limpieza periódica de claves viejas.
func NewMemoryRateLimiter(window time.Duration, max int) *MemoryRateLimiter {
	l := newMemoryRateLimiter(window, max, time.Now)
	go l.janitor()
	return l
}

func newMemoryRateLimiter(window time.Duration, max int, now func() time.Time) *MemoryRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &MemoryRateLimiter{
		window:   window,
		max:      max,
		counters: make(map[string]*windowCounter),
		now:      now,
		stop:     make(chan struct{}),
	}
}

func (l *MemoryRateLimiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.counters[key]
	if !ok || now.Sub(c.start) >= l.window {
		l.counters[key] = &windowCounter{count: 1, start: now}
		return true
	}
	c.count++
	return c.count <= l.max
}

// Window devuelve la duración de la ventana, usada para Retry-After.
func (l *MemoryRateLimiter) Window() time.Duration {
	return l.window
}

// Stop detiene la goroutine de limpieza.
func (l *MemoryRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *MemoryRateLimiter) janitor() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *MemoryRateLimiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, c := range l.counters {
		if now.Sub(c.start) >= l.window {
			delete(l.counters, k)
		}
	}
}
