// Package ratelimit implements fixed-window request counting, in memory for a
// single process or in Redis when several instances share the limit.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	sweepInterval = 5 * time.Minute
	defaultWindow = time.Minute
)

// Limiter counts hits per key in fixed windows.
type Limiter interface {
	Allow(key string, limit int, window time.Duration) Decision
	Close() error
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Count     int
	WindowEnd time.Time
}

// Memory is a process-local Limiter. A background goroutine drops expired
// windows until Close is called.
type Memory struct {
	mu      sync.Mutex
	entries map[string]window
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

type window struct {
	count int
	end   time.Time
}

// NewMemory starts a Memory limiter.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]window),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *Memory) Allow(key string, limit int, win time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}
	if win <= 0 {
		win = defaultWindow
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.entries[key]
	if !ok || now.After(state.end) {
		state = window{count: 1, end: now.Add(win)}
		m.entries[key] = state
		return Decision{Allowed: true, Count: 1, WindowEnd: state.end}
	}
	if state.count >= limit {
		return Decision{Allowed: false, Count: state.count, WindowEnd: state.end}
	}
	state.count++
	m.entries[key] = state
	return Decision{Allowed: true, Count: state.count, WindowEnd: state.end}
}

func (m *Memory) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup(m.now())
		case <-m.stopCh:
			return
		}
	}
}

func (m *Memory) cleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, state := range m.entries {
		if now.After(state.end) {
			delete(m.entries, key)
		}
	}
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stopCh) })
	return nil
}

// KeyFunc derives the counting key from a request.
type KeyFunc func(*http.Request) string

// KeyByIP keys on r.RemoteAddr. Forwarding headers are client-controlled, so
// chi's RealIP should rewrite RemoteAddr only behind a trusted proxy.
func KeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// Middleware rejects requests over limit per window. Rejected requests are
// handed to onLimit, which writes the response; allowed ones get
// X-RateLimit-* headers and continue.
func Middleware(l Limiter, scope string, limit int, win time.Duration, key KeyFunc, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			d := l.Allow(scope+":"+key(r), limit, win)
			setHeaders(w, limit, d)
			if !d.Allowed {
				onLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(w http.ResponseWriter, limit int, d Decision) {
	remaining := limit - d.Count
	if remaining < 0 {
		remaining = 0
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !d.WindowEnd.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.WindowEnd.Unix(), 10))
		if !d.Allowed {
			secs := int(time.Until(d.WindowEnd).Seconds()) + 1
			h.Set("Retry-After", strconv.Itoa(secs))
		}
	}
}
