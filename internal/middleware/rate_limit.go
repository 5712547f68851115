package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimit 限制同一调用者在窗口内的请求数。挂在鉴权之后时按用户计数，否则按来源 IP。
func RateLimit(maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	if maxRequests <= 0 || window <= 0 {
		return passthrough
	}
	limiter := newWindowLimiter(maxRequests, window, time.Now)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(callerKey(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeAuthError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func passthrough(next http.Handler) http.Handler {
	return next
}

// windowLimiter 是固定窗口计数器，过期条目在表变大时顺带清理。
type windowLimiter struct {
	mu          sync.Mutex
	clients     map[string]*windowCounter
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

type windowCounter struct {
	count   int
	expires time.Time
}

func newWindowLimiter(maxRequests int, window time.Duration, now func() time.Time) *windowLimiter {
	return &windowLimiter{
		clients:     make(map[string]*windowCounter),
		maxRequests: maxRequests,
		window:      window,
		now:         now,
	}
}

func (l *windowLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[key]
	if !ok || now.After(entry.expires) {
		if len(l.clients) > 1024 {
			l.sweep(now)
		}
		l.clients[key] = &windowCounter{count: 1, expires: now.Add(l.window)}
		return true
	}
	if entry.count >= l.maxRequests {
		return false
	}
	entry.count++
	return true
}

func (l *windowLimiter) sweep(now time.Time) {
	for key, entry := range l.clients {
		if now.After(entry.expires) {
			delete(l.clients, key)
		}
	}
}

func callerKey(r *http.Request) string {
	if userID := UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return "ip:" + strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
