package webhook

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ServerOptions configures the HTTP ingress.
type ServerOptions struct {
	Addr string

	// MaxBodyBytes caps the webhook body size before signature verification.
	MaxBodyBytes int64

	// RateLimitPerMinute bounds webhook deliveries per client IP.
	// Zero disables rate limiting.
	RateLimitPerMinute int

	// TrustProxy controls whether X-Forwarded-For is honored for the
	// client IP. Only enable behind a proxy that strips the header from
	// untrusted traffic.
	TrustProxy bool
}

// Server is the webhook HTTP server: one ingress route plus the health
// endpoints.
type Server struct {
	httpServer *http.Server
	opts       ServerOptions
	limiters   *ipLimiters
}

// NewServer assembles the routes around the given handler and health checker.
func NewServer(opts ServerOptions, hook *Handler, health *HealthChecker) *Server {
	s := &Server{opts: opts}
	if opts.RateLimitPerMinute > 0 {
		s.limiters = newIPLimiters(opts.RateLimitPerMinute)
	}

	mux := http.NewServeMux()
	mux.Handle("/webhooks/github", s.guard(hook))
	mux.HandleFunc("/healthz", health.Handler())
	mux.HandleFunc("/readyz", health.Handler())
	mux.HandleFunc("/livez", health.LivenessHandler())

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains open connections within the context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiters != nil {
		s.limiters.stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// guard applies the body cap and per-IP rate limit ahead of the hook handler.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiters != nil && !s.limiters.allow(s.clientIP(r)) {
			writeJSON(w, http.StatusTooManyRequests, response{OK: false, Error: "rate limit exceeded"})
			return
		}
		if s.opts.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the address rate limiting keys on.
func (s *Server) clientIP(r *http.Request) string {
	if s.opts.TrustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ipLimiters holds one token bucket per client IP, evicting idle entries so
// the map cannot grow without bound.
type ipLimiters struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	done    chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiters(perMinute int) *ipLimiters {
	l := &ipLimiters{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		done:    make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

func (l *ipLimiters) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

func (l *ipLimiters) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			l.mu.Lock()
			for ip, entry := range l.entries {
				if entry.lastSeen.Before(cutoff) {
					delete(l.entries, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *ipLimiters) stop() {
	close(l.done)
}
