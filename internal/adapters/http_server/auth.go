package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

type ctxKey string

const ctxUser ctxKey = "user"

// UserID returns the authenticated subject placed on the context by Auth.
func UserID(ctx context.Context) string {
	s, _ := ctx.Value(ctxUser).(string)
	return s
}

// Auth requires an HS256 bearer token with an expiry and a subject.
// An empty secret rejects every request.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := validateJWT(r.Header.Get("Authorization"), secret)
			if err != nil {
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validateJWT(authz string, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("authentication is not configured")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", errors.New("missing bearer token")
	}
	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(strings.TrimPrefix(authz, prefix), &claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("invalid sub claim")
	}
	return claims.Subject, nil
}

// limiterIdle is the minimum time a caller's bucket is kept after its last
// request.
const limiterIdle = 10 * time.Minute

// limiterSet holds one token bucket per caller. Buckets idle long enough to
// have refilled completely are dropped, which cannot loosen the limit.
type limiterSet struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
	buckets   map[string]*bucket
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLimiterSet(rps float64, burst int, now func() time.Time) *limiterSet {
	idle := limiterIdle
	if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idle {
		idle = refill
	}
	return &limiterSet{
		rps:       rate.Limit(rps),
		burst:     burst,
		idle:      idle,
		now:       now,
		lastSweep: now(),
		buckets:   map[string]*bucket{},
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) >= s.idle {
		for k, b := range s.buckets {
			if now.Sub(b.seen) >= s.idle {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(s.rps, s.burst)}
		s.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// RateLimit applies a token bucket per authenticated user, falling back to
// the remote address. rps <= 0 disables limiting.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	set := newLimiterSet(rps, burst, time.Now)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := UserID(r.Context())
			if key == "" {
				key = remoteIP(r)
			}
			if !set.allow(key) {
				w.Header().Set("Retry-After", "1")
				writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
