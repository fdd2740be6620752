package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tarancss/safesave/lib/metrics"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	claimsKey
)

// maxLimiters bounds the number of clients tracked by the rate limiter.
const maxLimiters = 10000

// Claims are the JWT claims of a connected wallet.
type Claims struct {
	WalletAddress string  `json:"walletAddress"`
	StakeAddress  *string `json:"stakeAddress"`
	jwt.RegisteredClaims
}

// ErrNoSecret is returned when tokens cannot be issued or verified.
var ErrNoSecret = errors.New("JWT secret not configured")

// requestLogger assigns a request id to every request and logs its outcome.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", id)

		rec := &metrics.StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))

		entry := log.WithFields(log.Fields{
			"id":       id,
			"remote":   r.RemoteAddr,
			"method":   r.Method,
			"uri":      r.RequestURI,
			"status":   rec.Status,
			"duration": time.Since(start).String(),
		})
		if rec.Status >= http.StatusInternalServerError {
			entry.Warn("httpreq")
		} else {
			entry.Info("httpreq")
		}
	})
}

// logger returns the log entry of the request.
func logger(r *http.Request) *log.Entry {
	id, _ := r.Context().Value(requestIDKey).(string)

	return log.WithField("id", id)
}

// cors allows the configured origins, a comma separated list or "*".
func (s *Service) cors(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool)

	for _, o := range strings.Split(s.conf.CORSOrigins, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}

		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && (allowAll || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")
			w.Header().Add("Vary", "Origin")
		}
		// preflight requests
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimiter keeps a token bucket per client ip.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// newRateLimiter returns a limiter of rps requests per second and client. A non positive rps disables it.
func newRateLimiter(rps, burst int) *rateLimiter {
	if rps <= 0 {
		return nil
	}

	if burst < rps {
		burst = rps
	}

	return &rateLimiter{limiters: make(map[string]*rate.Limiter), rate: rate.Limit(rps), burst: burst}
}

func (rl *rateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= maxLimiters {
			rl.limiters = make(map[string]*rate.Limiter)
		}

		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = l
	}

	return l
}

func (rl *rateLimiter) handler(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			key = r.RemoteAddr
		}

		if !rl.get(key).Allow() {
			logger(r).Warnf("Rate limit exceeded by %s", key)
			reply(w, r, 0, nil, &AppError{Message: "Too many requests, please try again later", StatusCode: http.StatusTooManyRequests})

			return
		}

		next.ServeHTTP(w, r)
	})
}

// issueToken returns a signed token for the wallet and its expiry.
func (s *Service) issueToken(wallet, stake string) (string, error) {
	if s.conf.JWTSecret == "" {
		return "", ErrNoSecret
	}

	now := s.now()
	c := Claims{
		WalletAddress: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL())),
		},
	}

	if stake != "" {
		c.StakeAddress = &stake
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(s.conf.JWTSecret))
}

func (s *Service) tokenTTL() time.Duration {
	if s.conf.TokenTTL <= 0 {
		return 24 * time.Hour
	}

	return time.Duration(s.conf.TokenTTL) * time.Hour
}

// parseToken validates a bearer token and returns its claims.
func (s *Service) parseToken(token string) (*Claims, error) {
	if s.conf.JWTSecret == "" {
		return nil, ErrNoSecret
	}

	c := new(Claims)

	_, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.conf.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	if c.WalletAddress == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return c, nil
}

// authenticate requires a valid wallet token in the Authorization header and passes its claims to h.
func (s *Service) authenticate(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token == "" {
			reply(w, r, 0, nil, unauthorized("Not authorized, no token"))

			return
		}

		c, err := s.parseToken(token)
		if err != nil {
			logger(r).Debugf("Token rejected: %v", err)

			if errors.Is(err, ErrNoSecret) {
				reply(w, r, 0, nil, err)
			} else {
				reply(w, r, 0, nil, unauthorized("Not authorized, invalid token"))
			}

			return
		}

		h(w, r.WithContext(context.WithValue(r.Context(), claimsKey, c)))
	})
}

// user returns the claims of the authenticated wallet.
func user(r *http.Request) *Claims {
	c, _ := r.Context().Value(claimsKey).(*Claims)
	if c == nil {
		return &Claims{}
	}

	return c
}
