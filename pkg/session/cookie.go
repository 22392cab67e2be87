package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const CookieName = "accura_session"

type contextKey string

const sessionContextKey contextKey = "session_id"

// CookieManager issues and verifies the opaque session cookie. The cookie
// value is the session id plus an HMAC-SHA256 signature; the id itself is
// never trusted without the signature.
type CookieManager struct {
	secret []byte
	ttl    time.Duration
}

func NewCookieManager(secret string, ttl time.Duration) *CookieManager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &CookieManager{secret: []byte(secret), ttl: ttl}
}

func (m *CookieManager) encode(id string) string {
	return id + "." + m.sign(id)
}

func (m *CookieManager) decode(value string) (string, bool) {
	idx := strings.LastIndexByte(value, '.')
	if idx <= 0 {
		return "", false
	}
	id, sig := value[:idx], value[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(m.sign(id))) {
		return "", false
	}
	return id, true
}

func (m *CookieManager) sign(id string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Middleware resolves the caller's session id, minting a new session when
// the cookie is absent or fails verification, and exposes the id via the
// request context.
func (m *CookieManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if cookie, err := r.Cookie(CookieName); err == nil {
			if decoded, ok := m.decode(cookie.Value); ok {
				id = decoded
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    m.encode(id),
				Path:     "/",
				MaxAge:   int(m.ttl.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the session id resolved by Middleware.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionContextKey).(string); ok {
		return id
	}
	return ""
}

// WithSessionID is used by tests to inject a session id directly.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionContextKey, id)
}
