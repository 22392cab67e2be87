package authflow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingClaim     = errors.New("missing subject claim")
	ErrTokenExpired     = errors.New("token expired")
)

// Claims are the verified fields of the identity token issued by the
// provider. Nothing is read from the payload before the signature check.
type Claims struct {
	Subject   string `json:"sub"`
	Name      string `json:"name"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// IdentityVerifier checks HS256 identity tokens against the pre-shared
// secret. The consent-flow access token is never passed through here; it is
// stored opaquely.
type IdentityVerifier struct {
	secret  []byte
	nowFunc func() time.Time
}

func NewIdentityVerifier(secret string) *IdentityVerifier {
	return &IdentityVerifier{secret: []byte(secret), nowFunc: time.Now}
}

func (v *IdentityVerifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMalformedToken
	}
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}

	expectedSig := signSegments(v.secret, parts[0], parts[1])
	if !hmac.Equal([]byte(parts[2]), []byte(expectedSig)) {
		return nil, ErrInvalidSignature
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrMalformedToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrMalformedToken
	}

	if claims.Subject == "" {
		return nil, ErrMissingClaim
	}
	if claims.ExpiresAt != 0 && v.nowFunc().Unix() > claims.ExpiresAt {
		return nil, ErrTokenExpired
	}

	return &claims, nil
}

func signSegments(secret []byte, header, payload string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(header))
	h.Write([]byte("."))
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
