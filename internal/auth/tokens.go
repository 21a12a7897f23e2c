package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Audience is stamped into every spectator token and required on verification.
const Audience = "arena-spectate"

var (
	// ErrInvalidToken indicates the token failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
	// ErrWrongAudience rejects tokens minted for another service.
	ErrWrongAudience = errors.New("token audience mismatch")
)

// Claims is the compact JWT payload carried by spectator tokens.
type Claims struct {
	Subject   string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
}

type tokenPayload struct {
	Subject  string `json:"sub"`
	Expires  int64  `json:"exp"`
	Issued   int64  `json:"iat"`
	Audience string `json:"aud"`
}

// Tokens issues and verifies HS256 spectator tokens with a shared secret.
type Tokens struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// NewTokens constructs a token authority for the supplied secret and clock skew allowance.
func NewTokens(secret string, leeway time.Duration) (*Tokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &Tokens{secret: []byte(secret), now: time.Now, leeway: leeway}, nil
}

// WithClock overrides the clock, enabling deterministic unit tests.
func (t *Tokens) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	t.now = clock
}

// Issue mints a token for subject that expires after ttl.
func (t *Tokens) Issue(subject string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("token subject must not be empty")
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	now := t.now()
	header, err := json.Marshal(tokenHeader{Algorithm: "HS256", Type: "JWT"})
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(tokenPayload{
		Subject:  subject,
		Expires:  now.Add(ttl).Unix(),
		Issued:   now.Unix(),
		Audience: Audience,
	})
	if err != nil {
		return "", err
	}
	signingInput := encodeSegment(header) + "." + encodeSegment(payload)
	return signingInput + "." + encodeSegment(t.sign([]byte(signingInput))), nil
}

// Verify parses the token, validates signature, audience and expiry, and returns the claims.
func (t *Tokens) Verify(token string) (*Claims, error) {
	if t == nil || len(t.secret) == 0 {
		return nil, errors.New("token authority not initialised")
	}
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	var header tokenHeader
	if err := decodeJSONSegment(parts[0], &header); err != nil {
		return nil, ErrInvalidToken
	}
	if header.Algorithm != "HS256" {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, header.Algorithm)
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidToken
	}
	//1.- Compare in constant time before trusting any payload field.
	if !hmac.Equal(signature, t.sign([]byte(parts[0]+"."+parts[1]))) {
		return nil, ErrInvalidToken
	}

	var payload tokenPayload
	if err := decodeJSONSegment(parts[1], &payload); err != nil {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(payload.Subject) == "" || payload.Expires <= 0 {
		return nil, ErrInvalidToken
	}
	if payload.Audience != Audience {
		return nil, ErrWrongAudience
	}
	expiresAt := time.Unix(payload.Expires, 0)
	if expiresAt.Add(t.leeway).Before(t.now()) {
		return nil, ErrExpiredToken
	}
	return &Claims{
		Subject:   payload.Subject,
		Audience:  payload.Audience,
		IssuedAt:  time.Unix(payload.Issued, 0),
		ExpiresAt: expiresAt,
	}, nil
}

func (t *Tokens) sign(input []byte) []byte {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write(input)
	return mac.Sum(nil)
}

func encodeSegment(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeJSONSegment(segment string, dst any) error {
	data, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
