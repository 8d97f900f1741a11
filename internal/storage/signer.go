package storage

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// URLSigner issues and verifies signed receipt-view URLs. A signed URL is a
// capability: whoever holds it can read exactly one object until the grant
// expires. Grants are HMAC tokens carrying the object path and expiry; the
// view endpoint verifies them without a session.
type URLSigner struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
}

func NewURLSigner(secret []byte, baseURL string, ttl time.Duration) *URLSigner {
	return &URLSigner{secret: secret, baseURL: baseURL, ttl: ttl}
}

// TTL returns the validity window applied to issued grants.
func (s *URLSigner) TTL() time.Duration { return s.ttl }

// Sign issues a view URL for the object path, valid until the returned time.
func (s *URLSigner) Sign(path string) (string, time.Time, error) {
	expiresAt := time.Now().Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"path": path,
		"exp":  expiresAt.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign view grant: %w", err)
	}
	return s.baseURL + "/api/receipts/view?token=" + url.QueryEscape(signed), expiresAt, nil
}

// Verify checks a grant token and returns the object path it covers.
// Expired or tampered tokens fail verification.
func (s *URLSigner) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid view grant: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid view grant claims")
	}
	path, ok := claims["path"].(string)
	if !ok || path == "" {
		return "", fmt.Errorf("view grant missing object path")
	}
	return path, nil
}
