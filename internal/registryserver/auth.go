package registryserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AnyDoc is the doc claim that grants write access to every key.
const AnyDoc = "*"

var (
	errMissingToken = errors.New("missing bearer token")
	errWrongDoc     = errors.New("token does not grant access to this document")
)

// Claims are the claims of a registry write token.
type Claims struct {
	// Doc is the document key the token may write, or AnyDoc.
	Doc string `json:"doc"`
	jwt.RegisteredClaims
}

// MintToken issues an HS256 write token for key. A zero ttl never expires.
func MintToken(key string, secret []byte, ttl time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("document key is required")
	}
	if len(secret) == 0 {
		return "", fmt.Errorf("signing key is required")
	}

	now := time.Now()
	claims := Claims{
		Doc: key,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "tripsync-writer",
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// authorize checks the request's bearer token against key.
func authorize(r *http.Request, key string, secret []byte) error {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return errMissingToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	if claims.Doc != key && claims.Doc != AnyDoc {
		return errWrongDoc
	}
	return nil
}
