// Package identity adapts the external identity provider. The service never
// authenticates anyone itself; it only resolves a bearer token into the
// identity snapshot the provider established.
package identity

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
)

// Identity is what the provider asserts about a caller.
type Identity struct {
	UserID      string
	DisplayName string
	IsStaff     bool
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Provider resolves bearer tokens issued by the identity provider.
type Provider interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// HashToken digests a token for use as a storage key, so raw tokens never
// land in Redis or logs.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
