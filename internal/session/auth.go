// Package session authenticates browser sessions. The session cookie carries
// a signed JWT whose only payload is the opaque user token; possession of a
// validly signed token is the entire credential. Sessions do not expire, so
// the claims carry no expiry and validation checks none.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tubedj/backend/internal/ids"
)

var (
	// ErrTamperedSession means the cookie value failed signature
	// verification against every configured key.
	ErrTamperedSession = errors.New("session signature invalid")

	// ErrCorruptIdentity means the signature verified but the embedded
	// user token does not decode.
	ErrCorruptIdentity = errors.New("session identity corrupt")

	// ErrStaleIdentity means the token decoded but no user record exists
	// behind it anymore.
	ErrStaleIdentity = errors.New("session identity stale")
)

// Identity is a verified session's resolved user.
type Identity struct {
	Token   string
	ShardID int
	LocalID int64
}

// ExistenceChecker answers whether a live user record backs a token.
type ExistenceChecker interface {
	TokenExists(ctx context.Context, token string) (bool, error)
}

// Claims is the JWT payload: just the opaque user token.
type Claims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies session tokens. Keys are ordered newest
// first; the newest signs, every configured key verifies, so old sessions
// survive a key rotation.
type Authenticator struct {
	keys  [][]byte
	codec *ids.Codec
	users ExistenceChecker
}

// NewAuthenticator requires at least one signing key.
func NewAuthenticator(keys []string, codec *ids.Codec, users ExistenceChecker) (*Authenticator, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one session key is required")
	}
	byteKeys := make([][]byte, len(keys))
	for i, k := range keys {
		byteKeys[i] = []byte(k)
	}
	return &Authenticator{keys: byteKeys, codec: codec, users: users}, nil
}

// Issue signs a session token for the user. The kid header records which
// key slot signed it, for diagnostics only; verification tries all keys.
func (a *Authenticator) Issue(userToken string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UID: userToken})
	token.Header["kid"] = strconv.Itoa(0)

	signed, err := token.SignedString(a.keys[0])
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Authenticate classifies a raw cookie value into one of four outcomes:
// missing value is anonymous (nil identity, nil error); a bad signature is
// ErrTamperedSession; a good signature over an undecodable token is
// ErrCorruptIdentity; a decodable token with no user behind it is
// ErrStaleIdentity.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*Identity, error) {
	if raw == "" {
		return nil, nil
	}

	claims, err := a.verify(raw)
	if err != nil {
		return nil, err
	}

	shardID, localID, err := a.codec.Decode(claims.UID)
	if err != nil {
		return nil, ErrCorruptIdentity
	}

	exists, err := a.users.TokenExists(ctx, claims.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify session identity: %w", err)
	}
	if !exists {
		return nil, ErrStaleIdentity
	}

	return &Identity{Token: claims.UID, ShardID: shardID, LocalID: localID}, nil
}

func (a *Authenticator) verify(raw string) (*Claims, error) {
	for _, key := range a.keys {
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err == nil && token.Valid {
			return claims, nil
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrSignatureInvalid) {
			// Try the next rotation key.
			continue
		}
		return nil, ErrTamperedSession
	}
	return nil, ErrTamperedSession
}
