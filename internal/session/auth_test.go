package session

import (
	"context"
	"errors"
	"testing"

	"github.com/tubedj/backend/internal/ids"
)

type fakeExistence struct {
	live map[string]bool
	err  error
}

func (f *fakeExistence) TokenExists(_ context.Context, token string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.live[token], nil
}

func newTestAuthenticator(t *testing.T, keys []string, users *fakeExistence) (*Authenticator, *ids.Codec) {
	t.Helper()
	codec, err := ids.NewCodec(ids.Config{Key: "user-test-key", MinLength: 8})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	auth, err := NewAuthenticator(keys, codec, users)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return auth, codec
}

func mustEncode(t *testing.T, codec *ids.Codec, shardID int, localID int64) string {
	t.Helper()
	token, err := codec.Encode(shardID, localID)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return token
}

func TestAuthenticateRoundTrip(t *testing.T) {
	users := &fakeExistence{live: map[string]bool{}}
	auth, codec := newTestAuthenticator(t, []string{"key-a"}, users)

	userToken := mustEncode(t, codec, 1, 42)
	users.live[userToken] = true

	signed, err := auth.Issue(userToken)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	identity, err := auth.Authenticate(context.Background(), signed)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity == nil {
		t.Fatal("Authenticate returned nil identity")
	}
	if identity.Token != userToken || identity.ShardID != 1 || identity.LocalID != 42 {
		t.Errorf("identity = %+v", identity)
	}
}

func TestAuthenticateMissingCookieIsAnonymous(t *testing.T) {
	auth, _ := newTestAuthenticator(t, []string{"key-a"}, &fakeExistence{})

	identity, err := auth.Authenticate(context.Background(), "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity != nil {
		t.Errorf("identity = %+v, want nil", identity)
	}
}

func TestAuthenticateRejectsTampering(t *testing.T) {
	users := &fakeExistence{live: map[string]bool{}}
	auth, codec := newTestAuthenticator(t, []string{"key-a"}, users)

	userToken := mustEncode(t, codec, 0, 1)
	users.live[userToken] = true

	signed, err := auth.Issue(userToken)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for _, raw := range []string{
		"garbage",
		signed + "x",
		signed[:len(signed)-2],
	} {
		if _, err := auth.Authenticate(context.Background(), raw); !errors.Is(err, ErrTamperedSession) {
			t.Errorf("Authenticate(%q) error = %v, want ErrTamperedSession", raw, err)
		}
	}
}

func TestAuthenticateRejectsForeignKey(t *testing.T) {
	users := &fakeExistence{live: map[string]bool{}}
	other, codec := newTestAuthenticator(t, []string{"other-key"}, users)
	auth, _ := newTestAuthenticator(t, []string{"key-a"}, users)

	userToken := mustEncode(t, codec, 0, 1)
	users.live[userToken] = true

	signed, err := other.Issue(userToken)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := auth.Authenticate(context.Background(), signed); !errors.Is(err, ErrTamperedSession) {
		t.Errorf("Authenticate error = %v, want ErrTamperedSession", err)
	}
}

func TestAuthenticateSurvivesKeyRotation(t *testing.T) {
	users := &fakeExistence{live: map[string]bool{}}
	old, codec := newTestAuthenticator(t, []string{"key-old"}, users)

	userToken := mustEncode(t, codec, 0, 7)
	users.live[userToken] = true

	signed, err := old.Issue(userToken)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// A new key rotated in front; the old key still verifies.
	rotated, _ := newTestAuthenticator(t, []string{"key-new", "key-old"}, users)
	identity, err := rotated.Authenticate(context.Background(), signed)
	if err != nil {
		t.Fatalf("Authenticate after rotation: %v", err)
	}
	if identity.Token != userToken {
		t.Errorf("identity.Token = %q, want %q", identity.Token, userToken)
	}
}

func TestAuthenticateCorruptIdentity(t *testing.T) {
	users := &fakeExistence{live: map[string]bool{}}
	auth, _ := newTestAuthenticator(t, []string{"key-a"}, users)

	// Validly signed, but the uid claim is not a decodable token.
	signed, err := auth.Issue("not-a-real-token!!!")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := auth.Authenticate(context.Background(), signed); !errors.Is(err, ErrCorruptIdentity) {
		t.Errorf("Authenticate error = %v, want ErrCorruptIdentity", err)
	}
}

func TestAuthenticateStaleIdentity(t *testing.T) {
	users := &fakeExistence{live: map[string]bool{}}
	auth, codec := newTestAuthenticator(t, []string{"key-a"}, users)

	userToken := mustEncode(t, codec, 0, 99)

	signed, err := auth.Issue(userToken)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := auth.Authenticate(context.Background(), signed); !errors.Is(err, ErrStaleIdentity) {
		t.Errorf("Authenticate error = %v, want ErrStaleIdentity", err)
	}
}

func TestNewAuthenticatorRequiresKeys(t *testing.T) {
	codec, err := ids.NewCodec(ids.Config{Key: "k", MinLength: 8})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if _, err := NewAuthenticator(nil, codec, &fakeExistence{}); err == nil {
		t.Error("NewAuthenticator accepted empty key list")
	}
}
