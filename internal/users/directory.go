// Package users is the sharded user directory. Each user lives on one shard
// under a single hash:
//
//	users:<localID>  hash {name, socket, current-room}
//
// Keys use the shard-local numeric id; the opaque token callers hold encodes
// (shardID, localID) and is translated at the directory boundary. Users are
// created once per identity and never deleted in normal operation.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tubedj/backend/internal/ids"
	"github.com/tubedj/backend/internal/models"
	"github.com/tubedj/backend/internal/shard"
)

// ErrUserNotFound means the token decoded cleanly but no user record exists
// behind it.
var ErrUserNotFound = errors.New("user not found")

const counterKey = "next-user-id"

// Directory creates and resolves user handles.
type Directory struct {
	router  *shard.Router
	codec   *ids.Codec
	timeout time.Duration
}

// NewDirectory wires the directory to its shard router and id codec.
func NewDirectory(router *shard.Router, codec *ids.Codec, timeout time.Duration) *Directory {
	return &Directory{router: router, codec: codec, timeout: timeout}
}

func (d *Directory) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

// Create allocates a user on the next shard in rotation and stores the
// display name. Name validation is the caller's job; the directory stores
// what it is given.
func (d *Directory) Create(ctx context.Context, name string) (*User, error) {
	s := d.router.PickForCreate()

	opCtx, cancel := d.opCtx(ctx)
	defer cancel()

	localID, err := s.Client.Do(opCtx, s.Client.B().Incr().Key(counterKey).Build()).AsInt64()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate user id: %w", err)
	}

	token, err := d.codec.Encode(s.ID, localID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user id: %w", err)
	}

	u := &User{dir: d, shardID: s.ID, localID: localID, token: token, client: s.Client}
	err = s.Client.Do(opCtx, s.Client.B().Hset().Key(u.key()).FieldValue().FieldValue("name", name).Build()).Error()
	if err != nil {
		return nil, fmt.Errorf("failed to store user record: %w", err)
	}
	return u, nil
}

// Resolve turns an opaque token into a user handle. It validates the token
// and the shard, not the record; Exists answers whether the user is real.
func (d *Directory) Resolve(token string) (*User, error) {
	shardID, localID, err := d.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	client, err := d.router.Resolve(shardID)
	if err != nil {
		return nil, err
	}
	return &User{dir: d, shardID: shardID, localID: localID, token: token, client: client}, nil
}

// TokenExists reports whether a live user record sits behind the token. An
// invalid token is an error, a valid token with no record is (false, nil).
func (d *Directory) TokenExists(ctx context.Context, token string) (bool, error) {
	u, err := d.Resolve(token)
	if err != nil {
		return false, err
	}
	return u.Exists(ctx)
}

// PublicViews resolves tokens to their public shape concurrently. Tokens
// whose record is gone are dropped; the rest come back in input order.
func (d *Directory) PublicViews(ctx context.Context, tokens []string) ([]models.PublicUser, error) {
	if len(tokens) == 0 {
		return []models.PublicUser{}, nil
	}

	slots := make([]*models.PublicUser, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	for i, token := range tokens {
		g.Go(func() error {
			u, err := d.Resolve(token)
			if err != nil {
				return err
			}
			name, err := u.Name(gctx)
			if errors.Is(err, ErrUserNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			slots[i] = &models.PublicUser{ID: token, Name: name}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	views := make([]models.PublicUser, 0, len(slots))
	for _, v := range slots {
		if v != nil {
			views = append(views, *v)
		}
	}
	return views, nil
}
