package users

import (
	"context"
	"fmt"
	"strconv"

	"github.com/valkey-io/valkey-go"
)

// KEYS[1] user hash; ARGV[1] socket id the caller believes it owns. The
// binding is cleared only if it still matches, so a reconnect that rebound
// the user is not clobbered by the old connection's teardown.
const scriptClearSocket = `if redis.call('HGET', KEYS[1], 'socket') == ARGV[1] then
  redis.call('HDEL', KEYS[1], 'socket')
  return 1
end
return 0`

// User is a handle to one user, bound to the shard connection it lives on.
type User struct {
	dir     *Directory
	shardID int
	localID int64
	token   string
	client  valkey.Client
}

// Token returns the opaque user-facing identifier.
func (u *User) Token() string { return u.token }

func (u *User) key() string { return "users:" + strconv.FormatInt(u.localID, 10) }

// Exists reports whether the user record is present on its shard.
func (u *User) Exists(ctx context.Context) (bool, error) {
	opCtx, cancel := u.dir.opCtx(ctx)
	defer cancel()

	n, err := u.client.Do(opCtx, u.client.B().Exists().Key(u.key()).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return n > 0, nil
}

// Name returns the display name.
func (u *User) Name(ctx context.Context) (string, error) {
	opCtx, cancel := u.dir.opCtx(ctx)
	defer cancel()

	name, err := u.client.Do(opCtx, u.client.B().Hget().Key(u.key()).Field("name").Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to read user name: %w", err)
	}
	return name, nil
}

// Rename overwrites the display name.
func (u *User) Rename(ctx context.Context, name string) error {
	opCtx, cancel := u.dir.opCtx(ctx)
	defer cancel()

	err := u.client.Do(opCtx, u.client.B().Hset().Key(u.key()).FieldValue().FieldValue("name", name).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to rename user: %w", err)
	}
	return nil
}

// CurrentRoom returns the room token the user is in, if any.
func (u *User) CurrentRoom(ctx context.Context) (string, bool, error) {
	return u.optionalField(ctx, "current-room")
}

// SetCurrentRoom overwrites the current-room pointer.
func (u *User) SetCurrentRoom(ctx context.Context, roomToken string) error {
	return u.setField(ctx, "current-room", roomToken)
}

// ClearCurrentRoom removes the current-room pointer. Idempotent.
func (u *User) ClearCurrentRoom(ctx context.Context) error {
	opCtx, cancel := u.dir.opCtx(ctx)
	defer cancel()

	err := u.client.Do(opCtx, u.client.B().Hdel().Key(u.key()).Field("current-room").Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to clear current room: %w", err)
	}
	return nil
}

// SocketBinding returns the live socket id, if any.
func (u *User) SocketBinding(ctx context.Context) (string, bool, error) {
	return u.optionalField(ctx, "socket")
}

// BindSocket overwrites the socket binding; a newer connection always wins.
func (u *User) BindSocket(ctx context.Context, socketID string) error {
	return u.setField(ctx, "socket", socketID)
}

// ClearSocketBinding removes the binding only if it still names socketID.
// Returns false when a newer connection already replaced it.
func (u *User) ClearSocketBinding(ctx context.Context, socketID string) (bool, error) {
	opCtx, cancel := u.dir.opCtx(ctx)
	defer cancel()

	n, err := u.client.Do(opCtx, u.client.B().Eval().
		Script(scriptClearSocket).
		Numkeys(1).
		Key(u.key()).
		Arg(socketID).
		Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to clear socket binding: %w", err)
	}
	return n == 1, nil
}

func (u *User) optionalField(ctx context.Context, field string) (string, bool, error) {
	opCtx, cancel := u.dir.opCtx(ctx)
	defer cancel()

	val, err := u.client.Do(opCtx, u.client.B().Hget().Key(u.key()).Field(field).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read user %s: %w", field, err)
	}
	return val, true, nil
}

func (u *User) setField(ctx context.Context, field, val string) error {
	opCtx, cancel := u.dir.opCtx(ctx)
	defer cancel()

	err := u.client.Do(opCtx, u.client.B().Hset().Key(u.key()).FieldValue().FieldValue(field, val).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to set user %s: %w", field, err)
	}
	return nil
}
