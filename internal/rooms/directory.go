// Package rooms implements the per-room directory: existence, ownership,
// membership, block-list, and the ordered playlist, all stored on the room's
// shard under the keyspace
//
//	rooms:<id>                room existence flag
//	rooms:<id>:owner          owner's opaque user token
//	rooms:<id>:users          member set
//	rooms:<id>:blocked        block set
//	rooms:<id>:playlist       ordered list of song uids
//	rooms:<id>:songs:<uid>    per-song detail hash
//	rooms:<id>:next-song-uid  song uid counter
//
// Multi-key writes whose keys all live on the room's shard run as single
// EVAL scripts so readers never observe a half-applied mutation. Room
// deletion is the exception: it enumerates dynamically named song keys and
// stays a best-effort multi-step sequence.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/tubedj/backend/internal/ids"
	"github.com/tubedj/backend/internal/shard"
)

var (
	// ErrRoomNotFound indicates the room does not exist on its shard.
	ErrRoomNotFound = errors.New("room not found")

	// ErrPlaylistEmpty is the checked outcome of popping an empty
	// playlist. Distinct from ErrEntryNotFound by design.
	ErrPlaylistEmpty = errors.New("playlist empty")

	// ErrEntryNotFound indicates a song uid with no playlist entry.
	ErrEntryNotFound = errors.New("playlist entry not found")
)

const counterKey = "next-room-id"

// Directory creates and resolves rooms across the shard set.
type Directory struct {
	router  *shard.Router
	codec   *ids.Codec
	timeout time.Duration
}

// NewDirectory builds a room directory over the given router and codec.
// Every single store operation is bounded by timeout.
func NewDirectory(router *shard.Router, codec *ids.Codec, timeout time.Duration) *Directory {
	return &Directory{router: router, codec: codec, timeout: timeout}
}

// Create allocates a room on the next round-robin shard and initializes it
// in one atomic script: existence flag, owner, and the song-uid counter.
// A failed init leaves no publicly resolvable room behind.
func (d *Directory) Create(ctx context.Context, ownerToken string) (*Room, error) {
	s := d.router.PickForCreate()

	opCtx, cancel := d.opCtx(ctx)
	defer cancel()

	localID, err := s.Client.Do(opCtx, s.Client.B().Incr().Key(counterKey).Build()).AsInt64()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate room id: %w", err)
	}

	token, err := d.codec.Encode(s.ID, localID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode room token: %w", err)
	}

	room := &Room{dir: d, shardID: s.ID, localID: localID, token: token, client: s.Client, owner: ownerToken}

	initCtx, cancel := d.opCtx(ctx)
	defer cancel()

	err = s.Client.Do(initCtx, s.Client.B().Eval().
		Script(scriptInitRoom).
		Numkeys(3).
		Key(room.baseKey(), room.key("owner"), room.key("next-song-uid")).
		Arg(ownerToken).
		Build()).Error()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize room: %w", err)
	}
	return room, nil
}

// Resolve decodes a token into a room handle bound to its shard connection.
// It does not check existence; callers that act on the room must.
func (d *Directory) Resolve(token string) (*Room, error) {
	shardID, localID, err := d.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	client, err := d.router.Resolve(shardID)
	if err != nil {
		return nil, err
	}
	return &Room{dir: d, shardID: shardID, localID: localID, token: token, client: client}, nil
}

func (d *Directory) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

// helpers shared with the Room handle

func sismember(ctx context.Context, c valkey.Client, key, member string) (bool, error) {
	return c.Do(ctx, c.B().Sismember().Key(key).Member(member).Build()).AsBool()
}

func parseUID(s string) (int64, error) {
	uid, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed song uid %q: %w", s, err)
	}
	return uid, nil
}
