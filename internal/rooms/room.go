package rooms

import (
	"context"
	"fmt"
	"strconv"

	"github.com/valkey-io/valkey-go"
	"golang.org/x/sync/errgroup"

	"github.com/tubedj/backend/internal/models"
)

// Mutations touching more than one key run as scripts so their effects are
// visible all-or-nothing. Shards are single instances, not clusters, so
// building the dynamically named song key inside a script is safe.
const (
	scriptInitRoom = `redis.call('SET', KEYS[1], '1')
redis.call('SET', KEYS[2], ARGV[1])
redis.call('SET', KEYS[3], '0')
return 1`

	// KEYS[1] song detail hash, KEYS[2] playlist; ARGV[1] uid, then
	// alternating field/value pairs.
	scriptAddSong = `for i = 2, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1`

	// KEYS[1] playlist; ARGV[1] song key prefix.
	scriptPopFront = `local uid = redis.call('LPOP', KEYS[1])
if not uid then
  return false
end
redis.call('DEL', ARGV[1] .. uid)
return uid`

	// KEYS[1] song detail hash, KEYS[2] playlist; ARGV[1] uid.
	scriptRemoveSong = `local deleted = redis.call('DEL', KEYS[1])
local removed = redis.call('LREM', KEYS[2], 1, ARGV[1])
return deleted + removed`
)

// Room is a handle to one room, bound to the shard connection it lives on.
// Handles are cheap per-request values; only the owner token is cached on
// the handle, because ownership is immutable for the room's lifetime.
type Room struct {
	dir     *Directory
	shardID int
	localID int64
	token   string
	client  valkey.Client
	owner   string
}

// Token returns the opaque user-facing room identifier.
func (r *Room) Token() string { return r.token }

func (r *Room) baseKey() string { return "rooms:" + strconv.FormatInt(r.localID, 10) }

func (r *Room) key(sub string) string { return r.baseKey() + ":" + sub }

func (r *Room) songKey(uid int64) string {
	return r.key("songs:" + strconv.FormatInt(uid, 10))
}

// Exists reports whether the room's existence flag is set on its shard.
func (r *Room) Exists(ctx context.Context) (bool, error) {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	n, err := r.client.Do(opCtx, r.client.B().Exists().Key(r.baseKey()).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check room existence: %w", err)
	}
	return n > 0, nil
}

// Owner returns the owner's opaque user token. The owner never changes, so
// the first read is cached on the handle.
func (r *Room) Owner(ctx context.Context) (string, error) {
	if r.owner != "" {
		return r.owner, nil
	}

	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	owner, err := r.client.Do(opCtx, r.client.B().Get().Key(r.key("owner")).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", ErrRoomNotFound
		}
		return "", fmt.Errorf("failed to read room owner: %w", err)
	}
	r.owner = owner
	return owner, nil
}

// IsOwner reports whether the given user token owns this room.
func (r *Room) IsOwner(ctx context.Context, userToken string) (bool, error) {
	owner, err := r.Owner(ctx)
	if err != nil {
		return false, err
	}
	return owner == userToken, nil
}

// HasMember reports whether the user is in the member set.
func (r *Room) HasMember(ctx context.Context, userToken string) (bool, error) {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	ok, err := sismember(opCtx, r.client, r.key("users"), userToken)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

// AddMember adds the user to the member set. Idempotent.
func (r *Room) AddMember(ctx context.Context, userToken string) error {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	err := r.client.Do(opCtx, r.client.B().Sadd().Key(r.key("users")).Member(userToken).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveMember removes the user from the member set. Idempotent.
func (r *Room) RemoveMember(ctx context.Context, userToken string) error {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	err := r.client.Do(opCtx, r.client.B().Srem().Key(r.key("users")).Member(userToken).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// Members returns the member set in no particular order.
func (r *Room) Members(ctx context.Context) ([]string, error) {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	members, err := r.client.Do(opCtx, r.client.B().Smembers().Key(r.key("users")).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// IsBlocked reports whether the user is on the block-list.
func (r *Room) IsBlocked(ctx context.Context, userToken string) (bool, error) {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	ok, err := sismember(opCtx, r.client, r.key("blocked"), userToken)
	if err != nil {
		return false, fmt.Errorf("failed to check block-list: %w", err)
	}
	return ok, nil
}

// Block adds the user to the block-list. Blocking does not touch the member
// set; eviction is the coordinator's separate best-effort step.
func (r *Room) Block(ctx context.Context, userToken string) error {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	err := r.client.Do(opCtx, r.client.B().Sadd().Key(r.key("blocked")).Member(userToken).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to block user: %w", err)
	}
	return nil
}

// Unblock removes the user from the block-list. Idempotent.
func (r *Room) Unblock(ctx context.Context, userToken string) error {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	err := r.client.Do(opCtx, r.client.B().Srem().Key(r.key("blocked")).Member(userToken).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to unblock user: %w", err)
	}
	return nil
}

// AllocateSongUID atomically increments the room's song uid counter. A uid
// is never reused while its entry exists.
func (r *Room) AllocateSongUID(ctx context.Context) (int64, error) {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	uid, err := r.client.Do(opCtx, r.client.B().Incr().Key(r.key("next-song-uid")).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate song uid: %w", err)
	}
	return uid, nil
}

// AddToPlaylist writes the entry's detail record and appends its uid to the
// order list in one script, so the entry becomes visible to readers only
// with both halves present.
func (r *Room) AddToPlaylist(ctx context.Context, entry models.PlaylistEntry) error {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	uid := strconv.FormatInt(entry.UID, 10)
	args := []string{
		uid,
		"uid", uid,
		"owner", entry.Owner,
		"id", entry.ID,
		"external", boolField(entry.External),
		"title", entry.Title,
		"artist", entry.Artist,
		"album", entry.Album,
		"length", strconv.FormatInt(entry.Length, 10),
	}

	err := r.client.Do(opCtx, r.client.B().Eval().
		Script(scriptAddSong).
		Numkeys(2).
		Key(r.songKey(entry.UID), r.key("playlist")).
		Arg(args...).
		Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to add song to playlist: %w", err)
	}
	return nil
}

// Playlist reads the order list, then hydrates each entry's detail record
// concurrently. Entries whose detail record vanished mid-read are dropped
// without reordering the rest; that torn-read policy is uniform and final.
func (r *Room) Playlist(ctx context.Context) ([]models.PlaylistEntry, error) {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	uids, err := r.client.Do(opCtx, r.client.B().Lrange().Key(r.key("playlist")).Start(0).Stop(-1).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist order: %w", err)
	}
	if len(uids) == 0 {
		return []models.PlaylistEntry{}, nil
	}

	slots := make([]*models.PlaylistEntry, len(uids))
	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range uids {
		g.Go(func() error {
			uid, err := parseUID(raw)
			if err != nil {
				return err
			}

			hCtx, cancel := r.dir.opCtx(gctx)
			defer cancel()

			fields, err := r.client.Do(hCtx, r.client.B().Hgetall().Key(r.songKey(uid)).Build()).AsStrMap()
			if err != nil {
				return fmt.Errorf("failed to read song %d: %w", uid, err)
			}
			if len(fields) == 0 {
				// Removed concurrently; drop it.
				return nil
			}
			entry := entryFromFields(uid, fields)
			slots[i] = &entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	playlist := make([]models.PlaylistEntry, 0, len(slots))
	for _, entry := range slots {
		if entry != nil {
			playlist = append(playlist, *entry)
		}
	}
	return playlist, nil
}

// PopFront removes the head of the playlist and its detail record, returning
// the popped uid. Popping an empty playlist is the checked ErrPlaylistEmpty
// outcome, never a generic not-found.
func (r *Room) PopFront(ctx context.Context) (int64, error) {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	raw, err := r.client.Do(opCtx, r.client.B().Eval().
		Script(scriptPopFront).
		Numkeys(1).
		Key(r.key("playlist")).
		Arg(r.key("songs:")).
		Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return 0, ErrPlaylistEmpty
		}
		return 0, fmt.Errorf("failed to pop playlist head: %w", err)
	}
	return parseUID(raw)
}

// RemoveByUID deletes the entry's detail record and removes its uid from the
// order list. The uid is unique, so remove-by-value takes the first (only)
// occurrence.
func (r *Room) RemoveByUID(ctx context.Context, uid int64) error {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	n, err := r.client.Do(opCtx, r.client.B().Eval().
		Script(scriptRemoveSong).
		Numkeys(2).
		Key(r.songKey(uid), r.key("playlist")).
		Arg(strconv.FormatInt(uid, 10)).
		Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to remove song %d: %w", uid, err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// EntryOwner returns the opaque token of the user who submitted the entry.
func (r *Room) EntryOwner(ctx context.Context, uid int64) (string, error) {
	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	owner, err := r.client.Do(opCtx, r.client.B().Hget().Key(r.songKey(uid)).Field("owner").Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", ErrEntryNotFound
		}
		return "", fmt.Errorf("failed to read song owner: %w", err)
	}
	return owner, nil
}

// Delete removes every key belonging to the room: the existence flag first,
// so the room stops resolving immediately, then the collections and each
// dynamically named song record found by SCAN. Multi-step and not
// transactional; a failure partway can orphan song records.
func (r *Room) Delete(ctx context.Context) error {
	keys := []string{
		r.baseKey(),
		r.key("owner"),
		r.key("playlist"),
		r.key("users"),
		r.key("blocked"),
		r.key("next-song-uid"),
	}

	songKeys, err := r.scanSongKeys(ctx)
	if err != nil {
		return err
	}
	keys = append(keys, songKeys...)

	opCtx, cancel := r.dir.opCtx(ctx)
	defer cancel()

	if err := r.client.Do(opCtx, r.client.B().Del().Key(keys...).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete room keys: %w", err)
	}
	return nil
}

func (r *Room) scanSongKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	pattern := r.key("songs:*")

	for {
		opCtx, cancel := r.dir.opCtx(ctx)
		entry, err := r.client.Do(opCtx, r.client.B().Scan().Cursor(cursor).Match(pattern).Count(64).Build()).AsScanEntry()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate song keys: %w", err)
		}

		keys = append(keys, entry.Elements...)
		cursor = entry.Cursor
		if cursor == 0 {
			return keys, nil
		}
	}
}

func entryFromFields(uid int64, fields map[string]string) models.PlaylistEntry {
	length, _ := strconv.ParseInt(fields["length"], 10, 64)
	return models.PlaylistEntry{
		UID:   uid,
		Owner: fields["owner"],
		Track: models.Track{
			ID:       fields["id"],
			External: fields["external"] == "1",
			Title:    fields["title"],
			Artist:   fields["artist"],
			Album:    fields["album"],
			Length:   length,
		},
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
