// Package coordinator orchestrates the join/leave/disconnect/block flows
// across the room and user directories, keeping membership, current-room
// pointers, and socket bindings in lockstep. It owns the concurrency
// discipline: per-(room,user) serialization of membership flows and the
// gather barriers behind composite reads.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tubedj/backend/internal/models"
)

var (
	// ErrBlocked rejects a join from a user on the room's block-list.
	ErrBlocked = errors.New("user is blocked from this room")

	// ErrNotOwner rejects an owner-only operation from anyone else.
	ErrNotOwner = errors.New("user is not the room owner")

	// ErrNotMember rejects a member-only operation from a non-member.
	ErrNotMember = errors.New("user is not a room member")

	// ErrAlreadyInRoom rejects a join while the user is in another room.
	ErrAlreadyInRoom = errors.New("user is already in another room")
)

// deleteRetries bounds how often an owner-leave retries the room delete
// before surfacing the failure.
const deleteRetries = 3

// RoomRef is the per-room handle the coordinator drives.
type RoomRef interface {
	Token() string
	Exists(ctx context.Context) (bool, error)
	Owner(ctx context.Context) (string, error)
	HasMember(ctx context.Context, userToken string) (bool, error)
	AddMember(ctx context.Context, userToken string) error
	RemoveMember(ctx context.Context, userToken string) error
	Members(ctx context.Context) ([]string, error)
	IsBlocked(ctx context.Context, userToken string) (bool, error)
	Block(ctx context.Context, userToken string) error
	Unblock(ctx context.Context, userToken string) error
	AllocateSongUID(ctx context.Context) (int64, error)
	AddToPlaylist(ctx context.Context, entry models.PlaylistEntry) error
	Playlist(ctx context.Context) ([]models.PlaylistEntry, error)
	PopFront(ctx context.Context) (int64, error)
	RemoveByUID(ctx context.Context, uid int64) error
	EntryOwner(ctx context.Context, uid int64) (string, error)
	Delete(ctx context.Context) error
}

// RoomStore creates and resolves room handles.
type RoomStore interface {
	Create(ctx context.Context, ownerToken string) (RoomRef, error)
	Resolve(token string) (RoomRef, error)
}

// UserRef is the per-user handle the coordinator drives.
type UserRef interface {
	Token() string
	Name(ctx context.Context) (string, error)
	CurrentRoom(ctx context.Context) (string, bool, error)
	SetCurrentRoom(ctx context.Context, roomToken string) error
	ClearCurrentRoom(ctx context.Context) error
	SocketBinding(ctx context.Context) (string, bool, error)
	BindSocket(ctx context.Context, socketID string) error
	ClearSocketBinding(ctx context.Context, socketID string) (bool, error)
}

// UserStore creates and resolves user handles.
type UserStore interface {
	Create(ctx context.Context, name string) (UserRef, error)
	Resolve(token string) (UserRef, error)
	PublicViews(ctx context.Context, tokens []string) ([]models.PublicUser, error)
}

// Notifier fans a room event out to connected clients. Delivery semantics
// are the notifier's concern.
type Notifier interface {
	Publish(roomToken, event string, payload any)
}

// SocketCloser force-closes a live connection by its binding id, used
// during eviction and room teardown. Best-effort.
type SocketCloser interface {
	Disconnect(socketID string)
}

// JoinResult is the composite view returned from a successful join.
type JoinResult struct {
	Room     string
	Owner    string
	Playlist []models.PlaylistEntry
	Members  []models.PublicUser
	Self     models.PublicUser
}

// Coordinator composes the directories, notifier, and socket table.
type Coordinator struct {
	rooms   RoomStore
	users   UserStore
	notify  Notifier
	sockets SocketCloser
	locks   *pairLocks
}

// New wires a Coordinator.
func New(rooms RoomStore, users UserStore, notify Notifier, sockets SocketCloser) *Coordinator {
	return &Coordinator{
		rooms:   rooms,
		users:   users,
		notify:  notify,
		sockets: sockets,
		locks:   newPairLocks(),
	}
}

// CreateUser registers a new identity. Name validation happens at the
// transport edge.
func (c *Coordinator) CreateUser(ctx context.Context, name string) (UserRef, error) {
	return c.users.Create(ctx, name)
}

// CreateRoom allocates a room owned by the given user. The owner is not a
// member yet; they join like anyone else.
func (c *Coordinator) CreateRoom(ctx context.Context, ownerToken string) (RoomRef, error) {
	return c.rooms.Create(ctx, ownerToken)
}

// BindSocket records the user's live connection, overwriting any previous
// binding. The newest connection always wins.
func (c *Coordinator) BindSocket(ctx context.Context, userToken, socketID string) error {
	u, err := c.users.Resolve(userToken)
	if err != nil {
		return err
	}
	return u.BindSocket(ctx, socketID)
}

// Join adds the user to the room and assembles the composite join view.
// The block check comes before any mutation; the view's reads run
// concurrently and the response exists only once all of them land. If a
// read fails after membership was granted this call, the grant is undone
// best-effort so a retry starts clean.
func (c *Coordinator) Join(ctx context.Context, roomToken, userToken string) (*JoinResult, error) {
	unlock := c.locks.lock(roomToken, userToken)
	defer unlock()

	room, err := c.rooms.Resolve(roomToken)
	if err != nil {
		return nil, err
	}
	user, err := c.users.Resolve(userToken)
	if err != nil {
		return nil, err
	}

	exists, err := room.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errRoomNotFound(roomToken)
	}

	blocked, err := room.IsBlocked(ctx, userToken)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrBlocked
	}

	current, inRoom, err := user.CurrentRoom(ctx)
	if err != nil {
		return nil, err
	}
	if inRoom && current != roomToken {
		return nil, ErrAlreadyInRoom
	}

	wasMember, err := room.HasMember(ctx, userToken)
	if err != nil {
		return nil, err
	}
	if !wasMember {
		if err := room.AddMember(ctx, userToken); err != nil {
			return nil, err
		}
	}
	if err := user.SetCurrentRoom(ctx, roomToken); err != nil {
		c.undoJoin(ctx, room, user, wasMember)
		return nil, err
	}

	result := &JoinResult{Room: roomToken}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		playlist, err := room.Playlist(gctx)
		if err != nil {
			return err
		}
		result.Playlist = playlist
		return nil
	})
	g.Go(func() error {
		tokens, err := room.Members(gctx)
		if err != nil {
			return err
		}
		members, err := c.users.PublicViews(gctx, tokens)
		if err != nil {
			return err
		}
		result.Members = members
		return nil
	})
	g.Go(func() error {
		owner, err := room.Owner(gctx)
		if err != nil {
			return err
		}
		result.Owner = owner
		return nil
	})
	g.Go(func() error {
		name, err := user.Name(gctx)
		if err != nil {
			return err
		}
		result.Self = models.PublicUser{ID: userToken, Name: name}
		return nil
	})
	if err := g.Wait(); err != nil {
		c.undoJoin(ctx, room, user, wasMember)
		return nil, err
	}

	if !wasMember {
		c.notify.Publish(roomToken, "user:joined", models.UserJoinedEvent{User: result.Self})
	}
	return result, nil
}

// undoJoin rolls back a freshly granted membership after a failed join.
// Runs detached from the caller's context so a dropped connection cannot
// abort the cleanup, and never fails the overall response.
func (c *Coordinator) undoJoin(ctx context.Context, room RoomRef, user UserRef, wasMember bool) {
	cleanupCtx := context.WithoutCancel(ctx)
	if !wasMember {
		if err := room.RemoveMember(cleanupCtx, user.Token()); err != nil {
			slog.Warn("join cleanup failed to remove member",
				slog.String("room", room.Token()), slog.String("user", user.Token()),
				slog.Any("error", err))
		}
	}
	if err := user.ClearCurrentRoom(cleanupCtx); err != nil {
		slog.Warn("join cleanup failed to clear current room",
			slog.String("user", user.Token()), slog.Any("error", err))
	}
}

// Leave removes the user from the room. An owner leaving destroys the room
// for everyone; anyone else just steps out. Leaving a room you are not in
// is a no-op.
func (c *Coordinator) Leave(ctx context.Context, roomToken, userToken string) error {
	return c.leave(ctx, roomToken, userToken, "user:left")
}

func (c *Coordinator) leave(ctx context.Context, roomToken, userToken, event string) error {
	unlock := c.locks.lock(roomToken, userToken)
	defer unlock()

	room, err := c.rooms.Resolve(roomToken)
	if err != nil {
		return err
	}
	user, err := c.users.Resolve(userToken)
	if err != nil {
		return err
	}

	exists, err := room.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		// The room is already gone; just drop the stale pointer.
		return user.ClearCurrentRoom(ctx)
	}

	owner, err := room.Owner(ctx)
	if err != nil {
		return err
	}
	if owner == userToken {
		return c.closeRoom(ctx, room)
	}

	member, err := room.HasMember(ctx, userToken)
	if err != nil {
		return err
	}
	if !member {
		return user.ClearCurrentRoom(ctx)
	}

	if err := room.RemoveMember(ctx, userToken); err != nil {
		return err
	}
	if err := user.ClearCurrentRoom(ctx); err != nil {
		return err
	}

	c.notify.Publish(roomToken, event, models.UserLeftEvent{User: userToken})
	return nil
}

// closeRoom tears the room down: snapshot the members, delete the room's
// keys with a bounded retry, then detach every member and close their
// sockets. Detach and disconnect are best-effort per member.
func (c *Coordinator) closeRoom(ctx context.Context, room RoomRef) error {
	members, err := room.Members(ctx)
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err = room.Delete(ctx)
		if err == nil {
			break
		}
		if attempt == deleteRetries {
			return fmt.Errorf("failed to delete room after %d attempts: %w", deleteRetries, err)
		}
		slog.Warn("room delete failed, retrying",
			slog.String("room", room.Token()), slog.Int("attempt", attempt),
			slog.Any("error", err))
	}

	c.notify.Publish(room.Token(), "room:closed", models.RoomClosedEvent{Expected: true})

	for _, token := range members {
		c.detachUser(ctx, token)
	}
	return nil
}

// detachUser clears a user's current-room pointer and closes their socket.
// Failures are logged, never propagated; the room itself is already gone.
func (c *Coordinator) detachUser(ctx context.Context, userToken string) {
	u, err := c.users.Resolve(userToken)
	if err != nil {
		slog.Warn("eviction could not resolve user",
			slog.String("user", userToken), slog.Any("error", err))
		return
	}
	if err := u.ClearCurrentRoom(ctx); err != nil {
		slog.Warn("eviction failed to clear current room",
			slog.String("user", userToken), slog.Any("error", err))
	}
	socketID, bound, err := u.SocketBinding(ctx)
	if err != nil {
		slog.Warn("eviction failed to read socket binding",
			slog.String("user", userToken), slog.Any("error", err))
		return
	}
	if bound {
		c.sockets.Disconnect(socketID)
	}
}

// HandleDisconnect is the transport layer's notification that a connection
// died. The binding is cleared compare-and-clear: if a newer connection
// already rebound the user, this disconnect is stale and implies no leave.
func (c *Coordinator) HandleDisconnect(ctx context.Context, userToken, socketID string) error {
	user, err := c.users.Resolve(userToken)
	if err != nil {
		return err
	}

	cleared, err := user.ClearSocketBinding(ctx, socketID)
	if err != nil {
		return err
	}
	if !cleared {
		return nil
	}

	roomToken, inRoom, err := user.CurrentRoom(ctx)
	if err != nil {
		return err
	}
	if !inRoom {
		return nil
	}
	return c.leave(ctx, roomToken, userToken, "user:disconnected")
}

// Block is owner-only. The block-list write must land; the eviction that
// follows (membership removal, pointer clear, socket close) is best-effort
// and never rolls the block back.
func (c *Coordinator) Block(ctx context.Context, roomToken, actorToken, targetToken string) error {
	room, err := c.rooms.Resolve(roomToken)
	if err != nil {
		return err
	}

	if err := c.requireOwner(ctx, room, actorToken); err != nil {
		return err
	}

	if err := room.Block(ctx, targetToken); err != nil {
		return err
	}

	member, err := room.HasMember(ctx, targetToken)
	if err != nil {
		slog.Warn("block eviction failed to check membership",
			slog.String("room", roomToken), slog.String("user", targetToken),
			slog.Any("error", err))
	} else if member {
		if err := room.RemoveMember(ctx, targetToken); err != nil {
			slog.Warn("block eviction failed to remove member",
				slog.String("room", roomToken), slog.String("user", targetToken),
				slog.Any("error", err))
		}
		c.detachUser(ctx, targetToken)
	}

	c.notify.Publish(roomToken, "user:blocked", models.UserBlockedEvent{User: targetToken})
	return nil
}

// Unblock is owner-only and only touches the block-list.
func (c *Coordinator) Unblock(ctx context.Context, roomToken, actorToken, targetToken string) error {
	room, err := c.rooms.Resolve(roomToken)
	if err != nil {
		return err
	}
	if err := c.requireOwner(ctx, room, actorToken); err != nil {
		return err
	}
	return room.Unblock(ctx, targetToken)
}

// IsMember reports whether the user currently belongs to the room.
func (c *Coordinator) IsMember(ctx context.Context, roomToken, userToken string) (bool, error) {
	room, err := c.resolveExisting(ctx, roomToken)
	if err != nil {
		return false, err
	}
	return room.HasMember(ctx, userToken)
}

// Playlist returns the room's current queue.
func (c *Coordinator) Playlist(ctx context.Context, roomToken string) ([]models.PlaylistEntry, error) {
	room, err := c.resolveExisting(ctx, roomToken)
	if err != nil {
		return nil, err
	}
	return room.Playlist(ctx)
}

// AddSong is member-only: it allocates a uid, writes the entry, and
// announces it.
func (c *Coordinator) AddSong(ctx context.Context, roomToken, userToken string, track models.Track) (models.PlaylistEntry, error) {
	var entry models.PlaylistEntry

	room, err := c.resolveExisting(ctx, roomToken)
	if err != nil {
		return entry, err
	}

	member, err := room.HasMember(ctx, userToken)
	if err != nil {
		return entry, err
	}
	if !member {
		return entry, ErrNotMember
	}

	uid, err := room.AllocateSongUID(ctx)
	if err != nil {
		return entry, err
	}

	entry = models.PlaylistEntry{UID: uid, Owner: userToken, Track: track}
	if err := room.AddToPlaylist(ctx, entry); err != nil {
		return models.PlaylistEntry{}, err
	}

	c.notify.Publish(roomToken, "playlist:song-added", models.SongAddedEvent{Song: entry})
	return entry, nil
}

// RemoveSong deletes one entry by uid. Allowed for the entry's submitter
// and for the room owner.
func (c *Coordinator) RemoveSong(ctx context.Context, roomToken, userToken string, uid int64) error {
	room, err := c.resolveExisting(ctx, roomToken)
	if err != nil {
		return err
	}

	entryOwner, err := room.EntryOwner(ctx, uid)
	if err != nil {
		return err
	}
	if entryOwner != userToken {
		owner, err := room.Owner(ctx)
		if err != nil {
			return err
		}
		if owner != userToken {
			return ErrNotOwner
		}
	}

	if err := room.RemoveByUID(ctx, uid); err != nil {
		return err
	}

	c.notify.Publish(roomToken, "playlist:song-removed", models.SongRemovedEvent{SongUID: uid})
	return nil
}

// NextSong is owner-only: it pops the playlist head and announces the
// advance. An empty playlist is the checked PlaylistEmpty outcome.
func (c *Coordinator) NextSong(ctx context.Context, roomToken, actorToken string) (int64, error) {
	room, err := c.resolveExisting(ctx, roomToken)
	if err != nil {
		return 0, err
	}
	if err := c.requireOwner(ctx, room, actorToken); err != nil {
		return 0, err
	}

	uid, err := room.PopFront(ctx)
	if err != nil {
		return 0, err
	}

	c.notify.Publish(roomToken, "playlist:next-song", models.SongRemovedEvent{SongUID: uid})
	return uid, nil
}

func (c *Coordinator) resolveExisting(ctx context.Context, roomToken string) (RoomRef, error) {
	room, err := c.rooms.Resolve(roomToken)
	if err != nil {
		return nil, err
	}
	exists, err := room.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errRoomNotFound(roomToken)
	}
	return room, nil
}

func (c *Coordinator) requireOwner(ctx context.Context, room RoomRef, userToken string) error {
	exists, err := room.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return errRoomNotFound(room.Token())
	}
	owner, err := room.Owner(ctx)
	if err != nil {
		return err
	}
	if owner != userToken {
		return ErrNotOwner
	}
	return nil
}
