package coordinator

import (
	"context"
	"fmt"

	"github.com/tubedj/backend/internal/models"
	"github.com/tubedj/backend/internal/rooms"
	"github.com/tubedj/backend/internal/users"
)

// Compile-time checks that the concrete handles satisfy the coordinator's
// interfaces.
var (
	_ RoomRef = (*rooms.Room)(nil)
	_ UserRef = (*users.User)(nil)
)

func errRoomNotFound(token string) error {
	return fmt.Errorf("room %s: %w", token, rooms.ErrRoomNotFound)
}

type roomStore struct {
	dir *rooms.Directory
}

// NewRoomStore adapts the concrete room directory to the coordinator's
// store interface.
func NewRoomStore(dir *rooms.Directory) RoomStore {
	return &roomStore{dir: dir}
}

func (s *roomStore) Create(ctx context.Context, ownerToken string) (RoomRef, error) {
	return s.dir.Create(ctx, ownerToken)
}

func (s *roomStore) Resolve(token string) (RoomRef, error) {
	return s.dir.Resolve(token)
}

type userStore struct {
	dir *users.Directory
}

// NewUserStore adapts the concrete user directory to the coordinator's
// store interface.
func NewUserStore(dir *users.Directory) UserStore {
	return &userStore{dir: dir}
}

func (s *userStore) Create(ctx context.Context, name string) (UserRef, error) {
	return s.dir.Create(ctx, name)
}

func (s *userStore) Resolve(token string) (UserRef, error) {
	return s.dir.Resolve(token)
}

func (s *userStore) PublicViews(ctx context.Context, tokens []string) ([]models.PublicUser, error) {
	return s.dir.PublicViews(ctx, tokens)
}
