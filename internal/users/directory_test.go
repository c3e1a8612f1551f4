package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/valkey-io/valkey-go"
	"github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"

	"github.com/tubedj/backend/internal/ids"
	"github.com/tubedj/backend/internal/shard"
)

func newTestDirectory(t *testing.T) (*Directory, *mock.Client) {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)

	codec, err := ids.NewCodec(ids.Config{Key: "user-test-key", MinLength: 8})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	router := shard.NewRouterWithClients([]valkey.Client{client})
	return NewDirectory(router, codec, time.Second), client
}

func testUser(t *testing.T, d *Directory, localID int64) *User {
	t.Helper()
	token, err := d.codec.Encode(0, localID)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	u, err := d.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return u
}

func TestCreateAllocatesIDAndStoresName(t *testing.T) {
	d, client := newTestDirectory(t)

	client.EXPECT().
		Do(gomock.Any(), mock.Match("INCR", "next-user-id")).
		Return(mock.Result(mock.ValkeyInt64(3)))
	client.EXPECT().
		Do(gomock.Any(), mock.Match("HSET", "users:3", "name", "Ada")).
		Return(mock.Result(mock.ValkeyInt64(1)))

	u, err := d.Create(context.Background(), "Ada")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	shardID, localID, err := d.codec.Decode(u.Token())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if shardID != 0 || localID != 3 {
		t.Errorf("token decodes to (%d, %d), want (0, 3)", shardID, localID)
	}
}

func TestTokenExists(t *testing.T) {
	d, client := newTestDirectory(t)
	u := testUser(t, d, 3)

	client.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "users:3")).
		Return(mock.Result(mock.ValkeyInt64(1)))

	exists, err := d.TokenExists(context.Background(), u.Token())
	if err != nil {
		t.Fatalf("TokenExists: %v", err)
	}
	if !exists {
		t.Error("TokenExists = false, want true")
	}

	if _, err := d.TokenExists(context.Background(), "???"); !errors.Is(err, ids.ErrInvalidToken) {
		t.Errorf("TokenExists error = %v, want ErrInvalidToken", err)
	}
}

func TestNameAndRename(t *testing.T) {
	d, client := newTestDirectory(t)
	u := testUser(t, d, 3)
	ctx := context.Background()

	client.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "users:3", "name")).
		Return(mock.Result(mock.ValkeyString("Ada")))
	name, err := u.Name(ctx)
	if err != nil {
		t.Fatalf("Name: %v", err)
	}
	if name != "Ada" {
		t.Errorf("Name = %q, want Ada", name)
	}

	client.EXPECT().
		Do(gomock.Any(), mock.Match("HSET", "users:3", "name", "Grace")).
		Return(mock.Result(mock.ValkeyInt64(0)))
	if err := u.Rename(ctx, "Grace"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
}

func TestNameMissingUser(t *testing.T) {
	d, client := newTestDirectory(t)
	u := testUser(t, d, 9)

	client.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "users:9", "name")).
		Return(mock.Result(mock.ValkeyNil()))

	if _, err := u.Name(context.Background()); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Name error = %v, want ErrUserNotFound", err)
	}
}

func TestCurrentRoomPointer(t *testing.T) {
	d, client := newTestDirectory(t)
	u := testUser(t, d, 3)
	ctx := context.Background()

	client.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "users:3", "current-room")).
		Return(mock.Result(mock.ValkeyNil()))
	_, ok, err := u.CurrentRoom(ctx)
	if err != nil {
		t.Fatalf("CurrentRoom: %v", err)
	}
	if ok {
		t.Error("CurrentRoom ok = true, want false")
	}

	client.EXPECT().
		Do(gomock.Any(), mock.Match("HSET", "users:3", "current-room", "room-token")).
		Return(mock.Result(mock.ValkeyInt64(1)))
	if err := u.SetCurrentRoom(ctx, "room-token"); err != nil {
		t.Fatalf("SetCurrentRoom: %v", err)
	}

	client.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "users:3", "current-room")).
		Return(mock.Result(mock.ValkeyString("room-token")))
	room, ok, err := u.CurrentRoom(ctx)
	if err != nil {
		t.Fatalf("CurrentRoom: %v", err)
	}
	if !ok || room != "room-token" {
		t.Errorf("CurrentRoom = (%q, %v), want (room-token, true)", room, ok)
	}

	client.EXPECT().
		Do(gomock.Any(), mock.Match("HDEL", "users:3", "current-room")).
		Return(mock.Result(mock.ValkeyInt64(1)))
	if err := u.ClearCurrentRoom(ctx); err != nil {
		t.Fatalf("ClearCurrentRoom: %v", err)
	}
}

func TestClearSocketBindingIsCompareAndClear(t *testing.T) {
	d, client := newTestDirectory(t)
	u := testUser(t, d, 3)
	ctx := context.Background()

	client.EXPECT().
		Do(gomock.Any(), mock.Match("HSET", "users:3", "socket", "sock-1")).
		Return(mock.Result(mock.ValkeyInt64(1)))
	if err := u.BindSocket(ctx, "sock-1"); err != nil {
		t.Fatalf("BindSocket: %v", err)
	}

	client.EXPECT().
		Do(gomock.Any(), mock.Match("EVAL", scriptClearSocket, "1", "users:3", "sock-1")).
		Return(mock.Result(mock.ValkeyInt64(1)))
	cleared, err := u.ClearSocketBinding(ctx, "sock-1")
	if err != nil {
		t.Fatalf("ClearSocketBinding: %v", err)
	}
	if !cleared {
		t.Error("ClearSocketBinding = false, want true")
	}

	// A stale connection's teardown must not clear a newer binding.
	client.EXPECT().
		Do(gomock.Any(), mock.Match("EVAL", scriptClearSocket, "1", "users:3", "sock-0")).
		Return(mock.Result(mock.ValkeyInt64(0)))
	cleared, err = u.ClearSocketBinding(ctx, "sock-0")
	if err != nil {
		t.Fatalf("ClearSocketBinding: %v", err)
	}
	if cleared {
		t.Error("ClearSocketBinding = true for superseded socket, want false")
	}
}

func TestPublicViewsDropsMissingAndKeepsOrder(t *testing.T) {
	d, client := newTestDirectory(t)
	u1 := testUser(t, d, 1)
	u2 := testUser(t, d, 2)
	u3 := testUser(t, d, 3)

	client.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "users:1", "name")).
		Return(mock.Result(mock.ValkeyString("Ada")))
	client.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "users:2", "name")).
		Return(mock.Result(mock.ValkeyNil()))
	client.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "users:3", "name")).
		Return(mock.Result(mock.ValkeyString("Grace")))

	views, err := d.PublicViews(context.Background(), []string{u1.Token(), u2.Token(), u3.Token()})
	if err != nil {
		t.Fatalf("PublicViews: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("len(views) = %d, want 2", len(views))
	}
	if views[0].Name != "Ada" || views[0].ID != u1.Token() {
		t.Errorf("views[0] = %+v", views[0])
	}
	if views[1].Name != "Grace" || views[1].ID != u3.Token() {
		t.Errorf("views[1] = %+v", views[1])
	}
}

func TestPublicViewsEmptyInput(t *testing.T) {
	d, _ := newTestDirectory(t)

	views, err := d.PublicViews(context.Background(), nil)
	if err != nil {
		t.Fatalf("PublicViews: %v", err)
	}
	if len(views) != 0 {
		t.Errorf("len(views) = %d, want 0", len(views))
	}
}

func TestSuggestedNamesFitTheLengthBound(t *testing.T) {
	g := NewNameGenerator()
	for i := 0; i < 200; i++ {
		name := g.Suggest()
		if len(name) < 2 || len(name) > 10 {
			t.Fatalf("Suggest() = %q, length %d out of bounds", name, len(name))
		}
		if name[0] < 'A' || name[0] > 'Z' {
			t.Errorf("Suggest() = %q, want leading capital", name)
		}
	}
}
