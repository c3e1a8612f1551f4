package shard

import (
	"errors"
	"sync"
	"testing"

	"github.com/valkey-io/valkey-go"
	"github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"
)

func newTestRouter(t *testing.T, n int) *Router {
	t.Helper()
	ctrl := gomock.NewController(t)
	clients := make([]valkey.Client, n)
	for i := range clients {
		clients[i] = mock.NewClient(ctrl)
	}
	return NewRouterWithClients(clients)
}

func TestPickForCreateRoundRobin(t *testing.T) {
	r := newTestRouter(t, 3)

	want := []int{0, 1, 2, 0, 1, 2, 0}
	for i, expected := range want {
		if got := r.PickForCreate().ID; got != expected {
			t.Errorf("pick %d = shard %d, want %d", i, got, expected)
		}
	}
}

func TestPickForCreateConcurrentDistribution(t *testing.T) {
	const shards = 4
	const picks = 400

	r := newTestRouter(t, shards)

	var mu sync.Mutex
	counts := make(map[int]int)

	var wg sync.WaitGroup
	for i := 0; i < picks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := r.PickForCreate()
			mu.Lock()
			counts[s.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	// The atomic cursor guarantees an exactly even split regardless of
	// scheduling order.
	for id := 0; id < shards; id++ {
		if counts[id] != picks/shards {
			t.Errorf("shard %d received %d picks, want %d", id, counts[id], picks/shards)
		}
	}
}

func TestResolveKnownShard(t *testing.T) {
	r := newTestRouter(t, 2)

	for id := 0; id < 2; id++ {
		client, err := r.Resolve(id)
		if err != nil {
			t.Fatalf("Resolve(%d): %v", id, err)
		}
		if client == nil {
			t.Fatalf("Resolve(%d) returned nil client", id)
		}
	}
}

func TestResolveUnknownShard(t *testing.T) {
	r := newTestRouter(t, 2)

	if _, err := r.Resolve(5); !errors.Is(err, ErrShardUnavailable) {
		t.Errorf("Resolve(5) error = %v, want ErrShardUnavailable", err)
	}
	if _, err := r.Resolve(-1); !errors.Is(err, ErrShardUnavailable) {
		t.Errorf("Resolve(-1) error = %v, want ErrShardUnavailable", err)
	}
}
