// Package shard owns the set of backing-store connections. Rooms and users
// are partitioned across a static list of shards by round-robin assignment
// at creation time; there is no failover, replication, or resharding. A
// shard outage surfaces as ErrShardUnavailable and recovery is operational.
package shard

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/valkey-io/valkey-go"
)

// ErrShardUnavailable indicates the shard behind a decoded id has no
// configured connection. It is never retried against a different shard.
var ErrShardUnavailable = errors.New("shard unavailable")

// Shard is one backing-store connection plus its small integer id.
type Shard struct {
	ID     int
	Client valkey.Client
}

// Router resolves shard ids to connections and assigns shards to new
// entities round-robin. Safe for concurrent use; the round-robin cursor is
// advanced atomically with respect to concurrent creates.
type Router struct {
	shards []Shard
	byID   map[int]valkey.Client
	cursor atomic.Uint64
}

// NewRouter connects one client per address. The list position is the shard
// id, so the configured order must stay stable across restarts.
func NewRouter(addrs []string) (*Router, error) {
	if len(addrs) == 0 {
		return nil, errors.New("at least one shard address is required")
	}

	r := &Router{byID: make(map[int]valkey.Client, len(addrs))}
	for i, addr := range addrs {
		client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to connect shard %d (%s): %w", i, addr, err)
		}
		r.shards = append(r.shards, Shard{ID: i, Client: client})
		r.byID[i] = client
	}
	return r, nil
}

// NewRouterWithClients builds a router over pre-built clients. Used by tests
// and by deployments that need custom client options.
func NewRouterWithClients(clients []valkey.Client) *Router {
	r := &Router{byID: make(map[int]valkey.Client, len(clients))}
	for i, client := range clients {
		r.shards = append(r.shards, Shard{ID: i, Client: client})
		r.byID[i] = client
	}
	return r
}

// PickForCreate returns the shard the next created entity should live on,
// advancing the shared cursor.
func (r *Router) PickForCreate() Shard {
	n := r.cursor.Add(1) - 1
	return r.shards[n%uint64(len(r.shards))]
}

// Resolve returns the connection for a shard id.
func (r *Router) Resolve(shardID int) (valkey.Client, error) {
	client, ok := r.byID[shardID]
	if !ok {
		return nil, fmt.Errorf("shard %d: %w", shardID, ErrShardUnavailable)
	}
	return client, nil
}

// Len reports the number of configured shards.
func (r *Router) Len() int {
	return len(r.shards)
}

// Close closes every shard connection.
func (r *Router) Close() {
	for _, s := range r.shards {
		if s.Client != nil {
			s.Client.Close()
		}
	}
}
