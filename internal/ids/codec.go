// Package ids provides the reversible opaque-token codec used for all
// user-facing room and user identifiers. A token encodes a (shardID, localID)
// pair under a fixed key; the encoding obfuscates, it does not authenticate.
// Callers must never trust a decoded pair without a subsequent existence
// check against the backing store.
package ids

import (
	"errors"
	"fmt"
	"sync"

	hashids "github.com/speps/go-hashids/v2"
)

// ErrInvalidToken indicates a token that could not have been produced by
// this codec under its current key.
var ErrInvalidToken = errors.New("invalid token")

// Config controls a Codec instance. Rooms and users use separately keyed
// codecs so one kind of token never decodes as the other.
type Config struct {
	// Key salts the encoding. Same input always yields the same token
	// under a fixed key.
	Key string

	// MinLength pads tokens to a minimum number of characters.
	MinLength int

	// Cache memoizes both directions in process memory. Absence of the
	// cache changes latency only, never observable behavior.
	Cache bool
}

// Codec converts between opaque tokens and internal (shardID, localID)
// pairs. It is safe for concurrent use.
type Codec struct {
	h     *hashids.HashID
	cache *sync.Map // token -> pair and "e:<shard>:<local>" -> token
}

type pair struct {
	shardID int
	localID int64
}

// NewCodec creates a codec from the given configuration.
func NewCodec(cfg Config) (*Codec, error) {
	data := hashids.NewData()
	data.Salt = cfg.Key
	data.MinLength = cfg.MinLength

	h, err := hashids.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to build hasher: %w", err)
	}

	c := &Codec{h: h}
	if cfg.Cache {
		c.cache = &sync.Map{}
	}
	return c, nil
}

// Encode produces the opaque token for a (shardID, localID) pair.
// Encoding is deterministic: the same pair always yields the same token.
func (c *Codec) Encode(shardID int, localID int64) (string, error) {
	if shardID < 0 || localID < 0 {
		return "", fmt.Errorf("ids must be non-negative, got (%d, %d)", shardID, localID)
	}

	cacheKey := fmt.Sprintf("e:%d:%d", shardID, localID)
	if c.cache != nil {
		if cached, ok := c.cache.Load(cacheKey); ok {
			return cached.(string), nil
		}
	}

	token, err := c.h.EncodeInt64([]int64{int64(shardID), localID})
	if err != nil {
		return "", fmt.Errorf("failed to encode id pair: %w", err)
	}

	if c.cache != nil {
		c.cache.Store(cacheKey, token)
		c.cache.Store(token, pair{shardID: shardID, localID: localID})
	}
	return token, nil
}

// Decode recovers the (shardID, localID) pair behind a token. A token this
// codec never produced either fails with ErrInvalidToken or, rarely, decodes
// to a plausible-looking pair; the caller's existence check catches those.
func (c *Codec) Decode(token string) (shardID int, localID int64, err error) {
	if token == "" {
		return 0, 0, ErrInvalidToken
	}

	if c.cache != nil {
		if cached, ok := c.cache.Load(token); ok {
			p := cached.(pair)
			return p.shardID, p.localID, nil
		}
	}

	nums, err := c.h.DecodeInt64WithError(token)
	if err != nil || len(nums) != 2 || nums[0] < 0 || nums[1] < 0 {
		return 0, 0, ErrInvalidToken
	}

	p := pair{shardID: int(nums[0]), localID: nums[1]}
	if c.cache != nil {
		c.cache.Store(token, p)
		c.cache.Store(fmt.Sprintf("e:%d:%d", p.shardID, p.localID), token)
	}
	return p.shardID, p.localID, nil
}
