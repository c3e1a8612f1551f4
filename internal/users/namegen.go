package users

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/tyler-smith/go-bip39/wordlists"
)

// Display names are capped at ten characters, so only short wordlist words
// leave room for the two-digit suffix.
const maxWordLen = 7

// NameGenerator produces random display names like "Happy42" from the BIP39
// English wordlist. Suggestions are not checked for uniqueness; names are
// not unique identifiers.
type NameGenerator struct {
	words []string
	mu    sync.Mutex
	rng   *rand.Rand
}

// NewNameGenerator creates a generator with its own random source.
func NewNameGenerator() *NameGenerator {
	var words []string
	for _, w := range wordlists.English {
		if len(w) <= maxWordLen {
			words = append(words, w)
		}
	}
	return &NameGenerator{
		words: words,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Suggest returns a random PascalCase name with a numeric suffix.
func (g *NameGenerator) Suggest() string {
	g.mu.Lock()
	word := g.words[g.rng.Intn(len(g.words))]
	num := g.rng.Intn(100)
	g.mu.Unlock()
	return fmt.Sprintf("%s%d", capitalize(word), num)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
