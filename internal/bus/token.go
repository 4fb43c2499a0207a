package bus

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator produces the random segment of synthesized activity
// ids. Implemented by AlphanumericGenerator (production) and
// FixedTokens (tests).
type TokenGenerator interface {
	Generate() string
}

// DefaultTokenLength is the length of synthesized id tokens. 16
// characters over a 62-symbol alphabet is comfortably collision
// resistant for outbox ids; the tokens are not secrets and do not need
// a cryptographic source.
const DefaultTokenLength = 16

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// AlphanumericGenerator generates fixed-length random tokens from an
// alphanumeric alphabet.
//
// Thread-safety: safe for concurrent use (math/rand/v2 top-level
// functions are concurrency-safe).
type AlphanumericGenerator struct {
	// Length of generated tokens. Zero means DefaultTokenLength.
	Length int
}

// Generate returns a new random token.
func (g AlphanumericGenerator) Generate() string {
	n := g.Length
	if n <= 0 {
		n = DefaultTokenLength
	}
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(tokenAlphabet[rand.Intn(len(tokenAlphabet))])
	}
	return b.String()
}

// FixedTokens returns predetermined tokens for deterministic tests.
//
// Panics when all tokens are consumed. Fail-fast: a test that synthesizes
// more ids than it provisioned tokens for is misconfigured.
type FixedTokens struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedTokens creates a generator that returns tokens in order.
func NewFixedTokens(tokens ...string) *FixedTokens {
	return &FixedTokens{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedTokens: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

// traceToken returns a UUIDv7 correlating all log lines of one dispatch,
// including the cascading resubmissions it triggers. Time-sortable, which
// keeps traces readable when interleaved.
func traceToken() string {
	return uuid.Must(uuid.NewV7()).String()
}
