// Package idgen generates short content-hash issue ids.
package idgen

import (
	"crypto/sha256"
	"math/big"
	"strconv"
	"time"

	"github.com/dogcat/dogcat/internal/types"
)

// maxRetries is the number of nonces tried at the scaled length.
const maxRetries = 100

// LengthForCount scales the hash length with the number of existing issues.
func LengthForCount(n int) int {
	switch {
	case n <= 500:
		return 4
	case n <= 1500:
		return 5
	case n <= 5000:
		return 6
	default:
		return 7
	}
}

// Hash returns the first length base36 characters of sha256(input+nonce).
func Hash(input, nonce string, length int) string {
	sum := sha256.Sum256([]byte(input + nonce))
	s := new(big.Int).SetBytes(sum[:]).Text(36)
	if len(s) > length {
		s = s[:length]
	}
	return s
}

// Generator hands out ids that do not collide with a known set of full ids.
type Generator struct {
	existing map[string]bool
}

// New returns a generator seeded with the given full ids.
func New(existing []string) *Generator {
	g := &Generator{existing: make(map[string]bool, len(existing))}
	for _, id := range existing {
		g.existing[id] = true
	}
	return g
}

// Add records a full id as taken.
func (g *Generator) Add(fullID string) {
	g.existing[fullID] = true
}

// IssueID returns a fresh hash for an issue titled title in namespace.
// The returned value is the hash part only; the full id is "{namespace}-{hash}".
func (g *Generator) IssueID(namespace, title string, ts time.Time) string {
	if namespace == "" {
		namespace = types.DefaultNamespace
	}
	length := LengthForCount(len(g.existing))
	input := title + ":" + types.FormatTime(ts)

	for attempt := 0; attempt < maxRetries; attempt++ {
		nonce := ""
		if attempt > 0 {
			nonce = strconv.Itoa(attempt)
		}
		if h, ok := g.claim(namespace, Hash(input, nonce, length)); ok {
			return h
		}
	}

	longer := length + 2
	if h, ok := g.claim(namespace, Hash(input, "", longer)); ok {
		return h
	}

	h := Hash(input, strconv.FormatInt(ts.UnixMicro(), 10), longer)
	g.existing[namespace+"-"+h] = true
	return h
}

func (g *Generator) claim(namespace, hash string) (string, bool) {
	full := namespace + "-" + hash
	if g.existing[full] {
		return "", false
	}
	g.existing[full] = true
	return hash, true
}
