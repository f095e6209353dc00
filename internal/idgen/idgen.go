// Package idgen allocates entity ids, short shareable codes and verify codes.
package idgen

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Generator hands out codes that are unique within one process. Codes are
// tracked per namespace so each activity kind has its own code space, and are
// released when their activity goes away.
type Generator struct {
	mu         sync.Mutex
	codeLength int
	verifyLen  int
	taken      map[string]map[string]struct{}
}

func New(codeLength, verifyLength int) *Generator {
	if codeLength <= 0 || codeLength > 32 {
		codeLength = 8
	}
	if verifyLength <= 0 {
		verifyLength = 3
	}
	return &Generator{
		codeLength: codeLength,
		verifyLen:  verifyLength,
		taken:      make(map[string]map[string]struct{}),
	}
}

// NewID returns an opaque globally unique id.
func (g *Generator) NewID() string {
	return uuid.NewString()
}

// NewCode reserves a short URL-safe code in namespace.
func (g *Generator) NewCode(namespace string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	space, ok := g.taken[namespace]
	if !ok {
		space = make(map[string]struct{})
		g.taken[namespace] = space
	}
	for {
		code := strings.ReplaceAll(uuid.NewString(), "-", "")[:g.codeLength]
		if _, dup := space[code]; dup {
			continue
		}
		space[code] = struct{}{}
		return code
	}
}

// Release frees code so the namespace does not grow for the process lifetime.
func (g *Generator) Release(namespace, code string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	space, ok := g.taken[namespace]
	if !ok {
		return
	}
	delete(space, code)
	if len(space) == 0 {
		delete(g.taken, namespace)
	}
}

// Reserved reports how many codes are held in namespace.
func (g *Generator) Reserved(namespace string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.taken[namespace])
}

// NewVerifyCode returns a numeric secret of the configured length.
func (g *Generator) NewVerifyCode() string {
	limit := 1
	for range g.verifyLen {
		limit *= 10
	}
	return fmt.Sprintf("%0*d", g.verifyLen, rand.IntN(limit))
}
