package id

import (
	"github.com/google/uuid"
)

// Generator creates new IDs for store-assigned entities.
type Generator interface {
	// New returns a fresh ID that is never Nil and never Root.
	New() ID
}

// RandomGenerator produces random (version 4) IDs.
type RandomGenerator struct{}

// NewGenerator returns the default random generator.
func NewGenerator() RandomGenerator {
	return RandomGenerator{}
}

// New returns a random ID.
func (RandomGenerator) New() ID {
	for {
		u := uuid.New()
		candidate := ID{u: u}
		if !candidate.IsNil() && !candidate.IsRoot() {
			return candidate
		}
	}
}

// FromName derives a deterministic (version 5) ID from a namespace and a name.
// Replicas that agree on the namespace and the name obtain the same ID, which
// makes it suitable as a forced ID.
//
// Example:
//
//	ns := id.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
//	camera := id.FromName(ns, "robot-1/camera")
func FromName(namespace ID, name string) ID {
	return ID{u: uuid.NewSHA1(namespace.u, []byte(name))}
}

// SequenceGenerator hands out IDs from a fixed list, then falls back to
// random IDs. It is useful for tests that need predictable identities.
type SequenceGenerator struct {
	ids  []ID
	next int
}

// NewSequenceGenerator creates a generator returning ids in order.
func NewSequenceGenerator(ids ...ID) *SequenceGenerator {
	return &SequenceGenerator{ids: ids}
}

// New returns the next ID from the sequence.
func (g *SequenceGenerator) New() ID {
	if g.next < len(g.ids) {
		out := g.ids[g.next]
		g.next++
		return out
	}
	return RandomGenerator{}.New()
}
