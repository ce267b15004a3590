package blocks

import (
	"math/rand/v2"
	"strconv"
)

const (
	minKey = 100000
	maxKey = 999999999

	// Redraw limit before a duplicate is accepted from a degenerate source.
	maxKeyAttempts = 32
)

// KeyGenerator yields candidate _key values. Duplicates within one
// conversion are redrawn.
type KeyGenerator interface {
	Key() string
}

// RandomKeys draws decimal keys uniformly from [100000, 999999999].
type RandomKeys struct{}

func (RandomKeys) Key() string {
	return strconv.Itoa(minKey + rand.IntN(maxKey-minKey+1))
}

// keySet hands out keys that do not repeat within one conversion.
type keySet struct {
	src  KeyGenerator
	seen map[string]struct{}
}

func newKeySet(src KeyGenerator) *keySet {
	return &keySet{src: src, seen: map[string]struct{}{}}
}

func (s *keySet) next() string {
	var key string
	for i := 0; i < maxKeyAttempts; i++ {
		key = s.src.Key()
		if _, dup := s.seen[key]; !dup {
			break
		}
	}
	s.seen[key] = struct{}{}
	return key
}
