package businessflow

import (
	"hash/fnv"
	"strings"
	"sync"
)

const counterLockStripes = 64

// counterLocks orders mutations of the same counter inside this process so
// the value written to the cache is the value of the last committed mutation.
// Names hash onto a fixed set of mutexes. Other processes sharing the cache
// are not covered; the row version stored with each entry orders those.
type counterLocks struct {
	stripes [counterLockStripes]sync.Mutex
}

func (l *counterLocks) lock(name string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	m := &l.stripes[h.Sum32()%counterLockStripes]
	m.Lock()
	return m.Unlock
}

// staleNames tracks counters whose cached entry may be older than the store
type staleNames struct {
	names sync.Map
}

func (s *staleNames) mark(name string) {
	// names may alias request buffers
	s.names.Store(strings.Clone(name), struct{}{})
}

func (s *staleNames) clear(name string) {
	s.names.Delete(name)
}

func (s *staleNames) has(name string) bool {
	_, ok := s.names.Load(name)
	return ok
}
