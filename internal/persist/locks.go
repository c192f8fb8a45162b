package persist

import (
	"runtime"
	"sync"

	"github.com/zeebo/xxh3"
)

// lockTable serializes same-key accesses within the process. Keys share a
// lock when their hashes collide.
type lockTable struct {
	locks []sync.RWMutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make([]sync.RWMutex, 2*runtime.NumCPU())}
}

func (t *lockTable) get(key string) *sync.RWMutex {
	return &t.locks[xxh3.HashString(key)%uint64(len(t.locks))]
}
