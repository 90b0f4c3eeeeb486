package async

import "sync"

// locks is the process-wide registry of currently held named locks. Entries
// are removed once their reference count drops to zero so the map never
// grows unboundedly under sustained load.
var locks = struct {
	sync.Mutex
	list map[string]*namedLock
}{list: make(map[string]*namedLock)}

type namedLock struct {
	ch       chan struct{}
	refcount int
}

// Multilock acquires several named locks together, always in the same
// sorted order, so that concurrent holders of overlapping key sets can
// never deadlock against each other.
type Multilock struct {
	keys []string
}

// NewMultilock returns a lock over the given (deduplicated) set of keys.
func NewMultilock(keys ...string) *Multilock {
	return &Multilock{keys: unique(keys)}
}

func unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// getChan returns (creating if necessary) the channel-backed lock for key,
// incrementing its refcount. Callers must hold locks.Mutex.
func getChan(key string) chan struct{} {
	nl, ok := locks.list[key]
	if !ok {
		nl = &namedLock{ch: make(chan struct{}, 1)}
		locks.list[key] = nl
	}
	nl.refcount++
	return nl.ch
}

// Lock acquires every key in sorted order, blocking until all are held.
func (m *Multilock) Lock() {
	sorted := sortedCopy(m.keys)
	chans := make([]chan struct{}, len(sorted))
	locks.Lock()
	for i, k := range sorted {
		chans[i] = getChan(k)
	}
	locks.Unlock()
	for _, ch := range chans {
		ch <- struct{}{}
	}
}

// Unlock releases every held key and removes any lock entry whose refcount
// has dropped to zero.
func (m *Multilock) Unlock() {
	sorted := sortedCopy(m.keys)
	locks.Lock()
	defer locks.Unlock()
	for _, k := range sorted {
		nl, ok := locks.list[k]
		if !ok {
			continue
		}
		<-nl.ch
		nl.refcount--
		if nl.refcount <= 0 {
			delete(locks.list, k)
		}
	}
}

// Yield briefly releases the scheduler to another goroutine contending for
// an overlapping key set, used in cooperative busy-wait loops.
func (m *Multilock) Yield() {
	m.Unlock()
	m.Lock()
}

// Clean removes every lock entry that no goroutine references any more and
// returns the removed keys.
func Clean() []string {
	locks.Lock()
	defer locks.Unlock()
	removed := make([]string, 0)
	for key, nl := range locks.list {
		if nl.refcount <= 0 {
			delete(locks.list, key)
			removed = append(removed, key)
		}
	}
	return removed
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
