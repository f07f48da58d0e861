package roleadmin

import (
	"context"
	"slices"
	"sync"
)

// Locker serializes mutations per role name. Lock acquires every name or none and
// returns a function releasing them all. Implementations must acquire multiple names
// in a consistent order so that concurrent multi-name locks cannot deadlock.
type Locker interface {
	Lock(ctx context.Context, names ...string) (unlock func(), err error)
}

// KeyedLocker is an in-process Locker with one mutex per name.
// Entries are dropped once no goroutine holds or waits on them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

// NewKeyedLocker creates an in-process per-name locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

// Lock blocks until every name is held or ctx is done.
func (l *KeyedLocker) Lock(ctx context.Context, names ...string) (func(), error) {
	names = lockOrder(names)
	held := make([]string, 0, len(names))

	for _, name := range names {
		entry := l.acquireRef(name)
		select {
		case entry.sem <- struct{}{}:
			held = append(held, name)
		case <-ctx.Done():
			l.releaseRef(name, false)
			l.unlock(held)
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.unlock(held) })
	}, nil
}

// Len returns the number of names currently held or awaited.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *KeyedLocker) unlock(names []string) {
	for i := len(names) - 1; i >= 0; i-- {
		l.releaseRef(names[i], true)
	}
}

func (l *KeyedLocker) acquireRef(name string) *keyedLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[name]
	if !ok {
		entry = &keyedLock{sem: make(chan struct{}, 1)}
		l.locks[name] = entry
	}
	entry.refs++
	return entry
}

func (l *KeyedLocker) releaseRef(name string, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.locks[name]
	if held {
		<-entry.sem
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, name)
	}
}

// lockOrder returns the distinct names in sorted order.
func lockOrder(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}
