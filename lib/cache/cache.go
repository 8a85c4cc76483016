package cache

import (
	"container/list"
	"sync"

	"grading_system/lib/logger"
)

type entry[TValue any] struct {
	Value TValue
	Size  uint64

	LockCount    uint64
	Loading      chan struct{} // closed when loading is finished
	LoadErr      error
	ListPosition *list.Element
}

// LRUSizeCache is a key value LRU cache bounded by total size of values.
//
// Values are loaded with a loader passed to Get. Concurrent Get calls for the same key share
// one load. Failed loads are not stored, next Get will try again.
//
// Every Get returns a release function, the value is not removed until it is released.
// If Remover is specified, it is called for every value removed from cache.
type LRUSizeCache[TKey comparable, TValue any] struct {
	mutex   sync.Mutex
	entries map[TKey]*entry[TValue]

	remover func(TKey, TValue)

	sizeBound uint64
	totalSize uint64

	recentRank *list.List
}

// NewLRUSizeCache creates new cache for given size bound
func NewLRUSizeCache[TKey comparable, TValue any](
	sizeBound uint64,
	remover func(TKey, TValue),
) *LRUSizeCache[TKey, TValue] {
	return &LRUSizeCache[TKey, TValue]{
		entries:    make(map[TKey]*entry[TValue]),
		remover:    remover,
		sizeBound:  sizeBound,
		recentRank: list.New(),
	}
}

// Get returns value for the key, calling load if it is absent.
//
// Load must return value and its size. The returned release function must be called
// when the value is no longer used.
func (c *LRUSizeCache[TKey, TValue]) Get(
	key TKey,
	load func() (TValue, uint64, error),
) (TValue, func(), error) {
	c.mutex.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry[TValue]{Loading: make(chan struct{}), LockCount: 1}
		c.entries[key] = e
		c.mutex.Unlock()
		return c.loadAbsentValue(key, e, load)
	}

	e.LockCount++
	loading := e.Loading
	c.mutex.Unlock()

	if loading != nil {
		<-loading
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if e.LoadErr != nil {
		e.LockCount--
		var zero TValue
		return zero, func() {}, e.LoadErr
	}
	c.itemUsed(key, e)
	return e.Value, c.releaseFunc(key, e), nil
}

// Insert puts value into cache directly.
// The value must not be present inside cache, otherwise ErrItemAlreadyExists is returned
func (c *LRUSizeCache[TKey, TValue]) Insert(key TKey, value TValue, size uint64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.entries[key]; ok {
		return &ErrItemAlreadyExists{key: key}
	}
	e := &entry[TValue]{Value: value, Size: size}
	c.entries[key] = e
	c.totalSize += size
	c.itemUsed(key, e)
	c.removeItemsIfNeeded()
	return nil
}

// Remove removes item from cache.
//
// If item does not exist in cache, returns nil.
// If item is used or loading, returns ErrItemLocked.
func (c *LRUSizeCache[TKey, TValue]) Remove(key TKey) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if e.LockCount > 0 || e.Loading != nil {
		return &ErrItemLocked{key: key}
	}
	c.removeSingleItem(key)
	return nil
}

func (c *LRUSizeCache[TKey, TValue]) Size() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.totalSize
}

func (c *LRUSizeCache[TKey, TValue]) loadAbsentValue(
	key TKey,
	e *entry[TValue],
	load func() (TValue, uint64, error),
) (TValue, func(), error) {
	value, size, err := load()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	loading := e.Loading
	e.Loading = nil
	defer close(loading)

	if err != nil {
		// waiters see the error, the key is loaded again by the next caller
		e.LoadErr = err
		e.LockCount--
		delete(c.entries, key)
		var zero TValue
		return zero, func() {}, err
	}

	e.Value = value
	e.Size = size
	c.totalSize += size
	c.itemUsed(key, e)
	c.removeItemsIfNeeded()
	return value, c.releaseFunc(key, e), nil
}

func (c *LRUSizeCache[TKey, TValue]) releaseFunc(key TKey, e *entry[TValue]) func() {
	return sync.OnceFunc(func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		if e.LockCount == 0 {
			logger.Panic("Error in LRUSizeCache. Releasing key which is not used, key: %v", key)
		}
		e.LockCount--
		c.removeItemsIfNeeded()
	})
}

// Mutex must be locked
func (c *LRUSizeCache[TKey, TValue]) itemUsed(key TKey, e *entry[TValue]) {
	if e.ListPosition != nil {
		c.recentRank.MoveToBack(e.ListPosition)
	} else {
		e.ListPosition = c.recentRank.PushBack(key)
	}
}

// Mutex must be locked
func (c *LRUSizeCache[TKey, TValue]) removeItemsIfNeeded() {
	elem := c.recentRank.Front()
	for c.totalSize > c.sizeBound && elem != nil {
		key := elem.Value.(TKey)
		e := c.entries[key]
		elem = elem.Next()

		if e.LockCount == 0 {
			c.removeSingleItem(key)
		}
	}
}

// Mutex must be locked
// Key must be present and lock count should be zero
func (c *LRUSizeCache[TKey, TValue]) removeSingleItem(key TKey) {
	e := c.entries[key]
	if e.LockCount != 0 {
		logger.Panic("Error in LRUSizeCache. Removing key with non zero lock count, key: %#v", key)
	}
	if c.remover != nil {
		c.remover(key, e.Value)
	}

	delete(c.entries, key)
	c.totalSize -= e.Size
	c.recentRank.Remove(e.ListPosition)
}
