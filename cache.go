package hsm

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache compiles each named machine once and hands the shared result to
// every caller. Concurrent requests for a name that is still compiling wait
// for that compilation instead of starting their own.
type Cache[T any] struct {
	config   Config
	group    singleflight.Group
	mutex    sync.RWMutex
	machines map[string]*Machine[T]
}

// NewCache returns an empty cache. The config is used for every compilation;
// its Name and ID are replaced per machine.
func NewCache[T any](maybeConfig ...Config) *Cache[T] {
	return &Cache[T]{
		config:   configOf(maybeConfig),
		machines: map[string]*Machine[T]{},
	}
}

// Get returns the machine compiled under name, calling declare and compiling
// its result on first use. Failed compilations are not cached.
func (c *Cache[T]) Get(name string, declare func() *State[T]) (*Machine[T], error) {
	if machine, ok := c.lookup(name); ok {
		return machine, nil
	}
	value, err, _ := c.group.Do(name, func() (any, error) {
		if machine, ok := c.lookup(name); ok {
			return machine, nil
		}
		config := c.config
		config.Name, config.ID = name, ""
		machine, err := Compile(declare(), config)
		if err != nil {
			return nil, err
		}
		c.mutex.Lock()
		c.machines[name] = machine
		c.mutex.Unlock()
		return machine, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Machine[T]), nil
}

func (c *Cache[T]) lookup(name string) (*Machine[T], bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	machine, ok := c.machines[name]
	return machine, ok
}

// Forget drops the machine compiled under name. Instances already running it
// are unaffected.
func (c *Cache[T]) Forget(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.machines, name)
}

// Len returns the number of cached machines.
func (c *Cache[T]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.machines)
}
