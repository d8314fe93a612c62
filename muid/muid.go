// Package muid generates 64-bit monotonically unique ids for compiled machines
// and running instances.
//
// Layout, most significant first:
//
//	[timestamp ms since Epoch][node][shard][sequence]
//
// The timestamp and node widths come from Config; the shard width is derived
// from GOMAXPROCS and the sequence takes the remaining bits.
package muid

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	"math/bits"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls the bit layout of generated ids. Zero fields fall back to
// the values of DefaultConfig.
type Config struct {
	Node          uint64
	TimestampBits int
	NodeBits      int
	Epoch         int64
}

// DefaultConfig derives the node id from the host name, or from random bytes
// when the host name is unavailable.
var DefaultConfig = sync.OnceValue(func() Config {
	config := Config{
		TimestampBits: 40,
		NodeBits:      14,
		Epoch:         1700000000000,
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		hash := fnv.New64a()
		_, _ = hash.Write([]byte(host))
		config.Node = hash.Sum64()
	} else {
		var buf [8]byte
		_, _ = rand.Read(buf[:])
		config.Node = binary.BigEndian.Uint64(buf[:])
	}
	config.Node &= (1 << config.NodeBits) - 1
	return config
})

// MUID is a monotonically unique id.
type MUID uint64

// String renders the id in base 32.
func (id MUID) String() string {
	return strconv.FormatUint(uint64(id), 32)
}

// Generator hands out ids for a single shard. It is safe for concurrent use.
type Generator struct {
	epoch        int64
	sequenceBits int
	sequenceMask uint64
	timeShift    int
	prefix       uint64
	last         atomic.Uint64
}

// New returns a generator for the given shard. shardBits bits of the id are
// reserved for the shard index.
func New(config Config, shard uint64, shardBits int) *Generator {
	defaults := DefaultConfig()
	if config.TimestampBits <= 0 {
		config.TimestampBits = defaults.TimestampBits
	}
	if config.NodeBits <= 0 {
		config.NodeBits = defaults.NodeBits
	}
	if config.Epoch <= 0 {
		config.Epoch = defaults.Epoch
	}
	if config.Node == 0 {
		config.Node = defaults.Node
	}
	sequenceBits := 64 - config.TimestampBits - config.NodeBits - shardBits
	node := config.Node & ((1 << config.NodeBits) - 1)
	shard &= (1 << shardBits) - 1
	return &Generator{
		epoch:        config.Epoch,
		sequenceBits: sequenceBits,
		sequenceMask: (1 << sequenceBits) - 1,
		timeShift:    config.NodeBits + shardBits + sequenceBits,
		prefix:       node<<(shardBits+sequenceBits) | shard<<sequenceBits,
	}
}

// Next returns the next id. When the sequence space of the current
// millisecond is exhausted the generator borrows the next millisecond, and a
// clock that moves backwards is treated as standing still.
func (g *Generator) Next() MUID {
	for {
		now := uint64(time.Now().UnixMilli() - g.epoch)
		previous := g.last.Load()
		lastTime := previous >> g.sequenceBits
		sequence := previous & g.sequenceMask
		switch {
		case now < lastTime:
			now = lastTime
			fallthrough
		case now == lastTime:
			if sequence >= g.sequenceMask {
				now++
				sequence = 1
			} else {
				sequence++
			}
		default:
			sequence = 1
		}
		if g.last.CompareAndSwap(previous, now<<g.sequenceBits|sequence) {
			return MUID(now<<g.timeShift | g.prefix | sequence)
		}
	}
}

type pool struct {
	generators []*Generator
	next       atomic.Uint64
}

var shards = sync.OnceValue(func() *pool {
	shardBits := 0
	if procs := runtime.GOMAXPROCS(0); procs > 1 {
		shardBits = min(bits.Len(uint(procs-1)), 5)
	}
	p := &pool{generators: make([]*Generator, 1<<shardBits)}
	for i := range p.generators {
		p.generators[i] = New(DefaultConfig(), uint64(i), shardBits)
	}
	return p
})

// Make returns an id from the shared generator pool, spreading callers across
// shards round robin.
func Make() MUID {
	p := shards()
	return p.generators[p.next.Add(1)%uint64(len(p.generators))].Next()
}

// MakeString is Make().String().
func MakeString() string {
	return Make().String()
}

// Prefixed returns "<prefix>_<id>", the form used for instance ids.
func Prefixed(prefix string) string {
	if prefix == "" {
		return MakeString()
	}
	return prefix + "_" + MakeString()
}
