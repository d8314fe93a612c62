// Package kind packs a type id together with the ids of its bases into a
// single uint64. The lowest byte is the kind's own id and each following byte
// holds one base, so a variant check is a handful of shifts and compares and
// needs no reflection.
package kind

import "sync/atomic"

const (
	width    = 64
	idBits   = 8
	maxDepth = width / idBits
	idMask   = (1 << idBits) - 1
)

// Kind encodes a type id and up to seven inherited base ids.
type Kind = uint64

var counter atomic.Uint64

// Make allocates a fresh id and records the ids of every given base (and of
// their own bases) above it. Repeated bases are stored once.
func Make(bases ...Kind) Kind {
	id := counter.Add(1) & idMask
	seen := make(map[Kind]struct{}, maxDepth)
	slot := 0
	for _, base := range bases {
		for level := 0; level < maxDepth; level++ {
			baseID := (base >> (idBits * level)) & idMask
			if baseID == 0 {
				break
			}
			if _, ok := seen[baseID]; ok {
				continue
			}
			slot++
			if slot >= maxDepth {
				return id
			}
			seen[baseID] = struct{}{}
			id |= baseID << (idBits * slot)
		}
	}
	return id
}

// ID returns the kind's own id without its bases.
func ID(k Kind) Kind {
	return k & idMask
}

// Bases lists the base ids packed into k, nearest first.
func Bases(k Kind) []Kind {
	var bases []Kind
	for level := 1; level < maxDepth; level++ {
		baseID := (k >> (idBits * level)) & idMask
		if baseID == 0 {
			break
		}
		bases = append(bases, baseID)
	}
	return bases
}

// Is reports whether k is, or derives from, any of the given kinds.
//
//go:inline
func Is(k Kind, kinds ...Kind) bool {
	for _, other := range kinds {
		want := other & idMask
		if want == 0 {
			continue
		}
		for level := 0; level < maxDepth; level++ {
			if (k>>(idBits*level))&idMask == want {
				return true
			}
		}
	}
	return false
}
