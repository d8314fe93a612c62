package muid_test

import (
	"sort"
	"testing"
	"time"

	"github.com/aidarkhanov/nanoid/v2"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stateforward/hsm-dispatch/muid"
)

const nanoAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// generators compares instance id candidates by their string form, which is
// what ends up on instances and in logs.
var generators = []struct {
	name string
	next func() string
}{
	{"muid", muid.MakeString},
	{"uuid", func() string { return uuid.New().String() }},
	{"ulid", func() string { return ulid.Make().String() }},
	{"nanoid", func() string {
		id, _ := nanoid.GenerateString(nanoAlphabet, 21)
		return id
	}},
}

func BenchmarkIDString(b *testing.B) {
	for _, gen := range generators {
		b.Run(gen.name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				_ = gen.next()
			}
		})
	}
}

func BenchmarkIDStringParallel(b *testing.B) {
	for _, gen := range generators {
		b.Run(gen.name, func(b *testing.B) {
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					_ = gen.next()
				}
			})
		})
	}
}

func TestUniqueness(t *testing.T) {
	const total = 50_000
	for _, gen := range generators {
		t.Run(gen.name, func(t *testing.T) {
			seen := make(map[string]struct{}, total)
			for range total {
				id := gen.next()
				if _, ok := seen[id]; ok {
					t.Fatalf("collision: %s", id)
				}
				seen[id] = struct{}{}
			}
		})
	}
}

func TestSortable(t *testing.T) {
	const total = 2_000
	t.Run("muid", func(t *testing.T) {
		g := muid.New(muid.Config{}, 0, 0)
		ids := make([]muid.MUID, 0, total)
		for range total {
			ids = append(ids, g.Next())
			time.Sleep(time.Microsecond)
		}
		if !sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }) {
			t.Fatal("muids are not time ordered")
		}
	})
	t.Run("ulid", func(t *testing.T) {
		ids := make([]ulid.ULID, 0, total)
		for range total {
			ids = append(ids, ulid.Make())
			time.Sleep(time.Microsecond)
		}
		if !sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 }) {
			t.Fatal("ulids are not time ordered")
		}
	})
}
