package hsm_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/stateforward/hsm-dispatch"
)

func TestCacheCompilesOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cache := hsm.NewCache[*recorder]()
	var compiled atomic.Int32
	declare := func() *state {
		compiled.Add(1)
		return guardsAndActions()
	}

	machines := make([]*hsm.Machine[*recorder], 32)
	var group errgroup.Group
	for i := range machines {
		group.Go(func() error {
			machine, err := cache.Get("player", declare)
			machines[i] = machine
			return err
		})
	}
	require.NoError(t, group.Wait())

	assert.Equal(t, int32(1), compiled.Load())
	assert.Equal(t, 1, cache.Len())
	for _, machine := range machines {
		assert.Same(t, machines[0], machine)
	}
	assert.Equal(t, "player", machines[0].Name())
}

func TestCacheDoesNotKeepFailures(t *testing.T) {
	cache := hsm.NewCache[*recorder]()
	_, err := cache.Get("broken", func() *state { return leaf("root") })
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())

	machine, err := cache.Get("broken", guardsAndActions)
	require.NoError(t, err)
	assert.NotNil(t, machine)
}

func TestCacheForget(t *testing.T) {
	cache := hsm.NewCache[*recorder]()
	first, err := cache.Get("player", guardsAndActions)
	require.NoError(t, err)

	cache.Forget("player")
	assert.Equal(t, 0, cache.Len())

	second, err := cache.Get("player", guardsAndActions)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestInstancesShareMachine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	machine := hsm.MustCompile(guardsAndActions())
	group, ctx := errgroup.WithContext(context.Background())
	for range 16 {
		group.Go(func() error {
			deps := &recorder{}
			sm := hsm.New(machine, deps)
			if err := sm.Start(ctx); err != nil {
				return err
			}
			for _, name := range []string{"e1", "e3", "e2", "e1"} {
				if _, err := sm.Dispatch(ctx, hsm.Event{Name: name}); err != nil {
					return err
				}
			}
			if !sm.Is("inner") {
				return assert.AnError
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
}
