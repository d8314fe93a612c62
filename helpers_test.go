package hsm_test

import (
	"context"

	"github.com/stateforward/hsm-dispatch"
)

type recorder struct {
	calls []string
	sm    *hsm.Instance[*recorder]
}

func record(name string) hsm.Action[*recorder] {
	return func(_ context.Context, r *recorder, _ hsm.Event) {
		r.calls = append(r.calls, name)
	}
}

func always(ok bool) hsm.Guard[*recorder] {
	return func(context.Context, *recorder, hsm.Event) bool {
		return ok
	}
}

type state = hsm.State[*recorder]

func leaf(name string) *state {
	return hsm.NewState[*recorder](name)
}

func start(machine *hsm.Machine[*recorder]) (*hsm.Instance[*recorder], *recorder) {
	deps := &recorder{}
	sm := hsm.New(machine, deps)
	deps.sm = sm
	if err := sm.Start(context.Background()); err != nil {
		panic(err)
	}
	return sm, deps
}

// guardsAndActions declares:
//
//	s1 -e1 [true] / a2-> s1
//	s1 -e2-> sub { inner -e1-> inner }
//	s1 -e3 [false]-> s2
//	s1 -e4 [true]-> s2
func guardsAndActions() *state {
	s1, s2, inner := leaf("s1"), leaf("s2"), leaf("inner")
	sub := leaf("sub").Initial(inner).Add(inner, "e1", nil, nil, inner)
	return leaf("root").
		Initial(s1).
		AddTransition(hsm.Transition[*recorder]{Source: s1, Event: "e1", Guard: always(true), Action: record("a2"), Target: s1, GuardName: "yes", ActionName: "a2"}).
		Add(s1, "e2", nil, nil, sub).
		AddTransition(hsm.Transition[*recorder]{Source: s1, Event: "e3", Guard: always(false), Target: s2, GuardName: "no"}).
		AddTransition(hsm.Transition[*recorder]{Source: s1, Event: "e4", Guard: always(true), Target: s2, GuardName: "yes"})
}
