package entity

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/qmuntal/stateless"
)

// Region is one parallel region of an entity's state chart.
type Region struct {
	name string
	sm   *stateless.StateMachine
}

// NewRegion starts a region in the given initial state.
func NewRegion(name, initial string) *Region {
	return &Region{
		name: name,
		sm:   stateless.NewStateMachineWithMode(initial, stateless.FiringImmediate),
	}
}

func (r *Region) Name() string { return r.name }

// Configure returns the configuration of state for declaring transitions.
func (r *Region) Configure(state string) *stateless.StateConfiguration {
	return r.sm.Configure(state)
}

// Fire runs trigger through the region. args are passed on to guards and actions.
func (r *Region) Fire(ctx context.Context, trigger string, args ...any) error {
	if err := r.sm.FireCtx(ctx, trigger, args...); err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	return nil
}

// Current returns the state the region is in.
func (r *Region) Current() string {
	return r.sm.MustState().(string)
}

// Is reports whether the region is currently in state.
func (r *Region) Is(state string) bool {
	return r.Current() == state
}

// Set drives a two-state flag region toward on or off by firing trigger
// only when it is not already there.
func (r *Region) Set(ctx context.Context, state, trigger string) error {
	if r.Is(state) {
		return nil
	}
	return r.Fire(ctx, trigger)
}

// CommandArg extracts the command passed to Fire, if any.
func CommandArg(args []any) (models.Command, bool) {
	for _, a := range args {
		if c, ok := a.(models.Command); ok {
			return c, true
		}
	}
	return models.Command{}, false
}
