package tracking

import "cookbook/internal/core/entity"

// transitions lists the legal target states of each state.
// A state change to the current state is always a no-op.
var transitions = map[entity.State][]entity.State{
	entity.Detached:  {entity.Added, entity.Unchanged, entity.Modified},
	entity.Added:     {entity.Unchanged, entity.Detached},
	entity.Unchanged: {entity.Modified, entity.Deleted, entity.Detached},
	entity.Modified:  {entity.Unchanged, entity.Deleted, entity.Detached},
	entity.Deleted:   {entity.Detached},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to entity.State) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
