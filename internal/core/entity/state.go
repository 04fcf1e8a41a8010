package entity

// State is the lifecycle state of an instance relative to one session.
type State uint8

const (
	// Detached instances are not tracked by the session.
	Detached State = iota
	// Added instances are inserted on the next save.
	Added
	// Unchanged instances match their original values.
	Unchanged
	// Modified instances have at least one dirty field and are updated on save.
	Modified
	// Deleted instances are removed from the store on save.
	Deleted
)

var stateNames = [...]string{
	Detached:  "Detached",
	Added:     "Added",
	Unchanged: "Unchanged",
	Modified:  "Modified",
	Deleted:   "Deleted",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// States lists every state in declaration order.
func States() []State {
	return []State{Detached, Added, Unchanged, Modified, Deleted}
}

// Pending reports whether the state produces a statement on save.
func (s State) Pending() bool {
	return s == Added || s == Modified || s == Deleted
}
