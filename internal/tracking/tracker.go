// Package tracking records the lifecycle state and original values of the
// instances a session knows about, and computes what changed since they were
// loaded.
//
// A Tracker is owned by one session and is not safe for concurrent use.
package tracking

import (
	"sort"

	"cookbook/internal/core/apperror"
	"cookbook/internal/core/entity"
	"cookbook/internal/metadata"
)

type identityKey struct {
	typ string
	key string
}

// Tracker holds one Entry per tracked instance and the identity map of keyed entries.
type Tracker struct {
	registry *metadata.Registry
	entries  map[entity.Entity]*Entry
	identity map[identityKey]*Entry
	seq      uint64
}

// New creates an empty tracker over the given registry.
func New(registry *metadata.Registry) *Tracker {
	return &Tracker{
		registry: registry,
		entries:  make(map[entity.Entity]*Entry),
		identity: make(map[identityKey]*Entry),
	}
}

// Track starts tracking e in the given state.
//
// Initial states are Added (insert on save), Unchanged (attached or loaded;
// current values become the originals) and Modified (whole-object update;
// every field is dirty and the originals are unknown).
func (t *Tracker) Track(e entity.Entity, state entity.State) (*Entry, error) {
	typ, err := t.registry.Describe(e)
	if err != nil {
		return nil, err
	}
	if existing, ok := t.entries[e]; ok {
		return nil, apperror.NewDuplicateTracking(typ.Name, metadata.FormatKey(existing.Key()))
	}
	if state == entity.Detached || state == entity.Deleted {
		return nil, apperror.NewInvalidTransition(typ.Name, entity.Detached, state)
	}

	keyed := typ.HasKey(e)
	var ik identityKey
	if keyed {
		ik = identityKey{typ: typ.Name, key: metadata.FormatKey(typ.KeyValues(e))}
		if _, taken := t.identity[ik]; taken {
			return nil, apperror.NewDuplicateTracking(typ.Name, ik.key)
		}
	}

	t.seq++
	entry := &Entry{
		entity:   e,
		typ:      typ,
		state:    state,
		original: typ.Snapshot(e),
		loaded:   state == entity.Unchanged,
		seq:      t.seq,
	}
	if state == entity.Modified {
		entry.markAll()
	}

	t.entries[e] = entry
	if keyed {
		t.identity[ik] = entry
	}
	return entry, nil
}

// Entry returns the tracking record of e.
func (t *Tracker) Entry(e entity.Entity) (*Entry, bool) {
	entry, ok := t.entries[e]
	return entry, ok
}

// State returns the state of e, Detached when it is not tracked.
func (t *Tracker) State(e entity.Entity) entity.State {
	if entry, ok := t.entries[e]; ok {
		return entry.state
	}
	return entity.Detached
}

// SetState moves e to state, validated against the transition table.
func (t *Tracker) SetState(e entity.Entity, state entity.State) error {
	entry, ok := t.entries[e]
	if !ok {
		if state == entity.Detached {
			return nil
		}
		if state == entity.Deleted {
			typ, err := t.registry.Describe(e)
			if err != nil {
				return err
			}
			return apperror.NewInvalidTransition(typ.Name, entity.Detached, state)
		}
		_, err := t.Track(e, state)
		return err
	}

	from := entry.state
	if from == state {
		return nil
	}
	if !CanTransition(from, state) {
		return apperror.NewInvalidTransition(entry.typ.Name, from, state)
	}

	switch state {
	case entity.Detached:
		t.remove(entry)
	case entity.Unchanged:
		entry.accept()
		entry.state = entity.Unchanged
		t.index(entry)
	case entity.Modified:
		entry.markAll()
		entry.state = entity.Modified
	case entity.Deleted:
		entry.state = entity.Deleted
	}
	return nil
}

// DetectChanges compares every Unchanged and Modified entry with known
// originals against its snapshot and grows its dirty set. Unchanged entries
// with differences become Modified. It returns the number of entries whose
// dirty set grew.
func (t *Tracker) DetectChanges() int {
	changed := 0
	for _, entry := range t.entries {
		if entry.state != entity.Unchanged && entry.state != entity.Modified {
			continue
		}
		if !entry.loaded {
			continue
		}
		if entry.detect() {
			changed++
			entry.state = entity.Modified
		}
	}
	return changed
}

// AcceptAllChanges is called after a successful save: remaining entries take
// their current values as originals and become Unchanged, deleted entries are
// dropped.
func (t *Tracker) AcceptAllChanges() {
	for _, entry := range t.entries {
		if entry.state == entity.Deleted {
			t.remove(entry)
			continue
		}
		entry.accept()
		entry.state = entity.Unchanged
	}
	t.reindex()
}

// SetValue assigns a field and marks it dirty without a full diff.
// Untracked instances are only assigned.
func (t *Tracker) SetValue(e entity.Entity, field string, v any) error {
	typ, err := t.registry.Describe(e)
	if err != nil {
		return err
	}
	f, ok := typ.Field(field)
	if !ok {
		return apperror.NewFieldValidation(typ.Name, field, "no such field")
	}
	if err := f.Set(e, v); err != nil {
		return apperror.NewFieldValidation(typ.Name, field, err.Error()).WithCause(err)
	}

	entry, tracked := t.entries[e]
	if !tracked || f.Key || !entry.loaded {
		return nil
	}
	if entry.state != entity.Unchanged && entry.state != entity.Modified {
		return nil
	}
	if !metadata.Equal(entry.original[f.Ordinal()], f.Get(e)) {
		entry.dirty = entry.dirty.With(f.Ordinal())
		entry.state = entity.Modified
	}
	return nil
}

// MarkAllModified marks every non-key field of an Unchanged or Modified
// entry dirty, whatever its value.
func (t *Tracker) MarkAllModified(e entity.Entity) error {
	entry, ok := t.entries[e]
	if !ok {
		typ, err := t.registry.Describe(e)
		if err != nil {
			return err
		}
		return apperror.NewNotTracked(typ.Name)
	}
	if entry.state != entity.Unchanged && entry.state != entity.Modified {
		return apperror.NewInvalidTransition(entry.typ.Name, entry.state, entity.Modified)
	}
	entry.markAll()
	entry.state = entity.Modified
	return nil
}

// MarkModified forces a field into the dirty set of an Unchanged or Modified entry.
func (t *Tracker) MarkModified(e entity.Entity, field string) error {
	entry, ok := t.entries[e]
	if !ok {
		typ, err := t.registry.Describe(e)
		if err != nil {
			return err
		}
		return apperror.NewNotTracked(typ.Name)
	}
	f, ok := entry.typ.Field(field)
	if !ok {
		return apperror.NewFieldValidation(entry.typ.Name, field, "no such field")
	}
	if entry.state != entity.Unchanged && entry.state != entity.Modified {
		return apperror.NewInvalidTransition(entry.typ.Name, entry.state, entity.Modified)
	}
	if f.Key {
		return apperror.NewFieldValidation(entry.typ.Name, field, "key fields cannot be modified")
	}
	entry.dirty = entry.dirty.With(f.Ordinal())
	entry.state = entity.Modified
	return nil
}

// Lookup finds the entry tracked under typ and key.
func (t *Tracker) Lookup(typ *metadata.EntityType, key []any) (*Entry, bool) {
	entry, ok := t.identity[identityKey{typ: typ.Name, key: metadata.FormatKey(key)}]
	return entry, ok
}

// Entries returns all entries in tracking order.
func (t *Tracker) Entries() []*Entry {
	out := make([]*Entry, 0, len(t.entries))
	for _, entry := range t.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// HasChanges reports whether any entry is pending.
func (t *Tracker) HasChanges() bool {
	for _, entry := range t.entries {
		if entry.state.Pending() {
			return true
		}
	}
	return false
}

// Len is the number of tracked instances.
func (t *Tracker) Len() int { return len(t.entries) }

// Clear detaches every instance.
func (t *Tracker) Clear() {
	for _, entry := range t.entries {
		entry.state = entity.Detached
	}
	clear(t.entries)
	clear(t.identity)
}

func (t *Tracker) remove(entry *Entry) {
	delete(t.entries, entry.entity)
	for k, v := range t.identity {
		if v == entry {
			delete(t.identity, k)
		}
	}
	entry.state = entity.Detached
}

func (t *Tracker) index(entry *Entry) {
	if !entry.typ.HasKey(entry.entity) {
		return
	}
	t.identity[identityKey{typ: entry.typ.Name, key: metadata.FormatKey(entry.Key())}] = entry
}

func (t *Tracker) reindex() {
	clear(t.identity)
	for _, entry := range t.entries {
		t.index(entry)
	}
}
