package tracking

import (
	"cookbook/internal/core/entity"
	"cookbook/internal/metadata"
)

// Entry is the tracking record of one instance.
type Entry struct {
	entity entity.Entity
	typ    *metadata.EntityType
	state  entity.State

	original []any
	// loaded is true when original holds values read from or written to the store.
	loaded bool
	dirty  Mask
	seq    uint64
}

// Change is one dirty field of an entry.
type Change struct {
	Field    string
	Column   string
	Original any
	Current  any
}

// Entity returns the tracked instance.
func (e *Entry) Entity() entity.Entity { return e.entity }

// Type returns the descriptor of the instance.
func (e *Entry) Type() *metadata.EntityType { return e.typ }

// State returns the lifecycle state.
func (e *Entry) State() entity.State { return e.state }

// Dirty returns the dirty field mask.
func (e *Entry) Dirty() Mask { return e.dirty }

// OriginalsKnown reports whether the original values came from the store.
// Entries attached through the whole-object update path do not know them.
func (e *Entry) OriginalsKnown() bool { return e.loaded }

// Seq is the tracking order of the entry within its session.
func (e *Entry) Seq() uint64 { return e.seq }

// Key returns the current key values.
func (e *Entry) Key() []any { return e.typ.KeyValues(e.entity) }

// OriginalValue returns the snapshot value of the named field.
func (e *Entry) OriginalValue(field string) (any, bool) {
	f, ok := e.typ.Field(field)
	if !ok {
		return nil, false
	}
	return e.original[f.Ordinal()], true
}

// OriginalAt returns the snapshot value of the field at ordinal i.
func (e *Entry) OriginalAt(i int) any { return e.original[i] }

// CurrentValue returns the live value of the named field.
func (e *Entry) CurrentValue(field string) (any, bool) {
	f, ok := e.typ.Field(field)
	if !ok {
		return nil, false
	}
	return f.Get(e.entity), true
}

// IsModified reports whether the named field is in the dirty set.
func (e *Entry) IsModified(field string) bool {
	f, ok := e.typ.Field(field)
	return ok && e.dirty.Has(f.Ordinal())
}

// DirtyFields returns the dirty fields in declaration order.
func (e *Entry) DirtyFields() []*metadata.Field {
	fields := e.typ.Fields()
	out := make([]*metadata.Field, 0, e.dirty.Len())
	for _, i := range e.dirty.Ordinals() {
		out = append(out, fields[i])
	}
	return out
}

// Changes lists the dirty fields with their original and current values.
func (e *Entry) Changes() []Change {
	out := make([]Change, 0, e.dirty.Len())
	for _, f := range e.DirtyFields() {
		out = append(out, Change{
			Field:    f.Name,
			Column:   f.Column,
			Original: e.original[f.Ordinal()],
			Current:  f.Get(e.entity),
		})
	}
	return out
}

// detect ORs the fields whose current value differs from the snapshot into the mask.
func (e *Entry) detect() bool {
	before := e.dirty
	for i, f := range e.typ.Fields() {
		if f.Key || e.dirty.Has(i) {
			continue
		}
		if !metadata.Equal(e.original[i], f.Get(e.entity)) {
			e.dirty = e.dirty.With(i)
		}
	}
	return e.dirty != before
}

// markAll sets every non-key field dirty.
func (e *Entry) markAll() {
	for i, f := range e.typ.Fields() {
		if !f.Key {
			e.dirty = e.dirty.With(i)
		}
	}
}

// accept takes the current values as the new originals.
func (e *Entry) accept() {
	e.original = e.typ.Snapshot(e.entity)
	e.loaded = true
	e.dirty = 0
}
