// Package metadata holds the static descriptors of every mapped entity type.
//
// Descriptors are declared once at startup with the typed Builder and frozen by
// NewRegistry; the tracker and the session read them without locking.
package metadata

import (
	"strings"

	"cookbook/internal/core/entity"
)

// Kind is the semantic type of a field.
type Kind string

const (
	KindInteger Kind = "integer"
	KindString  Kind = "string"
	KindDecimal Kind = "decimal"
)

// MaxFields is the number of fields a type may declare; dirty sets are 64-bit masks.
const MaxFields = 64

// Field describes one mapped column.
type Field struct {
	Name   string
	Column string
	Kind   Kind

	Nullable         bool
	Key              bool
	Generated        bool // value assigned by the store on insert
	Version          bool // row version, bumped on every update
	ConcurrencyCheck bool // original value is part of UPDATE/DELETE predicates

	MaxLength int
	Precision int
	Scale     int

	// References names the principal entity type of a foreign key field.
	References string

	ordinal int
	get     func(entity.Entity) any
	set     func(entity.Entity, any) error
}

// Ordinal is the position of the field within its type.
func (f *Field) Ordinal() int { return f.ordinal }

// Get returns the normalized current value: integers as int64, strings as
// string, decimals as decimal.Decimal, unset nullable fields as nil.
func (f *Field) Get(e entity.Entity) any { return f.get(e) }

// Set assigns v, converting backend representations to the field type.
func (f *Field) Set(e entity.Entity, v any) error { return f.set(e, v) }

// IsForeignKey reports whether the field references another entity type.
func (f *Field) IsForeignKey() bool { return f.References != "" }

// NavigationKind distinguishes collection and reference navigations.
type NavigationKind uint8

const (
	// Collection navigations go from a principal to its dependents.
	Collection NavigationKind = iota + 1
	// Reference navigations go from a dependent to its principal.
	Reference
)

// Navigation links two entity types through a foreign key.
type Navigation struct {
	Name   string
	Kind   NavigationKind
	Target string

	// ForeignKey is the name of the FK field on the dependent side:
	// on Target for collections, on the declaring type for references.
	ForeignKey string

	items     func(entity.Entity) []entity.Entity
	principal func(entity.Entity) entity.Entity

	target *EntityType
	fk     *Field
}

// Items returns the dependents held by a collection navigation.
func (n *Navigation) Items(e entity.Entity) []entity.Entity {
	if n.items == nil {
		return nil
	}
	return n.items(e)
}

// Principal returns the instance held by a reference navigation, or nil.
func (n *Navigation) Principal(e entity.Entity) entity.Entity {
	if n.principal == nil {
		return nil
	}
	return n.principal(e)
}

// TargetType is resolved when the registry is built.
func (n *Navigation) TargetType() *EntityType { return n.target }

// ForeignKeyField is the FK field on the dependent type.
func (n *Navigation) ForeignKeyField() *Field { return n.fk }

// EntityType is the immutable descriptor of one mapped type.
type EntityType struct {
	Name  string
	Table string

	fields   []*Field
	byName   map[string]*Field
	byColumn map[string]*Field
	keys     []*Field
	version  *Field
	navs     []*Navigation

	newFn func() entity.Entity
	owns  func(entity.Entity) bool
	rank  int
}

// Fields returns the fields in declaration order.
func (t *EntityType) Fields() []*Field { return t.fields }

// Field looks a field up by name.
func (t *EntityType) Field(name string) (*Field, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// FieldByColumn looks a field up by column name, ignoring case.
func (t *EntityType) FieldByColumn(column string) (*Field, bool) {
	f, ok := t.byColumn[strings.ToLower(column)]
	return f, ok
}

// Keys returns the primary key fields.
func (t *EntityType) Keys() []*Field { return t.keys }

// VersionField returns the row version field, or nil.
func (t *EntityType) VersionField() *Field { return t.version }

// Navigations returns the declared navigations.
func (t *EntityType) Navigations() []*Navigation { return t.navs }

// Rank orders types by foreign key dependency: a principal has a lower rank
// than each of its dependents.
func (t *EntityType) Rank() int { return t.rank }

// New allocates a zero instance.
func (t *EntityType) New() entity.Entity { return t.newFn() }

// Owns reports whether e is an instance of this type.
func (t *EntityType) Owns(e entity.Entity) bool { return t.owns(e) }

// Columns returns the column names in declaration order.
func (t *EntityType) Columns() []string {
	cols := make([]string, len(t.fields))
	for i, f := range t.fields {
		cols[i] = f.Column
	}
	return cols
}

// KeyValues returns the current key of e.
func (t *EntityType) KeyValues(e entity.Entity) []any {
	vals := make([]any, len(t.keys))
	for i, f := range t.keys {
		vals[i] = f.Get(e)
	}
	return vals
}

// HasKey reports whether every generated key field of e has been assigned.
// Non-generated keys always count as assigned.
func (t *EntityType) HasKey(e entity.Entity) bool {
	for _, f := range t.keys {
		if f.Generated && isZero(f.Get(e)) {
			return false
		}
	}
	return true
}

// Snapshot copies the current value of every field.
func (t *EntityType) Snapshot(e entity.Entity) []any {
	vals := make([]any, len(t.fields))
	for i, f := range t.fields {
		vals[i] = f.Get(e)
	}
	return vals
}

// Values returns the current values keyed by column name.
func (t *EntityType) Values(e entity.Entity) map[string]any {
	vals := make(map[string]any, len(t.fields))
	for _, f := range t.fields {
		vals[f.Column] = f.Get(e)
	}
	return vals
}

// FormatKey renders key values for messages and identity lookups.
func FormatKey(vals []any) string {
	if len(vals) == 1 {
		return formatValue(vals[0])
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = formatValue(v)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
