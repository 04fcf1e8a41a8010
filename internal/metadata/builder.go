package metadata

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cookbook/internal/core/entity"
)

// FieldOption configures a field while it is declared.
type FieldOption func(*Field)

// MaxLength limits the length of a string field.
func MaxLength(n int) FieldOption {
	return func(f *Field) { f.MaxLength = n }
}

// Precision sets decimal(p,s) limits.
func Precision(p, s int) FieldOption {
	return func(f *Field) {
		f.Precision = p
		f.Scale = s
	}
}

// ConcurrencyCheck adds the field's original value to UPDATE and DELETE predicates.
func ConcurrencyCheck() FieldOption {
	return func(f *Field) { f.ConcurrencyCheck = true }
}

// RowVersion marks an integer field as the row version.
func RowVersion() FieldOption {
	return func(f *Field) { f.Version = true }
}

// Column overrides the derived column name.
func Column(name string) FieldOption {
	return func(f *Field) { f.Column = name }
}

// Builder declares the descriptor of T with typed accessors.
//
// Usage:
//
//	metadata.Define[Dish]("Dish").
//		Key("ID", func(d *Dish) *int64 { return &d.ID }).
//		String("Title", func(d *Dish) *string { return &d.Title }, metadata.MaxLength(100))
type Builder[T any, PT interface {
	*T
	entity.Entity
}] struct {
	t   *EntityType
	err error
}

// Define starts the descriptor of the entity type named name.
func Define[T any, PT interface {
	*T
	entity.Entity
}](name string) *Builder[T, PT] {
	return &Builder[T, PT]{t: &EntityType{
		Name:   name,
		Table:  TableName(name),
		byName: make(map[string]*Field),
		newFn:  func() entity.Entity { return PT(new(T)) },
		owns: func(e entity.Entity) bool {
			_, ok := e.(PT)
			return ok
		},
	}}
}

// Table overrides the derived table name.
func (b *Builder[T, PT]) Table(name string) *Builder[T, PT] {
	b.t.Table = name
	return b
}

// Key declares a store-generated int64 primary key.
func (b *Builder[T, PT]) Key(name string, acc func(PT) *int64, opts ...FieldOption) *Builder[T, PT] {
	f := int64Field(name, acc)
	f.Key = true
	f.Generated = true
	return b.add(f, opts)
}

// Int64 declares a non-null int64 field.
func (b *Builder[T, PT]) Int64(name string, acc func(PT) *int64, opts ...FieldOption) *Builder[T, PT] {
	return b.add(int64Field(name, acc), opts)
}

// Int declares a non-null int field.
func (b *Builder[T, PT]) Int(name string, acc func(PT) *int, opts ...FieldOption) *Builder[T, PT] {
	f := &Field{Name: name, Kind: KindInteger}
	f.get = func(e entity.Entity) any { return int64(*acc(e.(PT))) }
	f.set = func(e entity.Entity, v any) error {
		n, err := ToInt64(v)
		if err != nil {
			return err
		}
		*acc(e.(PT)) = int(n)
		return nil
	}
	return b.add(f, opts)
}

// NullInt declares a nullable int field.
func (b *Builder[T, PT]) NullInt(name string, acc func(PT) **int, opts ...FieldOption) *Builder[T, PT] {
	f := &Field{Name: name, Kind: KindInteger, Nullable: true}
	f.get = func(e entity.Entity) any {
		p := *acc(e.(PT))
		if p == nil {
			return nil
		}
		return int64(*p)
	}
	f.set = func(e entity.Entity, v any) error {
		v = deref(v)
		if v == nil {
			*acc(e.(PT)) = nil
			return nil
		}
		n, err := ToInt64(v)
		if err != nil {
			return err
		}
		i := int(n)
		*acc(e.(PT)) = &i
		return nil
	}
	return b.add(f, opts)
}

// String declares a non-null string field.
func (b *Builder[T, PT]) String(name string, acc func(PT) *string, opts ...FieldOption) *Builder[T, PT] {
	f := &Field{Name: name, Kind: KindString}
	f.get = func(e entity.Entity) any { return *acc(e.(PT)) }
	f.set = func(e entity.Entity, v any) error {
		s, err := ToString(v)
		if err != nil {
			return err
		}
		*acc(e.(PT)) = s
		return nil
	}
	return b.add(f, opts)
}

// NullString declares a nullable string field.
func (b *Builder[T, PT]) NullString(name string, acc func(PT) **string, opts ...FieldOption) *Builder[T, PT] {
	f := &Field{Name: name, Kind: KindString, Nullable: true}
	f.get = func(e entity.Entity) any {
		p := *acc(e.(PT))
		if p == nil {
			return nil
		}
		return *p
	}
	f.set = func(e entity.Entity, v any) error {
		v = deref(v)
		if v == nil {
			*acc(e.(PT)) = nil
			return nil
		}
		s, err := ToString(v)
		if err != nil {
			return err
		}
		*acc(e.(PT)) = &s
		return nil
	}
	return b.add(f, opts)
}

// Decimal declares a non-null fixed-point field.
func (b *Builder[T, PT]) Decimal(name string, acc func(PT) *decimal.Decimal, opts ...FieldOption) *Builder[T, PT] {
	f := &Field{Name: name, Kind: KindDecimal}
	f.get = func(e entity.Entity) any { return *acc(e.(PT)) }
	f.set = func(e entity.Entity, v any) error {
		d, err := ToDecimal(v)
		if err != nil {
			return err
		}
		*acc(e.(PT)) = d
		return nil
	}
	return b.add(f, opts)
}

// ForeignKey declares a non-null int64 field referencing the key of principal.
func (b *Builder[T, PT]) ForeignKey(name, principal string, acc func(PT) *int64, opts ...FieldOption) *Builder[T, PT] {
	f := int64Field(name, acc)
	f.References = principal
	return b.add(f, opts)
}

// Build returns the descriptor, or the first declaration error.
func (b *Builder[T, PT]) Build() (*EntityType, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.t, nil
}

// MustBuild is Build for package-level declarations.
func (b *Builder[T, PT]) MustBuild() *EntityType {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

// HasMany declares a collection navigation from T to its dependents C, linked
// by the dependent's foreign key field fk.
func HasMany[T any, PT interface {
	*T
	entity.Entity
}, C entity.Entity](b *Builder[T, PT], name, fk string, acc func(PT) []C) *Builder[T, PT] {
	var zero C
	b.t.navs = append(b.t.navs, &Navigation{
		Name:       name,
		Kind:       Collection,
		Target:     zero.EntityName(),
		ForeignKey: fk,
		items: func(e entity.Entity) []entity.Entity {
			src := acc(e.(PT))
			out := make([]entity.Entity, 0, len(src))
			for _, c := range src {
				if any(c) != any(zero) {
					out = append(out, c)
				}
			}
			return out
		},
	})
	return b
}

// BelongsTo declares a reference navigation from T to its principal P through
// T's foreign key field fk.
func BelongsTo[T any, PT interface {
	*T
	entity.Entity
}, P entity.Entity](b *Builder[T, PT], name, fk string, acc func(PT) P) *Builder[T, PT] {
	var zero P
	b.t.navs = append(b.t.navs, &Navigation{
		Name:       name,
		Kind:       Reference,
		Target:     zero.EntityName(),
		ForeignKey: fk,
		principal: func(e entity.Entity) entity.Entity {
			p := acc(e.(PT))
			if any(p) == any(zero) {
				return nil
			}
			return p
		},
	})
	return b
}

func int64Field[PT entity.Entity](name string, acc func(PT) *int64) *Field {
	f := &Field{Name: name, Kind: KindInteger}
	f.get = func(e entity.Entity) any { return *acc(e.(PT)) }
	f.set = func(e entity.Entity, v any) error {
		n, err := ToInt64(v)
		if err != nil {
			return err
		}
		*acc(e.(PT)) = n
		return nil
	}
	return f
}

func (b *Builder[T, PT]) add(f *Field, opts []FieldOption) *Builder[T, PT] {
	f.Column = ColumnName(f.Name)
	for _, opt := range opts {
		opt(f)
	}
	if b.err != nil {
		return b
	}
	if _, dup := b.t.byName[f.Name]; dup {
		b.err = fmt.Errorf("field %s declared twice", f.Name)
		return b
	}
	if f.Version && f.Kind != KindInteger {
		b.err = fmt.Errorf("row version %s must be an integer field", f.Name)
		return b
	}
	f.ordinal = len(b.t.fields)
	b.t.fields = append(b.t.fields, f)
	b.t.byName[f.Name] = f
	if f.Key {
		b.t.keys = append(b.t.keys, f)
	}
	if f.Version {
		b.t.version = f
	}
	return b
}
