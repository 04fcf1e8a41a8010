package metadata

import (
	"fmt"
	"sort"
	"strings"

	"cookbook/internal/core/apperror"
	"cookbook/internal/core/entity"
	"cookbook/internal/core/types"
)

// Registry stores the frozen entity type descriptors.
// It is safe for concurrent use once built.
type Registry struct {
	types   map[string]*EntityType
	ordered []*EntityType
}

// NewRegistry validates the descriptors, resolves navigations and computes
// dependency ranks. Descriptors must not be modified afterwards.
func NewRegistry(defs ...*EntityType) (*Registry, error) {
	r := &Registry{types: make(map[string]*EntityType, len(defs))}

	for _, t := range defs {
		if t == nil {
			return nil, apperror.NewUnmappedType("", "nil descriptor")
		}
		if _, dup := r.types[t.Name]; dup {
			return nil, apperror.NewUnmappedType(t.Name, "registered twice")
		}
		if err := checkType(t); err != nil {
			return nil, err
		}
		r.types[t.Name] = t
	}

	for _, t := range defs {
		if err := r.resolve(t); err != nil {
			return nil, err
		}
	}
	if err := r.rank(); err != nil {
		return nil, err
	}

	r.ordered = append(r.ordered, defs...)
	sort.SliceStable(r.ordered, func(i, j int) bool {
		return r.ordered[i].rank < r.ordered[j].rank
	})
	return r, nil
}

func checkType(t *EntityType) error {
	if t.Name == "" {
		return apperror.NewUnmappedType(t.Name, "empty name")
	}
	if !ValidIdentifier(t.Table) {
		return apperror.NewUnmappedType(t.Name, fmt.Sprintf("invalid table name %q", t.Table))
	}
	if len(t.keys) == 0 {
		return apperror.NewUnmappedType(t.Name, "no key declared")
	}
	if len(t.fields) > MaxFields {
		return apperror.NewUnmappedType(t.Name, fmt.Sprintf("%d fields declared, at most %d supported", len(t.fields), MaxFields))
	}

	t.byColumn = make(map[string]*Field, len(t.fields))
	for _, f := range t.fields {
		if !ValidIdentifier(f.Column) {
			return apperror.NewUnmappedType(t.Name, fmt.Sprintf("invalid column name %q", f.Column))
		}
		col := strings.ToLower(f.Column)
		if _, dup := t.byColumn[col]; dup {
			return apperror.NewUnmappedType(t.Name, fmt.Sprintf("column %s mapped twice", f.Column))
		}
		t.byColumn[col] = f
	}
	return nil
}

func (r *Registry) resolve(t *EntityType) error {
	for _, f := range t.fields {
		if f.References == "" {
			continue
		}
		p, ok := r.types[f.References]
		if !ok {
			return apperror.NewUnmappedType(t.Name, fmt.Sprintf("foreign key %s references unregistered type %s", f.Name, f.References))
		}
		if len(p.keys) != 1 {
			return apperror.NewUnmappedType(t.Name, fmt.Sprintf("foreign key %s: %s must have exactly one key field", f.Name, p.Name))
		}
	}

	for _, n := range t.navs {
		target, ok := r.types[n.Target]
		if !ok {
			return apperror.NewUnmappedType(t.Name, fmt.Sprintf("navigation %s targets unregistered type %s", n.Name, n.Target))
		}
		n.target = target

		dependent, principal := t, target
		if n.Kind == Collection {
			dependent, principal = target, t
		}
		fk, ok := dependent.Field(n.ForeignKey)
		if !ok {
			return apperror.NewUnmappedType(t.Name, fmt.Sprintf("navigation %s: %s has no field %s", n.Name, dependent.Name, n.ForeignKey))
		}
		if fk.References != principal.Name {
			return apperror.NewUnmappedType(t.Name, fmt.Sprintf("navigation %s: %s.%s does not reference %s", n.Name, dependent.Name, fk.Name, principal.Name))
		}
		n.fk = fk
	}
	return nil
}

// rank assigns each type one more than the highest rank of its principals.
func (r *Registry) rank() error {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(r.types))

	var visit func(t *EntityType) error
	visit = func(t *EntityType) error {
		switch marks[t.Name] {
		case done:
			return nil
		case visiting:
			return apperror.NewUnmappedType(t.Name, "foreign key cycle")
		}
		marks[t.Name] = visiting
		t.rank = 0
		for _, f := range t.fields {
			if f.References == "" || f.References == t.Name {
				continue
			}
			p := r.types[f.References]
			if err := visit(p); err != nil {
				return err
			}
			if p.rank+1 > t.rank {
				t.rank = p.rank + 1
			}
		}
		marks[t.Name] = done
		return nil
	}

	for _, t := range r.types {
		if err := visit(t); err != nil {
			return err
		}
	}
	return nil
}

// Describe returns the descriptor of e's type.
func (r *Registry) Describe(e entity.Entity) (*EntityType, error) {
	if e == nil {
		return nil, apperror.NewUnmappedType("<nil>", "nil instance")
	}
	t, ok := r.types[e.EntityName()]
	if !ok || !t.Owns(e) {
		return nil, apperror.NewUnmappedType(fmt.Sprintf("%T", e), "not registered")
	}
	return t, nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (*EntityType, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, apperror.NewUnmappedType(name, "not registered")
	}
	return t, nil
}

// Types returns the descriptors ordered by dependency rank.
func (r *Registry) Types() []*EntityType {
	return r.ordered
}

// Validate checks declared length and precision limits against e's current values.
func (t *EntityType) Validate(e entity.Entity) error {
	for _, f := range t.fields {
		v := f.Get(e)
		if v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			if f.MaxLength > 0 && len([]rune(x)) > f.MaxLength {
				return apperror.NewFieldValidation(t.Name, f.Name,
					fmt.Sprintf("length %d exceeds maximum %d", len([]rune(x)), f.MaxLength))
			}
		case types.Amount:
			if err := types.FitsPrecision(x, f.Precision, f.Scale); err != nil {
				return apperror.NewFieldValidation(t.Name, f.Name, err.Error())
			}
		}
	}
	return nil
}
