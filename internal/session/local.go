package session

import (
	"github.com/shopspring/decimal"

	"cookbook/internal/core/apperror"
	"cookbook/internal/core/entity"
)

// Local filters the tracked, non-deleted instances of T with a CEL predicate
// over their column values, without a round trip:
//
//	session.Local[*Dish](s, `e.title.startsWith("Breakfast")`)
//
// Decimal columns are exposed as doubles and NULL as null. An empty expression
// matches everything.
func Local[T entity.Entity](s *Session, expr string) ([]T, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var zero T
	typ, err := s.registry().Describe(zero)
	if err != nil {
		return nil, err
	}

	var out []T
	for _, entry := range s.tracker.Entries() {
		if entry.Type() != typ || entry.State() == entity.Deleted {
			continue
		}
		if expr != "" {
			values := typ.Values(entry.Entity())
			for k, v := range values {
				if d, ok := v.(decimal.Decimal); ok {
					values[k] = d.InexactFloat64()
				}
			}
			ok, err := s.factory.cfg.Programs.Match(expr, values)
			if err != nil {
				return nil, apperror.NewValidation(err.Error()).WithDetail("expression", expr).WithCause(err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, entry.Entity().(T))
	}
	return out, nil
}
