package session

import (
	"context"
	"iter"
	"regexp"
	"slices"

	"github.com/Masterminds/squirrel"

	"cookbook/internal/core/apperror"
	"cookbook/internal/core/entity"
	"cookbook/internal/core/store"
	"cookbook/internal/metadata"
	"cookbook/internal/rawsql"
)

var orderClauseRe = regexp.MustCompile(`(?i)^[a-z_][a-z0-9_]*(\s+(asc|desc))?$`)

type predicate struct {
	pred any
	args []any
}

type rawSource struct {
	sql     string
	args    []any
	mutates bool
}

// Query composes a SELECT over one entity type. Builder methods return a new
// Query; the receiver is never modified.
type Query[T entity.Entity] struct {
	s   *Session
	typ *metadata.EntityType
	raw *rawSource

	where   []predicate
	orderBy []string

	limit, offset       uint64
	hasLimit, hasOffset bool

	// tracking overrides the session default when set.
	tracking *bool

	err error
}

// From starts a query over the table of T.
func From[T entity.Entity](s *Session) *Query[T] {
	var zero T
	q := &Query[T]{s: s}
	q.typ, q.err = s.registry().Describe(zero)
	return q
}

// FromSQL starts a query over a caller-supplied SELECT. Values are bound
// through "?" placeholders, never spliced into the text. Further Where,
// OrderBy, Limit and Offset clauses wrap the statement as a derived table.
// Data-modifying statements are accepted only with a RETURNING clause and
// cannot be composed.
func FromSQL[T entity.Entity](s *Session, sql string, args ...any) *Query[T] {
	q := From[T](s)
	if q.err != nil {
		return q
	}
	if err := rawsql.Check(sql, len(args)); err != nil {
		q.err = err
		return q
	}
	sql = rawsql.TrimTerminator(sql)
	st := rawsql.Classify(sql)
	if st.Mutates() && !st.HasReturning {
		q.err = apperror.NewUnsafeSQL(sql, "statement returns no rows; use ExecRaw")
		return q
	}
	q.raw = &rawSource{sql: sql, args: slices.Clone(args), mutates: st.Mutates()}
	return q
}

func (q *Query[T]) clone() *Query[T] {
	c := *q
	c.where = slices.Clone(q.where)
	c.orderBy = slices.Clone(q.orderBy)
	return &c
}

// Where adds a predicate, ANDed with the others. pred is anything
// squirrel accepts: a SQL fragment with "?" args, squirrel.Eq, squirrel.Gt
// and friends, or another Sqlizer.
func (q *Query[T]) Where(pred any, args ...any) *Query[T] {
	c := q.clone()
	c.where = append(c.where, predicate{pred: pred, args: args})
	return c
}

// WhereField adds an equality predicate on a mapped field.
func (q *Query[T]) WhereField(field string, v any) *Query[T] {
	c := q.clone()
	if c.err != nil {
		return c
	}
	f, ok := c.typ.Field(field)
	if !ok {
		c.err = apperror.NewFieldValidation(c.typ.Name, field, "no such field")
		return c
	}
	c.where = append(c.where, predicate{pred: squirrel.Eq{f.Column: v}})
	return c
}

// OrderBy appends ordering clauses of the form "column [ASC|DESC]".
func (q *Query[T]) OrderBy(clauses ...string) *Query[T] {
	c := q.clone()
	for _, clause := range clauses {
		if !orderClauseRe.MatchString(clause) {
			c.err = apperror.NewUnsafeSQL(clause, "invalid ORDER BY clause")
			return c
		}
	}
	c.orderBy = append(c.orderBy, clauses...)
	return c
}

// Limit caps the number of rows.
func (q *Query[T]) Limit(n uint64) *Query[T] {
	c := q.clone()
	c.limit, c.hasLimit = n, true
	return c
}

// Offset skips the first n rows.
func (q *Query[T]) Offset(n uint64) *Query[T] {
	c := q.clone()
	c.offset, c.hasOffset = n, true
	return c
}

// NoTracking returns detached instances that the session does not track.
func (q *Query[T]) NoTracking() *Query[T] {
	c := q.clone()
	off := false
	c.tracking = &off
	return c
}

// Tracking tracks results even in a session opened WithNoTracking.
func (q *Query[T]) Tracking() *Query[T] {
	c := q.clone()
	on := true
	c.tracking = &on
	return c
}

func (q *Query[T]) tracks() bool {
	if q.tracking != nil {
		return *q.tracking
	}
	return !q.s.noTracking
}

func (q *Query[T]) composed() bool {
	return len(q.where) > 0 || len(q.orderBy) > 0 || q.hasLimit || q.hasOffset
}

// ToSQL renders the statement with the backend's placeholders.
func (q *Query[T]) ToSQL() (string, []any, error) {
	return q.render(false)
}

func (q *Query[T]) render(count bool) (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	if q.raw != nil && !count && !q.composed() {
		sql, err := q.s.bind(q.raw.sql)
		if err != nil {
			return "", nil, apperror.NewUnsafeSQL(q.raw.sql, err.Error())
		}
		return sql, slices.Clone(q.raw.args), nil
	}
	if q.raw != nil && q.raw.mutates {
		return "", nil, apperror.NewUnsafeSQL(q.raw.sql, "a data-modifying statement cannot be composed")
	}

	var sb squirrel.SelectBuilder
	switch {
	case count:
		sb = builder().Select("COUNT(*) AS n")
	case q.raw != nil:
		sb = builder().Select("*")
	default:
		sb = builder().Select(q.typ.Columns()...)
	}
	if q.raw != nil {
		sb = sb.From("(" + q.raw.sql + ") AS raw_src")
	} else {
		sb = sb.From(q.typ.Table)
	}
	for _, w := range q.where {
		sb = sb.Where(w.pred, w.args...)
	}
	if !count {
		if len(q.orderBy) > 0 {
			sb = sb.OrderBy(q.orderBy...)
		}
		if q.hasLimit {
			sb = sb.Limit(q.limit)
		}
		if q.hasOffset {
			sb = sb.Offset(q.offset)
		}
	}

	sql, args, err := sb.ToSql()
	if err != nil {
		return "", nil, apperror.NewValidation("build query: " + err.Error()).WithCause(err)
	}
	if q.raw != nil {
		args = append(slices.Clone(q.raw.args), args...)
	}
	if sql, err = q.s.bind(sql); err != nil {
		return "", nil, apperror.NewUnsafeSQL(sql, err.Error())
	}
	return sql, args, nil
}

func (q *Query[T]) open(ctx context.Context, count bool) (store.Rows, error) {
	if err := q.s.check(); err != nil {
		return nil, err
	}
	sql, args, err := q.render(count)
	if err != nil {
		return nil, err
	}
	ctx = q.s.scope(ctx)
	op := "select"
	if q.raw != nil {
		op = "raw"
	}
	q.s.logStatement(ctx, op, sql, len(args))
	q.s.factory.cfg.Metrics.Statement(op)
	return q.s.querier().Query(ctx, sql, args...)
}

// Seq streams the results. Rows are materialized as the caller iterates;
// breaking out of the loop closes the cursor.
func (q *Query[T]) Seq(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		rows, err := q.open(ctx, false)
		if err != nil {
			yield(zero, err)
			return
		}
		defer rows.Close()

		track := q.tracks()
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				yield(zero, err)
				return
			}
			e, err := q.s.materialize(q.typ, vals, track)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(e.(T), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, err)
		}
	}
}

// All runs the query and collects every result.
func (q *Query[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	for e, err := range q.Seq(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// First returns the first result or a NOT_FOUND error.
func (q *Query[T]) First(ctx context.Context) (T, error) {
	var zero T
	if q.err != nil {
		return zero, q.err
	}
	out, err := q.Limit(1).All(ctx)
	if err != nil {
		return zero, err
	}
	if len(out) == 0 {
		return zero, apperror.NewNotFound(q.typ.Name, nil)
	}
	return out[0], nil
}

// Single returns the only result. No result is NOT_FOUND, more than one is
// NOT_SINGULAR.
func (q *Query[T]) Single(ctx context.Context) (T, error) {
	var zero T
	if q.err != nil {
		return zero, q.err
	}
	out, err := q.Limit(2).All(ctx)
	if err != nil {
		return zero, err
	}
	switch len(out) {
	case 0:
		return zero, apperror.NewNotFound(q.typ.Name, nil)
	case 1:
		return out[0], nil
	default:
		return zero, apperror.NewNotSingular(q.typ.Name)
	}
}

// Count returns the number of matching rows. Ordering and paging are ignored.
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	rows, err := q.open(ctx, true)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	vals, err := rows.Values()
	if err != nil {
		return 0, err
	}
	v, _ := lookupColumn(vals, "n")
	n, err := metadata.ToInt64(v)
	if err != nil {
		return 0, apperror.NewMaterialization(q.typ.Name, "count: "+err.Error())
	}
	return n, rows.Err()
}

// Find returns the instance of T with the given key. A tracked instance is
// returned without a round trip.
func Find[T entity.Entity](ctx context.Context, s *Session, key ...any) (T, error) {
	var zero T
	if err := s.check(); err != nil {
		return zero, err
	}
	typ, err := s.registry().Describe(zero)
	if err != nil {
		return zero, err
	}
	keys := typ.Keys()
	if len(key) != len(keys) {
		return zero, apperror.NewValidation("key has wrong number of values").
			WithDetail("entity", typ.Name).
			WithDetail("want", len(keys)).
			WithDetail("got", len(key))
	}

	norm := make([]any, len(key))
	for i, f := range keys {
		v, err := normalizeKey(f, key[i])
		if err != nil {
			return zero, apperror.NewFieldValidation(typ.Name, f.Name, err.Error())
		}
		norm[i] = v
	}

	if entry, ok := s.tracker.Lookup(typ, norm); ok {
		return entry.Entity().(T), nil
	}

	q := From[T](s)
	for i, f := range keys {
		q = q.Where(squirrel.Eq{f.Column: norm[i]})
	}
	e, err := q.Single(ctx)
	if apperror.IsNotFound(err) {
		return zero, apperror.NewNotFound(typ.Name, metadata.FormatKey(norm))
	}
	return e, err
}

func normalizeKey(f *metadata.Field, v any) (any, error) {
	switch f.Kind {
	case metadata.KindInteger:
		return metadata.ToInt64(v)
	case metadata.KindString:
		return metadata.ToString(v)
	case metadata.KindDecimal:
		return metadata.ToDecimal(v)
	}
	return v, nil
}

// materialize builds an instance from a row. With track set, a row whose key
// is already tracked resolves to the tracked instance and its current values
// are kept.
func (s *Session) materialize(typ *metadata.EntityType, row map[string]any, track bool) (entity.Entity, error) {
	e := typ.New()
	for _, f := range typ.Fields() {
		v, ok := lookupColumn(row, f.Column)
		if !ok {
			return nil, apperror.NewMaterialization(typ.Name, "result has no column "+f.Column).
				WithDetail("field", f.Name)
		}
		if v == nil && !f.Nullable {
			return nil, apperror.NewMaterialization(typ.Name, "NULL in non-nullable column "+f.Column).
				WithDetail("field", f.Name)
		}
		if err := f.Set(e, v); err != nil {
			return nil, apperror.NewMaterialization(typ.Name, f.Name+": "+err.Error()).
				WithDetail("field", f.Name).
				WithCause(err)
		}
	}
	if !track {
		return e, nil
	}
	if entry, ok := s.tracker.Lookup(typ, typ.KeyValues(e)); ok {
		return entry.Entity(), nil
	}
	if _, err := s.tracker.Track(e, entity.Unchanged); err != nil {
		return nil, err
	}
	return e, nil
}
