package session

import (
	"strings"

	"github.com/Masterminds/squirrel"

	"cookbook/internal/metadata"
	"cookbook/internal/tracking"
)

// builder renders with "?" placeholders; bind converts them for the backend.
func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}

// insertStatement renders the INSERT of an Added entry. Unassigned generated
// fields are omitted and read back through RETURNING.
func insertStatement(entry *tracking.Entry) (string, []any, []*metadata.Field, error) {
	typ, e := entry.Type(), entry.Entity()
	keyed := typ.HasKey(e)

	var (
		cols      []string
		vals      []any
		returning []*metadata.Field
	)
	for _, f := range typ.Fields() {
		if f.Generated && !keyed {
			returning = append(returning, f)
			continue
		}
		v := f.Get(e)
		if f.Version && v == int64(0) {
			v = int64(1)
		}
		cols = append(cols, f.Column)
		vals = append(vals, v)
	}

	q := builder().Insert(typ.Table).Columns(cols...).Values(vals...)
	if len(returning) > 0 {
		names := make([]string, len(returning))
		for i, f := range returning {
			names[i] = f.Column
		}
		q = q.Suffix("RETURNING " + strings.Join(names, ", "))
	}

	sql, args, err := q.ToSql()
	return sql, args, returning, err
}

// updateStatement renders the UPDATE of a Modified entry. Only dirty columns
// are set; ok is false when nothing needs to be written.
func updateStatement(entry *tracking.Entry) (sql string, args []any, ok bool, err error) {
	typ, e := entry.Type(), entry.Entity()

	q := builder().Update(typ.Table)
	sets := 0
	for _, f := range entry.DirtyFields() {
		if f.Key || f.Version {
			continue
		}
		q = q.Set(f.Column, f.Get(e))
		sets++
	}
	if sets == 0 {
		return "", nil, false, nil
	}
	if vf := typ.VersionField(); vf != nil {
		q = q.Set(vf.Column, squirrel.Expr(vf.Column+" + 1"))
	}

	for _, pred := range keyPredicates(entry) {
		q = q.Where(pred)
	}
	for _, pred := range concurrencyPredicates(entry, true) {
		q = q.Where(pred)
	}

	sql, args, err = q.ToSql()
	return sql, args, true, err
}

// deleteStatement renders the DELETE of a Deleted entry. When the originals
// came from the store every column must still hold them, so a row changed
// by someone else since it was loaded is reported as a conflict.
func deleteStatement(entry *tracking.Entry) (string, []any, error) {
	q := builder().Delete(entry.Type().Table)
	for _, pred := range keyPredicates(entry) {
		q = q.Where(pred)
	}
	if entry.OriginalsKnown() {
		for _, f := range entry.Type().Fields() {
			if !f.Key {
				q = q.Where(squirrel.Eq{f.Column: entry.OriginalAt(f.Ordinal())})
			}
		}
		return q.ToSql()
	}
	for _, pred := range concurrencyPredicates(entry, false) {
		q = q.Where(pred)
	}
	return q.ToSql()
}

func keyPredicates(entry *tracking.Entry) []squirrel.Sqlizer {
	keys := entry.Type().Keys()
	preds := make([]squirrel.Sqlizer, len(keys))
	for i, k := range keys {
		preds[i] = squirrel.Eq{k.Column: k.Get(entry.Entity())}
	}
	return preds
}

// concurrencyPredicates compares the stored row with what the session last
// saw: dirty fields (when the originals came from the store), concurrency
// check fields and the row version. Eq renders nil as IS NULL.
func concurrencyPredicates(entry *tracking.Entry, includeDirty bool) []squirrel.Sqlizer {
	var preds []squirrel.Sqlizer
	used := tracking.Mask(0)

	expected := func(f *metadata.Field) any {
		if entry.OriginalsKnown() {
			return entry.OriginalAt(f.Ordinal())
		}
		return f.Get(entry.Entity())
	}

	if includeDirty && entry.OriginalsKnown() {
		for _, f := range entry.DirtyFields() {
			if f.Key || f.Version {
				continue
			}
			preds = append(preds, squirrel.Eq{f.Column: entry.OriginalAt(f.Ordinal())})
			used = used.With(f.Ordinal())
		}
	}
	for _, f := range entry.Type().Fields() {
		if used.Has(f.Ordinal()) || f.Key {
			continue
		}
		if f.ConcurrencyCheck || f.Version {
			preds = append(preds, squirrel.Eq{f.Column: expected(f)})
		}
	}
	return preds
}
