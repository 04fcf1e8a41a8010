package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cookbook/internal/core/apperror"
	appctx "cookbook/internal/core/context"
	"cookbook/internal/core/entity"
	"cookbook/internal/core/id"
	"cookbook/internal/core/store"
	"cookbook/internal/metadata"
	"cookbook/internal/tracking"
)

// undoLog reverts in-memory assignments made by a save that did not commit.
type undoLog []func()

func (u *undoLog) add(fn func()) { *u = append(*u, fn) }

func (u undoLog) revert() {
	for i := len(u) - 1; i >= 0; i-- {
		u[i]()
	}
}

// SaveChanges writes every pending change as one atomic batch and returns the
// number of affected rows.
//
// Inserts run first, principals before dependents; then updates; then
// deletes, dependents before principals. Generated keys are read back and
// propagated into the foreign keys of tracked dependents. Outside an explicit
// transaction the batch runs in its own transaction; inside one it runs under
// a savepoint that is rolled back if any statement fails. On success every
// remaining entry becomes Unchanged and deleted entries are detached; on
// failure the tracker keeps its states and generated keys are cleared again.
func (s *Session) SaveChanges(ctx context.Context) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	ctx = s.scope(ctx)
	ctx, span := tracer.Start(ctx, "save_changes", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("db.system", s.backend().Name()),
	))
	defer span.End()

	started := time.Now()
	n, err := s.save(ctx)
	s.factory.cfg.Metrics.Save(started, s.tracker.Len(), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", n))
	return n, nil
}

func (s *Session) save(ctx context.Context) (int64, error) {
	log := s.factory.log.WithContext(ctx)

	if s.autoDetect {
		if err := s.discover(); err != nil {
			return 0, err
		}
	}
	if err := s.fixup(nil); err != nil {
		return 0, err
	}
	if s.autoDetect {
		s.tracker.DetectChanges()
	}
	if !s.tracker.HasChanges() {
		log.Debugw("no pending changes")
		return 0, nil
	}

	for _, entry := range s.tracker.Entries() {
		if st := entry.State(); st == entity.Added || st == entity.Modified {
			if err := entry.Type().Validate(entry.Entity()); err != nil {
				return 0, err
			}
		}
	}

	var (
		q     store.Querier
		own   store.Tx
		sp    store.SavepointTx
		spID  string
		txID  string
		undo  undoLog
		total int64
	)
	if s.tx != nil {
		q, txID = s.tx.tx, s.tx.id
		// A savepoint keeps a failed save from leaving partial writes in
		// the caller's transaction.
		if spt, ok := s.tx.tx.(store.SavepointTx); ok {
			s.tx.saves++
			spID = fmt.Sprintf("save_%d", s.tx.saves)
			if err := spt.Savepoint(ctx, spID); err != nil {
				return 0, err
			}
			sp = spt
		}
	} else {
		btx, err := s.backend().Begin(ctx)
		if err != nil {
			return 0, err
		}
		q, own, txID = btx, btx, id.New().String()
	}

	fail := func(err error) (int64, error) {
		undo.revert()
		if sp != nil {
			if rbErr := sp.RollbackTo(context.Background(), spID); rbErr != nil {
				log.Errorw("rollback to savepoint after failed save", "savepoint", spID, "error", rbErr)
			}
		}
		if own != nil {
			if rbErr := own.Rollback(context.Background()); rbErr != nil {
				log.Errorw("rollback after failed save", "error", rbErr)
			}
		}
		log.Warnw("save failed", "error", err)
		return 0, err
	}

	records, n, err := s.execute(ctx, q, &undo)
	if err != nil {
		return fail(err)
	}
	total = n

	if len(s.factory.cfg.Hooks) > 0 {
		sc := &SaveContext{
			SessionID:     s.id,
			TransactionID: txID,
			Querier:       q,
			Placeholder:   s.backend().Placeholder(),
			Records:       records,
		}
		hctx := appctx.WithSession(ctx, &appctx.SessionContext{SessionID: s.id, TransactionID: txID})
		for _, h := range s.factory.cfg.Hooks {
			if err := h.OnSave(hctx, sc); err != nil {
				return fail(err)
			}
		}
	}

	if sp != nil {
		if err := sp.Release(ctx, spID); err != nil {
			return fail(err)
		}
	}
	if own != nil {
		if err := own.Commit(ctx); err != nil {
			own = nil
			return fail(err)
		}
	}

	s.tracker.AcceptAllChanges()
	log.Debugw("changes saved", "rows", total, "statements", len(records))
	return total, nil
}

// execute runs the inserts, updates and deletes of the pending entries on q.
func (s *Session) execute(ctx context.Context, q store.Querier, undo *undoLog) ([]ChangeRecord, int64, error) {
	var (
		records []ChangeRecord
		total   int64
	)

	for _, entry := range s.pending(entity.Added, false) {
		if err := s.fixup(undo); err != nil {
			return nil, 0, err
		}
		rec, err := s.insert(ctx, q, entry, undo)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
		total++
	}

	// Keys generated above flow into dependents that were already stored.
	if err := s.fixup(undo); err != nil {
		return nil, 0, err
	}

	for _, entry := range s.pending(entity.Modified, false) {
		rec, ok, err := s.update(ctx, q, entry, undo)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			records = append(records, rec)
			total++
		}
	}

	for _, entry := range s.pending(entity.Deleted, true) {
		rec, err := s.delete(ctx, q, entry)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
		total++
	}
	return records, total, nil
}

// pending returns the entries in state ordered by dependency rank, then by
// tracking order. reverse puts dependents first.
func (s *Session) pending(state entity.State, reverse bool) []*tracking.Entry {
	var out []*tracking.Entry
	for _, entry := range s.tracker.Entries() {
		if entry.State() == state {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Type().Rank(), out[j].Type().Rank()
		if ri == rj {
			return false
		}
		if reverse {
			return ri > rj
		}
		return ri < rj
	})
	return out
}

func (s *Session) insert(ctx context.Context, q store.Querier, entry *tracking.Entry, undo *undoLog) (ChangeRecord, error) {
	typ, e := entry.Type(), entry.Entity()

	if vf := typ.VersionField(); vf != nil && metadata.Equal(vf.Get(e), int64(0)) {
		if err := vf.Set(e, int64(1)); err != nil {
			return ChangeRecord{}, apperror.NewFieldValidation(typ.Name, vf.Name, err.Error())
		}
		undo.add(func() { _ = vf.Set(e, int64(0)) })
	}

	raw, args, returning, err := insertStatement(entry)
	if err != nil {
		return ChangeRecord{}, apperror.NewValidation("build insert: " + err.Error()).WithCause(err)
	}
	sql, err := s.bind(raw)
	if err != nil {
		return ChangeRecord{}, apperror.NewValidation("bind insert: " + err.Error()).WithCause(err)
	}
	s.logStatement(ctx, "insert", sql, len(args))
	s.factory.cfg.Metrics.Statement("insert")

	if len(returning) == 0 {
		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return ChangeRecord{}, err
		}
	} else if err := s.readGenerated(ctx, q, entry, sql, args, returning, undo); err != nil {
		return ChangeRecord{}, err
	}

	changes := make([]tracking.Change, 0, len(typ.Fields()))
	for _, f := range typ.Fields() {
		changes = append(changes, tracking.Change{Field: f.Name, Column: f.Column, Current: f.Get(e)})
	}
	return ChangeRecord{
		Entity:    typ.Name,
		Table:     typ.Table,
		Key:       metadata.FormatKey(entry.Key()),
		Operation: OpInsert,
		Changes:   changes,
	}, nil
}

// readGenerated runs an INSERT ... RETURNING and assigns the returned values.
func (s *Session) readGenerated(ctx context.Context, q store.Querier, entry *tracking.Entry, sql string, args []any, fields []*metadata.Field, undo *undoLog) error {
	typ, e := entry.Type(), entry.Entity()

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return apperror.NewMaterialization(typ.Name, "insert returned no row")
	}
	values, err := rows.Values()
	if err != nil {
		return err
	}

	for _, f := range fields {
		v, ok := lookupColumn(values, f.Column)
		if !ok {
			return apperror.NewMaterialization(typ.Name, "insert did not return column "+f.Column)
		}
		old := f.Get(e)
		if err := f.Set(e, v); err != nil {
			return apperror.NewMaterialization(typ.Name, f.Name+": "+err.Error()).WithCause(err)
		}
		undo.add(func() { _ = f.Set(e, old) })
	}
	return rows.Err()
}

func (s *Session) update(ctx context.Context, q store.Querier, entry *tracking.Entry, undo *undoLog) (ChangeRecord, bool, error) {
	typ, e := entry.Type(), entry.Entity()

	raw, args, ok, err := updateStatement(entry)
	if err != nil {
		return ChangeRecord{}, false, apperror.NewValidation("build update: " + err.Error()).WithCause(err)
	}
	if !ok {
		return ChangeRecord{}, false, nil
	}
	sql, err := s.bind(raw)
	if err != nil {
		return ChangeRecord{}, false, apperror.NewValidation("bind update: " + err.Error()).WithCause(err)
	}
	s.logStatement(ctx, "update", sql, len(args))
	s.factory.cfg.Metrics.Statement("update")

	n, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return ChangeRecord{}, false, err
	}
	if n == 0 {
		return ChangeRecord{}, false, s.conflict(ctx, entry, "update")
	}

	if vf := typ.VersionField(); vf != nil {
		expected := vf.Get(e)
		if entry.OriginalsKnown() {
			expected = entry.OriginalAt(vf.Ordinal())
		}
		cur, err := metadata.ToInt64(expected)
		if err != nil {
			return ChangeRecord{}, false, apperror.NewFieldValidation(typ.Name, vf.Name, err.Error())
		}
		old := vf.Get(e)
		if err := vf.Set(e, cur+1); err != nil {
			return ChangeRecord{}, false, apperror.NewFieldValidation(typ.Name, vf.Name, err.Error())
		}
		undo.add(func() { _ = vf.Set(e, old) })
	}

	return ChangeRecord{
		Entity:    typ.Name,
		Table:     typ.Table,
		Key:       metadata.FormatKey(entry.Key()),
		Operation: OpUpdate,
		Changes:   entry.Changes(),
	}, true, nil
}

func (s *Session) delete(ctx context.Context, q store.Querier, entry *tracking.Entry) (ChangeRecord, error) {
	typ := entry.Type()

	raw, args, err := deleteStatement(entry)
	if err != nil {
		return ChangeRecord{}, apperror.NewValidation("build delete: " + err.Error()).WithCause(err)
	}
	sql, err := s.bind(raw)
	if err != nil {
		return ChangeRecord{}, apperror.NewValidation("bind delete: " + err.Error()).WithCause(err)
	}
	s.logStatement(ctx, "delete", sql, len(args))
	s.factory.cfg.Metrics.Statement("delete")

	n, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return ChangeRecord{}, err
	}
	if n == 0 {
		return ChangeRecord{}, s.conflict(ctx, entry, "delete")
	}

	changes := make([]tracking.Change, 0, len(typ.Fields()))
	for _, f := range typ.Fields() {
		var original any
		if entry.OriginalsKnown() {
			original = entry.OriginalAt(f.Ordinal())
		}
		changes = append(changes, tracking.Change{Field: f.Name, Column: f.Column, Original: original})
	}
	return ChangeRecord{
		Entity:    typ.Name,
		Table:     typ.Table,
		Key:       metadata.FormatKey(entry.Key()),
		Operation: OpDelete,
		Changes:   changes,
	}, nil
}

func (s *Session) conflict(ctx context.Context, entry *tracking.Entry, op string) error {
	name := entry.Type().Name
	key := metadata.FormatKey(entry.Key())
	s.factory.cfg.Metrics.Conflict(name)
	s.factory.log.WithContext(ctx).Warnw("concurrency conflict", "entity", name, "key", key, "operation", op)
	return apperror.NewConcurrencyConflict(name, key, op).WithDetail("entry", entry)
}

// discover tracks instances that became reachable from tracked ones since
// they were attached, e.g. an ingredient appended to a loaded dish.
func (s *Session) discover() error {
	for _, entry := range s.tracker.Entries() {
		if entry.State() == entity.Deleted {
			continue
		}
		if err := s.trackRelated(entry.Entity(), keyedState(entity.Unchanged)); err != nil {
			return err
		}
	}
	return nil
}

// fixup copies principal keys into the foreign keys of tracked dependents,
// following both collection and reference navigations. Assignments are
// recorded on undo when it is non-nil.
func (s *Session) fixup(undo *undoLog) error {
	for _, entry := range s.tracker.Entries() {
		if entry.State() == entity.Deleted {
			continue
		}
		typ, e := entry.Type(), entry.Entity()
		for _, nav := range typ.Navigations() {
			switch nav.Kind {
			case metadata.Reference:
				if p := nav.Principal(e); p != nil {
					if err := s.link(e, nav.ForeignKeyField(), p, nav.TargetType(), undo); err != nil {
						return err
					}
				}
			case metadata.Collection:
				for _, d := range nav.Items(e) {
					if err := s.link(d, nav.ForeignKeyField(), e, typ, undo); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (s *Session) link(dep entity.Entity, fk *metadata.Field, principal entity.Entity, ptype *metadata.EntityType, undo *undoLog) error {
	if st := s.tracker.State(dep); st == entity.Detached || st == entity.Deleted {
		return nil
	}
	if s.tracker.State(principal) == entity.Deleted || !ptype.HasKey(principal) {
		return nil
	}

	key := ptype.Keys()[0].Get(principal)
	old := fk.Get(dep)
	if metadata.Equal(old, key) {
		return nil
	}
	if err := s.tracker.SetValue(dep, fk.Name, key); err != nil {
		return err
	}
	if undo != nil {
		undo.add(func() { _ = fk.Set(dep, old) })
	}
	return nil
}

// lookupColumn finds a column in a row map regardless of the case the driver reports.
func lookupColumn(row map[string]any, column string) (any, bool) {
	if v, ok := row[column]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, column) {
			return v, true
		}
	}
	return nil, false
}
