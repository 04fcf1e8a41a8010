package session

import (
	"context"

	"cookbook/internal/core/apperror"
	appctx "cookbook/internal/core/context"
	"cookbook/internal/core/entity"
	"cookbook/internal/core/store"
	"cookbook/internal/core/tx"
	"cookbook/internal/metadata"
	"cookbook/internal/tracking"
)

var _ tx.Manager = (*Session)(nil)

// Session is a unit of work over one backend.
type Session struct {
	id      string
	factory *Factory
	tracker *tracking.Tracker
	tx      *Transaction

	noTracking bool
	autoDetect bool
	closed     bool
}

// ID identifies the session in logs and journal records.
func (s *Session) ID() string { return s.id }

// Tracker exposes the change tracker for callers that drive it directly.
func (s *Session) Tracker() *tracking.Tracker { return s.tracker }

// Add starts tracking e as Added. Untracked instances reachable through its
// navigations are added too.
func (s *Session) Add(e entity.Entity) error {
	if err := s.check(); err != nil {
		return err
	}
	if _, err := s.tracker.Track(e, entity.Added); err != nil {
		return err
	}
	return s.trackRelated(e, func(entity.Entity, *metadata.EntityType) entity.State { return entity.Added })
}

// Attach starts tracking e as Unchanged with its current values as originals.
// Reachable untracked instances are attached, or added when their key is unset.
func (s *Session) Attach(e entity.Entity) error {
	if err := s.check(); err != nil {
		return err
	}
	if _, err := s.tracker.Track(e, entity.Unchanged); err != nil {
		return err
	}
	return s.trackRelated(e, keyedState(entity.Unchanged))
}

// Update marks every field of e dirty. An untracked instance with an unset
// generated key is added instead.
func (s *Session) Update(e entity.Entity) error {
	if err := s.check(); err != nil {
		return err
	}
	if entry, ok := s.tracker.Entry(e); ok {
		switch entry.State() {
		case entity.Added:
		case entity.Deleted:
			return apperror.NewInvalidTransition(entry.Type().Name, entity.Deleted, entity.Modified)
		default:
			if err := s.tracker.MarkAllModified(e); err != nil {
				return err
			}
		}
	} else {
		typ, err := s.registry().Describe(e)
		if err != nil {
			return err
		}
		if _, err := s.tracker.Track(e, keyedState(entity.Modified)(e, typ)); err != nil {
			return err
		}
	}
	return s.trackRelated(e, keyedState(entity.Modified))
}

// Remove marks e Deleted. An Added instance is simply detached.
func (s *Session) Remove(e entity.Entity) error {
	if err := s.check(); err != nil {
		return err
	}
	entry, ok := s.tracker.Entry(e)
	if !ok {
		typ, err := s.registry().Describe(e)
		if err != nil {
			return err
		}
		return apperror.NewNotTracked(typ.Name)
	}
	if entry.State() == entity.Added {
		return s.tracker.SetState(e, entity.Detached)
	}
	return s.tracker.SetState(e, entity.Deleted)
}

// Detach stops tracking e.
func (s *Session) Detach(e entity.Entity) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.tracker.SetState(e, entity.Detached)
}

// State returns the state of e in this session.
func (s *Session) State(e entity.Entity) entity.State {
	return s.tracker.State(e)
}

// SetState moves e to state, validated against the transition table.
func (s *Session) SetState(e entity.Entity, state entity.State) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.tracker.SetState(e, state)
}

// Entry returns the tracking record of e.
func (s *Session) Entry(e entity.Entity) (*tracking.Entry, error) {
	entry, ok := s.tracker.Entry(e)
	if !ok {
		typ, err := s.registry().Describe(e)
		if err != nil {
			return nil, err
		}
		return nil, apperror.NewNotTracked(typ.Name)
	}
	return entry, nil
}

// DetectChanges diffs tracked instances against their snapshots.
func (s *Session) DetectChanges() int {
	return s.tracker.DetectChanges()
}

// SetValue assigns a field of e and marks it dirty. Nullable fields take
// either the value or a pointer to it; nil clears them.
func (s *Session) SetValue(e entity.Entity, field string, v any) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.tracker.SetValue(e, field, v)
}

// Close disposes the session: an unresolved transaction is rolled back and
// every instance is detached. Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	var err error
	if s.tx != nil {
		err = s.tx.Rollback(context.Background())
	}
	s.tracker.Clear()
	s.closed = true
	s.factory.log.WithContext(s.scope(context.Background())).Debugw("session closed")
	return err
}

func (s *Session) check() error {
	if s.closed {
		return apperror.NewSessionClosed()
	}
	return nil
}

func (s *Session) registry() *metadata.Registry { return s.factory.cfg.Registry }

func (s *Session) backend() store.Backend { return s.factory.cfg.Backend }

// querier routes statements into the open transaction, if any.
func (s *Session) querier() store.Querier {
	if s.tx != nil {
		return s.tx.tx
	}
	return s.backend()
}

func (s *Session) scope(ctx context.Context) context.Context {
	sc := &appctx.SessionContext{SessionID: s.id}
	if s.tx != nil {
		sc.TransactionID = s.tx.id
	}
	return appctx.WithSession(ctx, sc)
}

// bind rewrites "?" placeholders into the backend's format.
func (s *Session) bind(sql string) (string, error) {
	return s.backend().Placeholder().ReplacePlaceholders(sql)
}

func (s *Session) logStatement(ctx context.Context, op, sql string, nargs int) {
	l := s.factory.log.WithContext(ctx)
	if s.factory.cfg.LogStatements {
		l.Infow("executing statement", "op", op, "sql", sql, "args", nargs)
		return
	}
	l.Debugw("executing statement", "op", op, "sql", sql, "args", nargs)
}

// keyedState picks fallback for instances with an assigned key and Added otherwise.
func keyedState(fallback entity.State) func(entity.Entity, *metadata.EntityType) entity.State {
	return func(e entity.Entity, typ *metadata.EntityType) entity.State {
		if typ.HasKey(e) {
			return fallback
		}
		return entity.Added
	}
}

// trackRelated walks navigations from root and tracks every reachable
// untracked instance in the state chosen by stateFor.
func (s *Session) trackRelated(root entity.Entity, stateFor func(entity.Entity, *metadata.EntityType) entity.State) error {
	seen := map[entity.Entity]bool{root: true}
	queue := []entity.Entity{root}

	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		typ, err := s.registry().Describe(e)
		if err != nil {
			return err
		}
		for _, nav := range typ.Navigations() {
			var related []entity.Entity
			if nav.Kind == metadata.Collection {
				related = nav.Items(e)
			} else if p := nav.Principal(e); p != nil {
				related = []entity.Entity{p}
			}

			for _, r := range related {
				if seen[r] {
					continue
				}
				seen[r] = true
				if _, tracked := s.tracker.Entry(r); tracked {
					continue
				}
				if _, err := s.tracker.Track(r, stateFor(r, nav.TargetType())); err != nil {
					return err
				}
				queue = append(queue, r)
			}
		}
	}
	return nil
}
