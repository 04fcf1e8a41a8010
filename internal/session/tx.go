package session

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cookbook/internal/core/apperror"
	"cookbook/internal/core/id"
	"cookbook/internal/core/store"
	"cookbook/internal/core/tx"
)

var _ tx.Handle = (*Transaction)(nil)

// Transaction is an explicit transaction of a session. While it is open
// every query, raw statement and SaveChanges of the session runs inside it.
type Transaction struct {
	id      string
	session *Session
	tx      store.Tx
	span    trace.Span
	done    bool

	// saves numbers the savepoints SaveChanges opens inside the transaction.
	saves int
}

// Begin opens an explicit transaction. A session holds at most one.
func (s *Session) Begin(ctx context.Context) (*Transaction, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.tx != nil {
		return nil, apperror.NewTransaction("a transaction is already open on this session").
			WithDetail("transaction_id", s.tx.id)
	}

	ctx, span := tracer.Start(ctx, "transaction", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("db.system", s.backend().Name()),
	))
	btx, err := s.backend().Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	t := &Transaction{id: id.New().String(), session: s, tx: btx, span: span}
	s.tx = t
	s.factory.log.WithContext(s.scope(ctx)).Debugw("transaction started")
	return t, nil
}

// ID identifies the transaction in logs and journal records.
func (t *Transaction) ID() string { return t.id }

// Done reports whether the transaction was committed or rolled back.
func (t *Transaction) Done() bool { return t.done }

// Commit makes the transaction's statements durable.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.done {
		return apperror.NewTransaction("transaction already completed").WithDetail("transaction_id", t.id)
	}
	ctx = t.session.scope(ctx)
	err := t.tx.Commit(ctx)
	t.finish(ctx, "commit", err)
	return err
}

// Rollback discards the transaction's statements. The tracker is left as is:
// instances saved inside the transaction stay Unchanged.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.done {
		return apperror.NewTransaction("transaction already completed").WithDetail("transaction_id", t.id)
	}
	ctx = t.session.scope(ctx)
	err := t.tx.Rollback(ctx)
	t.finish(ctx, "rollback", err)
	return err
}

// Close rolls back an unresolved transaction and is a no-op otherwise.
func (t *Transaction) Close() error {
	if t.done {
		return nil
	}
	return t.Rollback(context.Background())
}

// Savepoint marks a point inside the transaction to roll back to.
func (t *Transaction) Savepoint(ctx context.Context, name string) error {
	sp, err := t.savepoints()
	if err != nil {
		return err
	}
	return sp.Savepoint(ctx, name)
}

// RollbackTo discards the statements executed since the savepoint.
func (t *Transaction) RollbackTo(ctx context.Context, name string) error {
	sp, err := t.savepoints()
	if err != nil {
		return err
	}
	return sp.RollbackTo(ctx, name)
}

func (t *Transaction) savepoints() (store.SavepointTx, error) {
	if t.done {
		return nil, apperror.NewTransaction("transaction already completed").WithDetail("transaction_id", t.id)
	}
	sp, ok := t.tx.(store.SavepointTx)
	if !ok {
		return nil, apperror.NewTransaction("backend does not support savepoints").
			WithDetail("backend", t.session.backend().Name())
	}
	return sp, nil
}

// finish detaches the transaction from its session whatever the outcome;
// a failed COMMIT leaves nothing to resume.
func (t *Transaction) finish(ctx context.Context, outcome string, err error) {
	t.done = true
	if t.session.tx == t {
		t.session.tx = nil
	}
	t.session.factory.cfg.Metrics.Transaction(outcome)

	if err != nil {
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
		t.session.factory.log.WithContext(ctx).Warnw("transaction "+outcome+" failed", "tx_id", t.id, "error", err)
	} else {
		t.session.factory.log.WithContext(ctx).Debugw("transaction "+outcome, "tx_id", t.id)
	}
	t.span.SetAttributes(attribute.String("tx.outcome", outcome))
	t.span.End()
}

// RunInTransaction runs fn inside a new explicit transaction, committing when
// fn returns nil and rolling back otherwise.
func (s *Session) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t, err := s.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = t.Close()
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		if !t.done {
			if rbErr := t.Rollback(context.Background()); rbErr != nil {
				s.factory.log.WithContext(s.scope(ctx)).Errorw("rollback failed", "error", rbErr)
			}
		}
		return err
	}
	if t.done {
		return nil
	}
	return t.Commit(ctx)
}
