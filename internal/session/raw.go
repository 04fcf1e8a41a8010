package session

import (
	"context"

	"cookbook/internal/rawsql"
)

// ExecRaw runs a caller-supplied statement that returns no rows and reports
// the affected row count. Values are bound through "?" placeholders. The
// tracker is not consulted or updated: tracked instances keep their state
// even when the statement changed their rows.
func (s *Session) ExecRaw(ctx context.Context, sql string, args ...any) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if err := rawsql.Check(sql, len(args)); err != nil {
		return 0, err
	}
	bound, err := s.bind(rawsql.TrimTerminator(sql))
	if err != nil {
		return 0, err
	}

	ctx = s.scope(ctx)
	s.logStatement(ctx, "raw", bound, len(args))
	s.factory.cfg.Metrics.Statement("raw")
	return s.querier().Exec(ctx, bound, args...)
}
