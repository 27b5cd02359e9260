package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Stats summarizes queue progress.
type Stats struct {
	Total     int64
	Unclaimed int64
	Claimed   int64
	// Orphaned rows were claimed but never received a sanitized body, the
	// footprint of a crash between claim and write-back.
	Orphaned int64
}

// orphaned rows are claimed with no write-back. sanitized_body is NULL until
// WriteSanitized runs, even when the sanitized text is empty.
var orphaned = sq.And{sq.Eq{"is_locked": 1}, sq.Eq{"sanitized_body": nil}}

// Stats counts rows by queue state.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		dst  *int64
		pred sq.Sqlizer
	}{
		{&st.Total, nil},
		{&st.Unclaimed, sq.Eq{"is_locked": 0}},
		{&st.Claimed, sq.Eq{"is_locked": 1}},
		{&st.Orphaned, orphaned},
	}
	for _, c := range counts {
		b := sq.Select("COUNT(*)").From(Table)
		if c.pred != nil {
			b = b.Where(c.pred)
		}
		query, args, err := b.ToSql()
		if err != nil {
			return Stats{}, fmt.Errorf("build count: %w", err)
		}
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("count rows: %w", classify(err))
		}
	}
	return st, nil
}

// Requeue returns orphaned rows to the unclaimed pool. It is an operator
// repair step and must not run while a sanitize pass is active.
func (s *Store) Requeue(ctx context.Context) (int64, error) {
	query, args, err := sq.Update(Table).Set("is_locked", 0).Where(orphaned).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build requeue: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue: %w", err)
	}
	return n, nil
}
