package store

import (
	"context"
	"fmt"
	"time"
)

// OffenderStore keeps per-user violation timestamps. It implements
// action.OffenderStore so repeat-offender escalation survives restarts and
// is shared between replicas.
type OffenderStore struct {
	s *Store
}

// Offenders returns the violation history view of s.
func (s *Store) Offenders() *OffenderStore {
	return &OffenderStore{s: s}
}

func (o *OffenderStore) RecordViolation(ctx context.Context, userID string, at time.Time) error {
	_, err := o.s.pool.Exec(ctx,
		`INSERT INTO user_violations (user_id, occurred_at) VALUES ($1, $2)`,
		userID, at,
	)
	if err != nil {
		return fmt.Errorf("OffenderStore.RecordViolation: %w", err)
	}
	return nil
}

func (o *OffenderStore) CountViolations(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := o.s.pool.QueryRow(ctx,
		`SELECT count(*) FROM user_violations WHERE user_id = $1 AND occurred_at >= $2`,
		userID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("OffenderStore.CountViolations: %w", err)
	}
	return n, nil
}

// Prune deletes violations older than before and returns how many went.
func (o *OffenderStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := o.s.pool.Exec(ctx, `DELETE FROM user_violations WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("OffenderStore.Prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
