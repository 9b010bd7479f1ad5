package swipe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/onnwee/swipestack/internal/tracing"
)

// uniqueViolation is the postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore implements Store and MatchStore on postgres.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a store over an open sqlx handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type recordRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	TargetID  string         `db:"target_id"`
	Action    string         `db:"action"`
	Mode      string         `db:"mode"`
	CreatedAt sql.NullTime   `db:"created_at"`
	MatchID   sql.NullString `db:"match_id"`
}

func (r recordRow) toRecord() Record {
	return Record{
		ID:        r.ID,
		UserID:    r.UserID,
		TargetID:  r.TargetID,
		Action:    Action(r.Action),
		Mode:      Mode(r.Mode),
		CreatedAt: r.CreatedAt.Time.UTC(),
		MatchID:   r.MatchID.String,
	}
}

const recordColumns = `id, user_id, target_id, action, mode, created_at, match_id`

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, rec *Record) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "interactions", tracing.DBOperationInsert)
	defer func() { end(err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, user_id, target_id, action, mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.UserID, rec.TargetID, string(rec.Action), string(rec.Mode), rec.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrAlreadySwiped
	}
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// Latest implements Store.
func (s *PostgresStore) Latest(ctx context.Context, userID string, mode Mode) (_ *Record, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "interactions", tracing.DBOperationQuery)
	defer func() { end(ignoreEmpty(err)) }()

	var row recordRow
	err = s.db.GetContext(ctx, &row, `
		SELECT `+recordColumns+`
		FROM interactions
		WHERE user_id = $1 AND mode = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, userID, string(mode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmptyHistory
	}
	if err != nil {
		return nil, fmt.Errorf("query latest interaction: %w", err)
	}
	rec := row.toRecord()
	return &rec, nil
}

// PopLatest implements Store. The latest row is locked and deleted in one
// transaction so concurrent writers cannot pop the wrong record.
func (s *PostgresStore) PopLatest(ctx context.Context, userID string, mode Mode) (_ *Record, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "interactions", tracing.DBOperationDelete)
	defer func() { end(ignoreEmpty(err)) }()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin undo: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row recordRow
	err = tx.GetContext(ctx, &row, `
		DELETE FROM interactions
		WHERE id = (
			SELECT id FROM interactions
			WHERE user_id = $1 AND mode = $2
			ORDER BY created_at DESC, id DESC
			LIMIT 1
			FOR UPDATE
		)
		RETURNING `+recordColumns, userID, string(mode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmptyHistory
	}
	if err != nil {
		return nil, fmt.Errorf("delete latest interaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit undo: %w", err)
	}
	rec := row.toRecord()
	return &rec, nil
}

// SetMatchID implements Store.
func (s *PostgresStore) SetMatchID(ctx context.Context, recordID, matchID string) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "interactions", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	_, err = s.db.ExecContext(ctx,
		`UPDATE interactions SET match_id = $2 WHERE id = $1`, recordID, matchID)
	if err != nil {
		return fmt.Errorf("set interaction match: %w", err)
	}
	return nil
}

// SwipedTargets implements Store.
func (s *PostgresStore) SwipedTargets(ctx context.Context, userID string, mode Mode) (_ []string, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "interactions", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var ids []string
	err = s.db.SelectContext(ctx, &ids, `
		SELECT target_id FROM interactions
		WHERE user_id = $1 AND mode = $2
		ORDER BY target_id`, userID, string(mode))
	if err != nil {
		return nil, fmt.Errorf("query swiped targets: %w", err)
	}
	return ids, nil
}

// ByUsers implements Store.
func (s *PostgresStore) ByUsers(ctx context.Context, userIDs []string, mode Mode) (_ []Record, err error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	ctx, end := tracing.StartDBSpan(ctx, "interactions", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var rows []recordRow
	err = s.db.SelectContext(ctx, &rows, `
		SELECT `+recordColumns+`
		FROM interactions
		WHERE user_id = ANY($1) AND mode = $2
		ORDER BY created_at, id`, pq.Array(userIDs), string(mode))
	if err != nil {
		return nil, fmt.Errorf("query interactions by users: %w", err)
	}
	return toRecords(rows), nil
}

// Toward implements Store.
func (s *PostgresStore) Toward(ctx context.Context, targetID string, mode Mode) (_ []Record, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "interactions", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var rows []recordRow
	err = s.db.SelectContext(ctx, &rows, `
		SELECT `+recordColumns+`
		FROM interactions
		WHERE target_id = $1 AND mode = $2
		ORDER BY created_at, id`, targetID, string(mode))
	if err != nil {
		return nil, fmt.Errorf("query interactions toward user: %w", err)
	}
	return toRecords(rows), nil
}

// ignoreEmpty keeps an empty history from marking the span as failed.
func ignoreEmpty(err error) error {
	if errors.Is(err, ErrEmptyHistory) {
		return nil
	}
	return err
}

func toRecords(rows []recordRow) []Record {
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out
}

// CreateMatch implements MatchStore. An existing match for the pair is
// returned unchanged.
func (s *PostgresStore) CreateMatch(ctx context.Context, a, b string, mode Mode, at time.Time) (_ *Match, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "matches", tracing.DBOperationInsert)
	defer func() { end(err) }()

	ua, ub := orderedPair(a, b)
	var m Match
	err = s.db.GetContext(ctx, &m, `
		INSERT INTO matches (id, user_a, user_b, mode, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_a, user_b, mode)
		DO UPDATE SET user_a = EXCLUDED.user_a
		RETURNING id, user_a, user_b, mode, created_at`,
		uuid.NewString(), ua, ub, string(mode), at)
	if err != nil {
		return nil, fmt.Errorf("insert match: %w", err)
	}
	return &m, nil
}

// DeleteMatch implements MatchStore.
func (s *PostgresStore) DeleteMatch(ctx context.Context, id string) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "matches", tracing.DBOperationDelete)
	defer func() { end(err) }()

	if _, err = s.db.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	return nil
}

// MatchedIDs implements MatchStore.
func (s *PostgresStore) MatchedIDs(ctx context.Context, userID string, mode Mode) (_ []string, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "matches", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var ids []string
	err = s.db.SelectContext(ctx, &ids, `
		SELECT CASE WHEN user_a = $1 THEN user_b ELSE user_a END AS other
		FROM matches
		WHERE (user_a = $1 OR user_b = $1) AND mode = $2
		ORDER BY other`, userID, string(mode))
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	return ids, nil
}
