package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/onnwee/swipestack/internal/tracing"
)

// PostgresRepository implements Repository and LocationStore on postgres.
type PostgresRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a repository over an open sqlx handle.
func NewPostgresRepository(db *sqlx.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// profileRow mirrors the profiles table.
type profileRow struct {
	ID                  string          `db:"id"`
	Gender              sql.NullString  `db:"gender"`
	Ethnicity           sql.NullString  `db:"ethnicity"`
	Religion            sql.NullString  `db:"religion"`
	BodyType            sql.NullString  `db:"body_type"`
	Smoking             sql.NullString  `db:"smoking"`
	Drinking            sql.NullString  `db:"drinking"`
	Children            sql.NullString  `db:"children"`
	RelationshipGoal    sql.NullString  `db:"relationship_goal"`
	Education           sql.NullString  `db:"education"`
	Bio                 sql.NullString  `db:"bio"`
	Profession          sql.NullString  `db:"profession"`
	Interests           pq.StringArray  `db:"interests"`
	HasPhoto            bool            `db:"has_photo"`
	DateOfBirth         sql.NullTime    `db:"date_of_birth"`
	HeightCm            sql.NullInt64   `db:"height_cm"`
	LocationText        sql.NullString  `db:"location_text"`
	Country             sql.NullString  `db:"country"`
	Lat                 sql.NullFloat64 `db:"lat"`
	Lng                 sql.NullFloat64 `db:"lng"`
	LocationConfidence  sql.NullFloat64 `db:"location_confidence"`
	LastActiveAt        sql.NullTime    `db:"last_active_at"`
	IsOnline            bool            `db:"is_online"`
	AcceptsMessages     bool            `db:"accepts_messages"`
	IsSuspended         bool            `db:"is_suspended"`
	SuspensionExpiresAt sql.NullTime    `db:"suspension_expires_at"`
	ProfileHidden       bool            `db:"profile_hidden"`
	Activated           bool            `db:"activated"`
	HasPreferences      bool            `db:"has_preferences"`
}

const profileColumns = `
	p.id, p.gender, p.ethnicity, p.religion, p.body_type, p.smoking, p.drinking,
	p.children, p.relationship_goal, p.education, p.bio, p.profession, p.interests,
	p.has_photo, p.date_of_birth, p.height_cm, p.location_text, p.country,
	p.lat, p.lng, p.location_confidence, p.last_active_at, p.is_online,
	p.accepts_messages, p.is_suspended, p.suspension_expires_at,
	p.profile_hidden, p.activated,
	EXISTS (SELECT 1 FROM preferences pr WHERE pr.user_id = p.id) AS has_preferences`

func (r profileRow) toProfile() *UserProfile {
	p := &UserProfile{
		ID:               r.ID,
		Gender:           r.Gender.String,
		Ethnicity:        r.Ethnicity.String,
		Religion:         r.Religion.String,
		BodyType:         r.BodyType.String,
		Smoking:          ParseHabitLevel(r.Smoking.String),
		Drinking:         ParseHabitLevel(r.Drinking.String),
		Children:         ParseChildrenStatus(r.Children.String),
		RelationshipGoal: r.RelationshipGoal.String,
		Education:        r.Education.String,
		Bio:              r.Bio.String,
		Profession:       r.Profession.String,
		Interests:        []string(r.Interests),
		HasPhoto:         r.HasPhoto,
		HeightCm:         int(r.HeightCm.Int64),
		LocationText:     r.LocationText.String,
		Country:          r.Country.String,
		IsOnline:         r.IsOnline,
		AcceptsMessages:  r.AcceptsMessages,
		IsSuspended:      r.IsSuspended,
		ProfileHidden:    r.ProfileHidden,
		Activated:        r.Activated,
		HasPreferences:   r.HasPreferences,
	}
	if r.DateOfBirth.Valid {
		p.DateOfBirth = r.DateOfBirth.Time
	}
	if r.LastActiveAt.Valid {
		p.LastActiveAt = r.LastActiveAt.Time
	}
	if r.SuspensionExpiresAt.Valid {
		t := r.SuspensionExpiresAt.Time
		p.SuspensionExpiresAt = &t
	}
	if r.Lat.Valid && r.Lng.Valid {
		p.Coordinates = Coordinates{Lat: r.Lat.Float64, Lng: r.Lng.Float64, Confidence: 1}
		if r.LocationConfidence.Valid {
			p.Coordinates.Confidence = r.LocationConfidence.Float64
		}
	}
	return p
}

func (r *PostgresRepository) GetProfile(ctx context.Context, id string) (_ *UserProfile, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var row profileRow
	query := `SELECT ` + profileColumns + ` FROM profiles p WHERE p.id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	return row.toProfile(), nil
}

func (r *PostgresRepository) GetProfiles(ctx context.Context, ids []string) (_ map[string]*UserProfile, err error) {
	out := make(map[string]*UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, end := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var rows []profileRow
	query := `SELECT ` + profileColumns + ` FROM profiles p WHERE p.id = ANY($1)`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("get profiles: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = row.toProfile()
	}
	return out, nil
}

// GetPreferences decodes the stored JSONB blob. Decoding problems are logged
// by DecodePreferences and never fail the call.
func (r *PostgresRepository) GetPreferences(ctx context.Context, userID string) (_ Preferences, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "preferences", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var raw []byte
	err = r.db.QueryRowxContext(ctx, `SELECT data FROM preferences WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Preferences{}, nil
		}
		return Preferences{}, fmt.Errorf("get preferences %s: %w", userID, err)
	}
	prefs, decodeErr := DecodePreferences(raw, r.logger.With("user_id", userID))
	if decodeErr != nil {
		r.logger.Warn("stored preferences partially ignored", "user_id", userID, "error", decodeErr)
	}
	return prefs, nil
}

// SavePreferences validates and stores a preference blob along with the
// denormalized priority list used for cohort lookups.
func (r *PostgresRepository) SavePreferences(ctx context.Context, userID string, raw []byte) error {
	prefs, err := DecodePreferences(raw, r.logger)
	if err != nil {
		return err
	}
	kinds := make([]string, 0, len(prefs.Priorities))
	for _, k := range prefs.PriorityKinds() {
		kinds = append(kinds, string(k))
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, data, priorities, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET data = EXCLUDED.data, priorities = EXCLUDED.priorities, updated_at = EXCLUDED.updated_at`,
		userID, raw, pq.Array(kinds), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save preferences %s: %w", userID, err)
	}
	return nil
}

func (r *PostgresRepository) ListCandidates(ctx context.Context, userID string, limit int) (_ []*UserProfile, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `SELECT ` + profileColumns + `
		FROM profiles p
		WHERE p.id <> $1 AND p.activated AND NOT p.profile_hidden
		ORDER BY p.id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var rows []profileRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list candidates for %s: %w", userID, err)
	}
	out := make([]*UserProfile, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toProfile())
	}
	return out, nil
}

func (r *PostgresRepository) BlockedIDs(ctx context.Context, userID string) (_ []string, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "blocks", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var ids []string
	err = r.db.SelectContext(ctx, &ids, `
		SELECT blocked_id FROM blocks WHERE blocker_id = $1
		UNION
		SELECT blocker_id FROM blocks WHERE blocked_id = $1
		ORDER BY 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("blocked ids for %s: %w", userID, err)
	}
	return ids, nil
}

func (r *PostgresRepository) CohortIDs(ctx context.Context, userID string, kinds []PriorityKind, limit int) (_ []string, err error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	ctx, end := tracing.StartDBSpan(ctx, "preferences", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `SELECT user_id FROM preferences WHERE user_id <> $1 AND priorities && $2 ORDER BY user_id`
	args := []any{userID, pq.Array(names)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("cohort for %s: %w", userID, err)
	}
	return ids, nil
}

func (r *PostgresRepository) MissingCoordinates(ctx context.Context, limit int) ([]*UserProfile, error) {
	var rows []profileRow
	query := `SELECT ` + profileColumns + `
		FROM profiles p
		WHERE p.location_text IS NOT NULL AND p.location_text <> '' AND p.lat IS NULL
		ORDER BY p.id LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("profiles missing coordinates: %w", err)
	}
	out := make([]*UserProfile, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toProfile())
	}
	return out, nil
}

func (r *PostgresRepository) SetCoordinates(ctx context.Context, id string, c Coordinates) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET lat = $2, lng = $3, location_confidence = $4 WHERE id = $1`,
		id, c.Lat, c.Lng, c.Confidence)
	if err != nil {
		return fmt.Errorf("set coordinates %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrProfileNotFound
	}
	return nil
}
