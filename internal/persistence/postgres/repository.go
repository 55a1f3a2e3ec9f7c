// Package postgres provides pgx-backed persistence for challenges, progress
// rows, credentials, and the transactional outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/challenge/internal/credentials"
	"example.com/challenge/internal/domain"
	"example.com/challenge/internal/events"
	"example.com/challenge/internal/observability"
)

// Repository bundles all Postgres-backed stores for the service.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// --- challenges ---

// Get loads a challenge with its participant set. Returns (nil, nil) when
// the challenge does not exist.
func (r *Repository) Get(ctx context.Context, challengeID string) (*domain.Challenge, error) {
	const query = `SELECT challenge_id, title, challenge_type, start_date, end_date, creator_id, created_at, updated_at
        FROM challenges WHERE challenge_id = $1`

	row := r.pool.QueryRow(ctx, query, challengeID)
	var c domain.Challenge
	if err := row.Scan(&c.ID, &c.Title, &c.Type, &c.StartDate, &c.EndDate, &c.CreatorID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM challenge_participants WHERE challenge_id = $1 ORDER BY joined_at, user_id`,
		challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		c.Participants = append(c.Participants, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create persists the challenge and its initial participants atomically.
func (r *Repository) Create(ctx context.Context, challenge domain.Challenge) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insertChallenge = `INSERT INTO challenges (challenge_id, title, challenge_type, start_date, end_date, creator_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	if _, err := tx.Exec(ctx, insertChallenge,
		challenge.ID,
		challenge.Title,
		challenge.Type,
		challenge.StartDate,
		challenge.EndDate,
		challenge.CreatorID,
		challenge.CreatedAt,
		challenge.UpdatedAt,
	); err != nil {
		return err
	}

	for _, userID := range challenge.Participants {
		if _, err := tx.Exec(ctx,
			`INSERT INTO challenge_participants (challenge_id, user_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
			challenge.ID, userID,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Update rewrites the mutable challenge fields.
func (r *Repository) Update(ctx context.Context, challenge domain.Challenge) error {
	const stmt = `UPDATE challenges
        SET title = $2, start_date = $3, end_date = $4, updated_at = $5
        WHERE challenge_id = $1`
	_, err := r.pool.Exec(ctx, stmt,
		challenge.ID, challenge.Title, challenge.StartDate, challenge.EndDate, challenge.UpdatedAt)
	return err
}

// Delete removes the challenge; participants and progress cascade.
func (r *Repository) Delete(ctx context.Context, challengeID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM challenges WHERE challenge_id = $1`, challengeID)
	return err
}

// List returns challenges newest-first with cursor pagination. Status
// filtering happens in SQL against the clock so status never needs storing.
func (r *Repository) List(ctx context.Context, filter domain.ChallengeFilter, cursor *domain.Cursor, limit int) ([]domain.Challenge, *domain.Cursor, error) {
	query := `SELECT challenge_id, title, challenge_type, start_date, end_date, creator_id, created_at, updated_at
        FROM challenges WHERE 1=1`
	args := make([]interface{}, 0, 6)

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Type != "" {
		query += ` AND challenge_type = ` + arg(filter.Type)
	}
	if filter.CreatorID != "" {
		query += ` AND creator_id = ` + arg(filter.CreatorID)
	}
	switch filter.Status {
	case domain.StatusActive:
		query += ` AND start_date <= NOW() AND end_date >= NOW()`
	case domain.StatusUpcoming:
		query += ` AND start_date > NOW()`
	case domain.StatusEnded:
		query += ` AND end_date < NOW()`
	default:
		// Ended challenges are hidden unless asked for.
		query += ` AND end_date >= NOW()`
	}
	if cursor != nil {
		query += fmt.Sprintf(` AND (created_at, challenge_id) < (%s, %s)`, arg(cursor.CreatedAt), arg(cursor.ID))
	}
	query += ` ORDER BY created_at DESC, challenge_id DESC LIMIT ` + arg(limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Challenge, 0, limit)
	for rows.Next() {
		var c domain.Challenge
		if err := rows.Scan(&c.ID, &c.Title, &c.Type, &c.StartDate, &c.EndDate, &c.CreatorID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, nil, err
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if err := r.attachParticipants(ctx, results); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

func (r *Repository) attachParticipants(ctx context.Context, challenges []domain.Challenge) error {
	if len(challenges) == 0 {
		return nil
	}

	ids := make([]string, 0, len(challenges))
	index := make(map[string]int, len(challenges))
	for i, c := range challenges {
		ids = append(ids, c.ID)
		index[c.ID] = i
	}

	rows, err := r.pool.Query(ctx,
		`SELECT challenge_id, user_id FROM challenge_participants WHERE challenge_id = ANY($1) ORDER BY joined_at, user_id`,
		ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var challengeID, userID string
		if err := rows.Scan(&challengeID, &userID); err != nil {
			return err
		}
		if i, ok := index[challengeID]; ok {
			challenges[i].Participants = append(challenges[i].Participants, userID)
		}
	}
	return rows.Err()
}

// Join adds the user to the participant set; re-joining is a no-op.
func (r *Repository) Join(ctx context.Context, challengeID, userID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO challenge_participants (challenge_id, user_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		challengeID, userID)
	return err
}

// Leave removes the user from the participant set; leaving twice is a no-op.
func (r *Repository) Leave(ctx context.Context, challengeID, userID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM challenge_participants WHERE challenge_id = $1 AND user_id = $2`,
		challengeID, userID)
	return err
}

// --- progress ---

// UpsertDay replaces a single (challenge, user, day) progress value and
// records a progress.updated outbox event in the same transaction.
func (r *Repository) UpsertDay(ctx context.Context, row domain.ProgressRow) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	const stmt = `INSERT INTO challenge_progress (challenge_id, user_id, day, value, updated_at)
        VALUES ($1,$2,$3::date,$4,$5)
        ON CONFLICT (challenge_id, user_id, day)
        DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	if _, err := tx.Exec(ctx, stmt, row.ChallengeID, row.UserID, row.Day, row.Value, now); err != nil {
		return err
	}

	if err := r.insertOutbox(ctx, tx, outboxEntry{
		AggregateType: "progress",
		AggregateID:   fmt.Sprintf("%s:%s:%s", row.ChallengeID, row.UserID, row.Day),
		EventType:     "progress.updated",
		PartitionKey:  fmt.Sprintf("%s:%s", row.ChallengeID, row.UserID),
		Payload: events.ProgressUpdated{
			ChallengeID: row.ChallengeID,
			UserID:      row.UserID,
			Day:         row.Day,
			Value:       row.Value,
			UpdatedAt:   now,
		},
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordProgressUpserted(now)
	return nil
}

// TotalsByUser aggregates progress per user, ordered by total descending
// with user id ascending as the deterministic tie-break.
func (r *Repository) TotalsByUser(ctx context.Context, challengeID string, limit int) ([]domain.UserTotal, error) {
	const query = `SELECT user_id, SUM(value) AS total
        FROM challenge_progress
        WHERE challenge_id = $1
        GROUP BY user_id
        ORDER BY total DESC, user_id ASC
        LIMIT $2`

	rows, err := r.pool.Query(ctx, query, challengeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make([]domain.UserTotal, 0, limit)
	for rows.Next() {
		var t domain.UserTotal
		if err := rows.Scan(&t.UserID, &t.Total); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// RecordSync emits a challenge.synced summary event through the outbox.
func (r *Repository) RecordSync(ctx context.Context, summary domain.SyncSummary) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := r.insertOutbox(ctx, tx, outboxEntry{
		AggregateType: "challenge",
		AggregateID:   summary.ChallengeID,
		EventType:     "challenge.synced",
		PartitionKey:  summary.ChallengeID,
		Payload: events.ChallengeSynced{
			ChallengeID:       summary.ChallengeID,
			UserID:            summary.UserID,
			DaysUpdated:       summary.DaysUpdated,
			ActivitiesFetched: summary.ActivitiesFetched,
			CompletedAt:       summary.CompletedAt,
		},
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// --- credentials ---

// GetCredential implements credentials.Store. Returns (nil, nil) when the
// user has no stored credential.
func (r *Repository) GetCredential(ctx context.Context, userID string) (*credentials.Credential, error) {
	const query = `SELECT user_id, access_token, refresh_token, expires_at, updated_at
        FROM strava_credentials WHERE user_id = $1`

	row := r.pool.QueryRow(ctx, query, userID)
	var cred credentials.Credential
	if err := row.Scan(&cred.UserID, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt, &cred.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

// PutCredential upserts the stored credential for a user.
func (r *Repository) PutCredential(ctx context.Context, cred credentials.Credential) error {
	const stmt = `INSERT INTO strava_credentials (user_id, access_token, refresh_token, expires_at, updated_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (user_id)
        DO UPDATE SET access_token = EXCLUDED.access_token,
                      refresh_token = EXCLUDED.refresh_token,
                      expires_at = EXCLUDED.expires_at,
                      updated_at = EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, stmt,
		cred.UserID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, cred.UpdatedAt)
	return err
}

// DeleteCredential removes the stored credential on disconnect.
func (r *Repository) DeleteCredential(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM strava_credentials WHERE user_id = $1`, userID)
	return err
}

// credentialStore narrows the repository to the credentials.Store surface.
type credentialStore struct {
	repo *Repository
}

// Credentials exposes the repository as a credentials.Store.
func (r *Repository) Credentials() credentials.Store {
	return credentialStore{repo: r}
}

func (s credentialStore) Get(ctx context.Context, userID string) (*credentials.Credential, error) {
	return s.repo.GetCredential(ctx, userID)
}

func (s credentialStore) Put(ctx context.Context, cred credentials.Credential) error {
	return s.repo.PutCredential(ctx, cred)
}

func (s credentialStore) Delete(ctx context.Context, userID string) error {
	return s.repo.DeleteCredential(ctx, userID)
}

// --- users ---

// DisplayNames resolves display names for the given ids. Missing users are
// simply absent from the map.
func (r *Repository) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT user_id, name FROM users WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

// --- activity cache ---

// UpsertCached stores a raw upstream record keyed by (user, source, id).
func (r *Repository) UpsertCached(ctx context.Context, userID string, activity domain.CachedActivity) error {
	const stmt = `INSERT INTO activity_cache
        (user_id, source, external_id, activity_type, start_date, distance_m, moving_time_s, elevation_m, payload, fetched_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
        ON CONFLICT (user_id, source, external_id)
        DO UPDATE SET activity_type = EXCLUDED.activity_type,
                      start_date = EXCLUDED.start_date,
                      distance_m = EXCLUDED.distance_m,
                      moving_time_s = EXCLUDED.moving_time_s,
                      elevation_m = EXCLUDED.elevation_m,
                      payload = EXCLUDED.payload,
                      fetched_at = EXCLUDED.fetched_at`

	var startDate interface{}
	if !activity.StartDate.IsZero() {
		startDate = activity.StartDate
	}

	_, err := r.pool.Exec(ctx, stmt,
		userID,
		activity.Source,
		activity.ExternalID,
		activity.Type,
		startDate,
		activity.DistanceMeters,
		activity.MovingTimeSeconds,
		activity.ElevationGainMeters,
		activity.Payload,
	)
	return err
}

// --- outbox ---

type outboxEntry struct {
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	Payload       interface{}
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, entry outboxEntry) error {
	body, err := json.Marshal(entry.Payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[entry.EventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", entry.EventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", entry.AggregateID, entry.EventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		meta.Topic,
		meta.SchemaSubject,
		entry.PartitionKey,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"progress.updated": {
		Topic:         "challenge_progress_events",
		SchemaSubject: "challenge_progress_events-value",
	},
	"challenge.synced": {
		Topic:         "challenge_sync_events",
		SchemaSubject: "challenge_sync_events-value",
	},
}
