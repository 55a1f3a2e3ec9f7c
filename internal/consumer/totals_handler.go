package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/challenge/internal/events"
)

// TotalsHandler maintains the challenge_totals projection from progress events.
// Totals are recomputed from the per-day rows rather than incremented so that
// replayed or duplicated events converge on the same value.
type TotalsHandler struct {
	pool *pgxpool.Pool
}

// NewTotalsHandler constructs a handler backed by the provided pool.
func NewTotalsHandler(pool *pgxpool.Pool) *TotalsHandler {
	return &TotalsHandler{pool: pool}
}

// Handle applies a single decoded event to the projection. Events other than
// progress.updated are acknowledged without effect.
func (h *TotalsHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != "progress.updated" {
		return nil
	}

	var event events.ProgressUpdated
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("unmarshal progress event: %w", err)
	}
	if event.ChallengeID == "" || event.UserID == "" {
		return fmt.Errorf("progress event missing identifiers (topic=%s, offset=%d)", msg.Topic, msg.Offset)
	}

	_, err := h.pool.Exec(ctx,
		`INSERT INTO challenge_totals (challenge_id, user_id, total, updated_at)
         SELECT $1, $2, COALESCE(SUM(value), 0), NOW()
           FROM challenge_progress
          WHERE challenge_id = $1 AND user_id = $2
             ON CONFLICT (challenge_id, user_id)
             DO UPDATE SET total = EXCLUDED.total, updated_at = EXCLUDED.updated_at`,
		event.ChallengeID, event.UserID,
	)
	if err != nil {
		return fmt.Errorf("upsert challenge totals: %w", err)
	}
	return nil
}
