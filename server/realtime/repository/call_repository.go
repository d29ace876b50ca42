package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"chat_server/server/realtime/domain"
)

type CallRepository struct {
	pool *pgxpool.Pool
}

func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// SaveSnapshot persists the terminal state of a call session. Sessions are
// coordinated in memory; only the final record is durable.
func (r *CallRepository) SaveSnapshot(ctx context.Context, session domain.CallSession) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO calls(call_id, mode, call_type, initiator_id, group_id, status, started_at, ended_at, duration_seconds)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (call_id) DO UPDATE
		SET status=EXCLUDED.status, ended_at=EXCLUDED.ended_at, duration_seconds=EXCLUDED.duration_seconds
	`, session.ID, session.Mode, session.Type, session.InitiatorID, session.GroupID,
		session.Status, session.StartedAt, session.EndedAt, session.Duration)
	if err != nil {
		return err
	}

	for _, p := range session.Participants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO call_participants(call_id, user_id, status, joined_at, left_at)
			VALUES($1, $2, $3, $4, $5)
			ON CONFLICT (call_id, user_id) DO UPDATE
			SET status=EXCLUDED.status, joined_at=EXCLUDED.joined_at, left_at=EXCLUDED.left_at
		`, session.ID, p.UserID, p.Status, p.JoinedAt, p.LeftAt); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
