package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat_server/server/realtime/domain"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) CreateMessage(ctx context.Context, message domain.Message, recipientIDs []string) (domain.Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return message, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO messages(sender_id, receiver_id, group_id, kind, body)
		VALUES($1, $2, $3, $4, $5)
		RETURNING message_id, created_at
	`, message.SenderID, message.ReceiverID, message.GroupID, message.Kind, message.Body).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return message, err
	}

	for _, recipientID := range recipientIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO message_status(message_id, recipient_id, status)
			VALUES($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, message.ID, recipientID, domain.MessageStatusSent); err != nil {
			return message, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return message, err
	}
	return message, nil
}

func (r *MessageRepository) GetMessage(ctx context.Context, messageID string) (domain.Message, bool, error) {
	var m domain.Message
	err := r.pool.QueryRow(ctx, `
		SELECT message_id, sender_id, receiver_id, group_id, kind, body, created_at
		FROM messages
		WHERE message_id=$1
	`, messageID).Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.GroupID, &m.Kind, &m.Body, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, err
	}
	return m, true, nil
}

// MarkDelivered flips a single (message, recipient) entry from sent to
// delivered. The status predicate makes the transition idempotent: a row
// already at delivered or seen is left untouched and reported as not
// updated.
func (r *MessageRepository) MarkDelivered(ctx context.Context, messageID, recipientID string) (senderID string, updated bool, err error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE message_status ms
		SET status=$3, updated_at=now()
		FROM messages m
		WHERE ms.message_id=m.message_id
		  AND ms.message_id=$1 AND ms.recipient_id=$2 AND ms.status=$4
		RETURNING m.sender_id
	`, messageID, recipientID, domain.MessageStatusDelivered, domain.MessageStatusSent)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	for rows.Next() {
		if err := rows.Scan(&senderID); err != nil {
			return "", false, err
		}
		updated = true
	}
	return senderID, updated, rows.Err()
}

// MarkSeen bulk-flips any non-seen entries for the recipient and returns
// one (message, sender) pair per affected row.
func (r *MessageRepository) MarkSeen(ctx context.Context, messageIDs []string, recipientID string) ([]domain.PendingDelivery, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		UPDATE message_status ms
		SET status=$3, updated_at=now()
		FROM messages m
		WHERE ms.message_id=m.message_id
		  AND ms.message_id=ANY($1) AND ms.recipient_id=$2 AND ms.status<>$3
		RETURNING ms.message_id, m.sender_id
	`, messageIDs, recipientID, domain.MessageStatusSeen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	affected := make([]domain.PendingDelivery, 0, len(messageIDs))
	for rows.Next() {
		var p domain.PendingDelivery
		if err := rows.Scan(&p.MessageID, &p.SenderID); err != nil {
			return nil, err
		}
		affected = append(affected, p)
	}
	return affected, rows.Err()
}

// SweepPending marks every still-sent entry for the recipient as delivered.
// Run on (re)connect: a live connection implies the client is reachable.
func (r *MessageRepository) SweepPending(ctx context.Context, recipientID string) ([]domain.PendingDelivery, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE message_status ms
		SET status=$2, updated_at=now()
		FROM messages m
		WHERE ms.message_id=m.message_id
		  AND ms.recipient_id=$1 AND ms.status=$3
		RETURNING ms.message_id, m.sender_id
	`, recipientID, domain.MessageStatusDelivered, domain.MessageStatusSent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	affected := make([]domain.PendingDelivery, 0)
	for rows.Next() {
		var p domain.PendingDelivery
		if err := rows.Scan(&p.MessageID, &p.SenderID); err != nil {
			return nil, err
		}
		affected = append(affected, p)
	}
	return affected, rows.Err()
}
