package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat_server/server/realtime/domain"
)

type FriendRepository struct {
	pool *pgxpool.Pool
}

func NewFriendRepository(pool *pgxpool.Pool) *FriendRepository {
	return &FriendRepository{pool: pool}
}

func (r *FriendRepository) CreateRequest(ctx context.Context, requesterID, addresseeID string) (domain.Friendship, error) {
	f := domain.Friendship{RequesterID: requesterID, AddresseeID: addresseeID, Status: domain.FriendRequestPending}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO friendships(requester_id, addressee_id, status)
		VALUES($1, $2, $3)
		ON CONFLICT (requester_id, addressee_id) DO UPDATE SET status=friendships.status
		RETURNING friendship_id, status, created_at
	`, requesterID, addresseeID, domain.FriendRequestPending).Scan(&f.ID, &f.Status, &f.CreatedAt)
	return f, err
}

func (r *FriendRepository) AcceptRequest(ctx context.Context, requestID, addresseeID string) (domain.Friendship, bool, error) {
	var f domain.Friendship
	err := r.pool.QueryRow(ctx, `
		UPDATE friendships
		SET status=$3
		WHERE friendship_id=$1 AND addressee_id=$2 AND status=$4
		RETURNING friendship_id, requester_id, addressee_id, status, created_at
	`, requestID, addresseeID, domain.FriendRequestAccepted, domain.FriendRequestPending).
		Scan(&f.ID, &f.RequesterID, &f.AddresseeID, &f.Status, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Friendship{}, false, nil
		}
		return domain.Friendship{}, false, err
	}
	return f, true, nil
}

func (r *FriendRepository) RemoveFriend(ctx context.Context, userID, friendID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM friendships
		WHERE (requester_id=$1 AND addressee_id=$2) OR (requester_id=$2 AND addressee_id=$1)
	`, userID, friendID)
	return err
}

func (r *FriendRepository) ListAcceptedFriendIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT CASE WHEN requester_id=$1 THEN addressee_id ELSE requester_id END
		FROM friendships
		WHERE (requester_id=$1 OR addressee_id=$1) AND status=$2
	`, userID, domain.FriendRequestAccepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
