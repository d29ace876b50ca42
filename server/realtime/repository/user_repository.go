package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat_server/server/realtime/domain"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) SetPresence(ctx context.Context, userID string, isOnline bool, lastSeen *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET is_online=$2, last_seen=COALESCE($3, last_seen)
		WHERE user_id=$1
	`, userID, isOnline, lastSeen)
	return err
}

func (r *UserRepository) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, name, is_online, last_seen
		FROM users
		WHERE user_id=$1
	`, userID).Scan(&u.ID, &u.Name, &u.IsOnline, &u.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}
