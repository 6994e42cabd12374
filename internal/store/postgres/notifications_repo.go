package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"counseling/backend/internal/domain"
)

type NotificationRepo struct {
	db *bun.DB
}

func NewNotificationRepo(db *bun.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) Insert(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if _, err := r.db.NewInsert().Model(&n).Exec(ctx); err != nil {
		return domain.Notification{}, mapError(err)
	}
	return n, nil
}

func (r *NotificationRepo) ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	var rows []domain.Notification
	q := r.db.NewSelect().
		Model(&rows).
		Where("recipient_id = ?", recipientID).
		OrderExpr("created_at DESC")
	if unreadOnly {
		q = q.Where("read = FALSE")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id uuid.UUID, recipientID string) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Notification)(nil)).
		Set("read = TRUE").
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("recipient_id = ?", recipientID).
		Exec(ctx)
	return affectedOne(res, err)
}

type UserRepo struct {
	db *bun.DB
}

func NewUserRepo(db *bun.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	if err := r.db.NewSelect().Model(&u).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return domain.User{}, mapError(err)
	}
	return u, nil
}

// UpsertUser is used by the seeder to populate the directory.
func (r *UserRepo) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := r.db.NewInsert().
		Model(&u).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("email = EXCLUDED.email").
		Set("roles = EXCLUDED.roles").
		Exec(ctx)
	return mapError(err)
}
