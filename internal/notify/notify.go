package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/store"
)

const defaultListLimit = 50

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

// Publisher pushes a payload to live subscribers of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type RedisPublisher struct {
	client redis.Cmdable
}

func NewRedisPublisher(client redis.Cmdable) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

func Channel(recipientID string) string {
	return "notifications:" + recipientID
}

// Service stores in-app notifications and fans them out to live subscribers.
type Service struct {
	repo store.NotificationRepository
	pub  Publisher
	log  *slog.Logger
}

func NewService(repo store.NotificationRepository, pub Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, pub: pub, log: log.With(slog.String("component", "notify"))}
}

// Notify persists n. A failed publish is logged; the stored row is the record of delivery.
func (s *Service) Notify(ctx context.Context, n domain.Notification) error {
	if n.RecipientID == "" {
		return &ValidationError{msg: "recipient_id is required"}
	}
	if strings.TrimSpace(n.Message) == "" {
		return &ValidationError{msg: "message is required"}
	}
	n.Read = false

	saved, err := s.repo.Insert(ctx, n)
	if err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	if s.pub == nil {
		return nil
	}
	payload, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.pub.Publish(ctx, Channel(saved.RecipientID), payload); err != nil {
		s.log.Warn("publish notification failed",
			slog.String("recipient", saved.RecipientID),
			slog.String("notification_id", saved.ID.String()),
			slog.Any("error", err),
		)
	}
	return nil
}

func (s *Service) List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if recipientID == "" {
		return nil, &ValidationError{msg: "recipient_id is required"}
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return s.repo.ListForRecipient(ctx, recipientID, unreadOnly, limit)
}

// MarkRead flags one of the recipient's notifications as read. Notifications
// addressed to someone else are reported as not found.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, recipientID string) error {
	if id == uuid.Nil {
		return &ValidationError{msg: "notification_id is required"}
	}
	if recipientID == "" {
		return &ValidationError{msg: "recipient_id is required"}
	}
	return s.repo.MarkRead(ctx, id, recipientID)
}
