package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/libraryhub/backend/internal/models"
	"go.uber.org/zap"
)

type NotificationService struct {
	db     *sql.DB
	auth   Authorizer
	logger *zap.Logger
	now    func() time.Time
}

func NewNotificationService(db *sql.DB, auth Authorizer, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{db: db, auth: auth, logger: logger.Named("notifications"), now: time.Now}
}

// notify queues a message for the student inside the caller's transaction
func notify(ctx context.Context, ex execer, studentID int64, kind, title, message string, at time.Time) error {
	_, err := ex.ExecContext(ctx,
		"INSERT INTO notifications (student_id, title, message, notification_type, is_read, created_at) VALUES ($1, $2, $3, $4, false, $5)",
		studentID, title, message, kind, at)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *NotificationService) ListNotifications(ctx context.Context, actor models.Identity) ([]models.Notification, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityStudent); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE student_id = $1 ORDER BY created_at DESC",
		actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return collect(rows, scanNotification)
}

// MarkNotificationRead is idempotent; read_at keeps the first read time
func (s *NotificationService) MarkNotificationRead(ctx context.Context, actor models.Identity, id int64) (*models.Notification, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityStudent); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"UPDATE notifications SET is_read = true, read_at = COALESCE(read_at, $1) WHERE id = $2 AND student_id = $3 RETURNING "+notificationColumns,
		s.now(), id, actor.ID)
	n, err := scanNotification(row)
	if err != nil {
		return nil, notFound(err, ErrNotificationNotFound, "mark notification read")
	}
	return n, nil
}
