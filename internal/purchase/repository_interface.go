package purchase

import (
	"context"
	"time"

	"cardshop/internal/payment"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Request, error)
	GetBySession(ctx context.Context, provider, sessionID string) (*Request, error)
	// AttachSession moves a pending request without a session to processing.
	// It reports false when another caller got there first.
	AttachSession(ctx context.Context, id, sessionID, redirectURL string) (bool, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*Request, error)
	MarkCompleted(ctx context.Context, tx *sqlx.Tx, id string, historyID int64, transactionID string, paidAt time.Time) error
	MarkFailed(ctx context.Context, tx *sqlx.Tx, id, code, message, transactionID string) error
	MarkExpired(ctx context.Context, id string, now time.Time) (bool, error)
	ExpireStale(ctx context.Context, now time.Time, limit int) ([]Request, error)
	ListByUser(ctx context.Context, userID, limit, offset int) ([]Request, error)
	// RecordWebhookEvent stores the delivery and reports whether the same
	// provider event was already processed.
	RecordWebhookEvent(ctx context.Context, ev *payment.WebhookEvent) (bool, error)
	MarkWebhookEventProcessed(ctx context.Context, provider, eventID, processingErr string) error
}
