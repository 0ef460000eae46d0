package purchase

import (
	"context"
	"database/sql"
	"time"

	"cardshop/internal/db"
	"cardshop/internal/payment"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const idempotencyConstraint = "purchase_requests_idempotency_key_key"

const requestColumns = `id, user_id, idempotency_key, wallet_type, amount, payment_amount, payment_method,
	payment_provider, status, payment_session_id, transaction_id, redirect_url, error_code, error_message,
	wallet_history_id, completed_at, paid_at, expires_at, created_at, updated_at`

const expiredReason = "purchase expired before payment completed"

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, req *Request) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO purchase_requests
		 (id, user_id, idempotency_key, wallet_type, amount, payment_amount, payment_method, payment_provider, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		req.ID, req.UserID, req.IdempotencyKey, req.WalletType, req.Amount, req.PaymentAmount,
		req.PaymentMethod, req.PaymentProvider, req.Status, req.ExpiresAt,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, idempotencyConstraint) {
			return ErrDuplicateIdempotencyKey
		}
		return errors.Wrap(err, "insert purchase request")
	}
	return nil
}

func (r *repository) getOne(ctx context.Context, query string, args ...interface{}) (*Request, error) {
	var req Request
	err := r.db.GetContext(ctx, &req, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Request, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM purchase_requests WHERE id = $1`, id)
}

func (r *repository) GetByIdempotencyKey(ctx context.Context, key string) (*Request, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM purchase_requests WHERE idempotency_key = $1`, key)
}

func (r *repository) GetBySession(ctx context.Context, provider, sessionID string) (*Request, error) {
	return r.getOne(ctx,
		`SELECT `+requestColumns+` FROM purchase_requests WHERE payment_provider = $1 AND payment_session_id = $2`,
		provider, sessionID,
	)
}

func (r *repository) AttachSession(ctx context.Context, id, sessionID, redirectURL string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE purchase_requests
		 SET payment_session_id = $1, redirect_url = $2, status = 'processing', updated_at = NOW()
		 WHERE id = $3 AND status = 'pending' AND payment_session_id IS NULL`,
		sessionID, redirectURL, id,
	)
	if err != nil {
		return false, errors.Wrap(err, "attach payment session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repository) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*Request, error) {
	var req Request
	err := tx.GetContext(ctx, &req,
		`SELECT `+requestColumns+` FROM purchase_requests WHERE id = $1 FOR UPDATE`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock purchase request")
	}
	return &req, nil
}

func (r *repository) MarkCompleted(ctx context.Context, tx *sqlx.Tx, id string, historyID int64, transactionID string, paidAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE purchase_requests
		 SET status = 'completed', wallet_history_id = $1,
		     transaction_id = COALESCE(NULLIF($2, ''), transaction_id),
		     paid_at = $3, completed_at = $3, updated_at = NOW()
		 WHERE id = $4 AND status IN ('pending', 'processing')`,
		historyID, transactionID, paidAt, id,
	)
	if err != nil {
		return errors.Wrap(err, "mark purchase completed")
	}
	return expectOneRow(res)
}

func (r *repository) MarkFailed(ctx context.Context, tx *sqlx.Tx, id, code, message, transactionID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE purchase_requests
		 SET status = 'failed', error_code = $1, error_message = $2,
		     transaction_id = COALESCE(NULLIF($3, ''), transaction_id), updated_at = NOW()
		 WHERE id = $4 AND status IN ('pending', 'processing')`,
		code, message, transactionID, id,
	)
	if err != nil {
		return errors.Wrap(err, "mark purchase failed")
	}
	return expectOneRow(res)
}

func (r *repository) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE purchase_requests
		 SET status = 'expired', error_code = $1, error_message = $2, updated_at = NOW()
		 WHERE id = $3 AND status IN ('pending', 'processing') AND expires_at <= $4`,
		payment.ReasonExpired, expiredReason, id, now,
	)
	if err != nil {
		return false, errors.Wrap(err, "mark purchase expired")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExpireStale expires up to limit overdue requests, skipping rows a webhook
// currently holds.
func (r *repository) ExpireStale(ctx context.Context, now time.Time, limit int) ([]Request, error) {
	expired := []Request{}
	err := r.db.SelectContext(ctx, &expired,
		`UPDATE purchase_requests
		 SET status = 'expired', error_code = $1, error_message = $2, updated_at = NOW()
		 WHERE id IN (
		     SELECT id FROM purchase_requests
		     WHERE status IN ('pending', 'processing') AND expires_at <= $3
		     ORDER BY expires_at
		     LIMIT $4
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+requestColumns,
		payment.ReasonExpired, expiredReason, now, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "expire stale purchases")
	}
	return expired, nil
}

func (r *repository) ListByUser(ctx context.Context, userID, limit, offset int) ([]Request, error) {
	if limit <= 0 {
		limit = 20
	}
	requests := []Request{}
	err := r.db.SelectContext(ctx, &requests,
		`SELECT `+requestColumns+`
		 FROM purchase_requests
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) RecordWebhookEvent(ctx context.Context, ev *payment.WebhookEvent) (bool, error) {
	var processedAt *time.Time
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO payment_webhook_events (provider, provider_event_id, event_type, session_id, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (provider, provider_event_id) DO UPDATE SET event_type = EXCLUDED.event_type
		 RETURNING processed_at`,
		string(ev.Provider), ev.ProviderEventID, ev.Type, nullable(ev.SessionID), []byte(ev.Raw),
	).Scan(&processedAt)
	if err != nil {
		return false, errors.Wrap(err, "record webhook event")
	}
	return processedAt != nil, nil
}

func (r *repository) MarkWebhookEventProcessed(ctx context.Context, provider, eventID, processingErr string) error {
	var err error
	if processingErr == "" {
		_, err = r.db.ExecContext(ctx,
			`UPDATE payment_webhook_events
			 SET processed_at = NOW(), processing_error = NULL
			 WHERE provider = $1 AND provider_event_id = $2`,
			provider, eventID,
		)
	} else {
		_, err = r.db.ExecContext(ctx,
			`UPDATE payment_webhook_events
			 SET processing_error = $1
			 WHERE provider = $2 AND provider_event_id = $3`,
			processingErr, provider, eventID,
		)
	}
	return errors.Wrap(err, "mark webhook event")
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrInvalidTransition
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
