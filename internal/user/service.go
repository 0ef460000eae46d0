package user

import (
	"context"

	"cardshop/internal/events"
	"cardshop/internal/logger"
	"cardshop/internal/metrics"
	"cardshop/internal/wallet"
)

const clearReason = "Account deleted"

type Mailer interface {
	SendBalanceCleared(ctx context.Context, to, name string) error
}

type Service interface {
	GetByID(ctx context.Context, userID int) (*User, error)
	SoftDelete(ctx context.Context, userID int) (*DeleteResult, error)
}

type service struct {
	repo    Repository
	wallets wallet.Repository
	mailer  Mailer
	events  events.Publisher
}

func NewService(repo Repository, wallets wallet.Repository, mailer Mailer, publisher events.Publisher) Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &service{
		repo:    repo,
		wallets: wallets,
		mailer:  mailer,
		events:  publisher,
	}
}

func (s *service) GetByID(ctx context.Context, userID int) (*User, error) {
	return s.repo.FindByID(ctx, userID)
}

// SoftDelete closes the account and zeroes every wallet with compensating
// ledger rows.
func (s *service) SoftDelete(ctx context.Context, userID int) (*DeleteResult, error) {
	user, err := s.repo.SoftDelete(ctx, userID)
	if err != nil {
		return nil, err
	}

	cleared, err := s.wallets.ClearBalance(ctx, userID, clearReason)
	if err != nil {
		logger.Error("balance cleanup failed", "user_id", userID, "error", err)
		return nil, err
	}

	for _, h := range cleared {
		metrics.RecordWalletChange(string(h.Type), string(h.SourceType))

		ev := events.Event{
			Type:       events.WalletCleared,
			UserID:     userID,
			WalletType: string(h.Type),
			Amount:     -h.PointsDelta,
		}
		if h.RequestBatchID != nil {
			ev.BatchID = *h.RequestBatchID
		}
		if err := s.events.Publish(ctx, ev); err != nil {
			logger.Error("failed to publish event", "type", ev.Type, "user_id", userID, "error", err)
		}
	}

	logger.Info("user soft-deleted", "user_id", userID, "wallets_cleared", len(cleared))

	if len(cleared) > 0 && s.mailer != nil {
		if err := s.mailer.SendBalanceCleared(ctx, user.Email, user.Name); err != nil {
			logger.Warn("failed to queue balance cleared email", "user_id", userID, "error", err)
		}
	}

	return &DeleteResult{User: *user, Cleared: cleared}, nil
}
