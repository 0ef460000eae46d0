package purchase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cardshop/internal/db"
	"cardshop/internal/email"
	"cardshop/internal/events"
	"cardshop/internal/logger"
	"cardshop/internal/metrics"
	"cardshop/internal/payment"
	"cardshop/internal/user"
	"cardshop/internal/wallet"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	defaultPurchaseTTL = 30 * time.Minute
	defaultReturnPath  = "/wallet/purchase/return"
	ledgerReason       = "Coin purchase"
)

// Providers is the part of payment.Registry the service needs.
type Providers interface {
	Currency() string
	Get(name string) (payment.Provider, error)
	ForMethod(method string) (payment.Provider, error)
	Methods() map[payment.ProviderName][]string
	VerifyWebhook(name string, header http.Header, body []byte) (*payment.WebhookEvent, error)
}

type Mailer interface {
	SendPurchaseReceipt(ctx context.Context, to, name string, r email.PurchaseReceipt) error
}

type UserFinder interface {
	FindByID(ctx context.Context, id int) (*user.User, error)
}

type Config struct {
	PurchaseTTL time.Duration
	// ReturnPath is appended to the caller's base URL to build the provider
	// success and cancel targets.
	ReturnPath string
	// PublicBaseURL, when set, replaces the base URL derived from the request.
	PublicBaseURL string
}

type Service interface {
	InitiatePurchase(ctx context.Context, in InitiateInput) (*InitiateResult, error)
	GetPurchaseStatusForUser(ctx context.Context, userID int, requestID string) (*StatusView, error)
	ListPurchasesForUser(ctx context.Context, userID, limit, offset int) ([]StatusView, error)
	HandleWebhook(ctx context.Context, provider string, header http.Header, body []byte) (*WebhookResult, error)
	ExpireStale(ctx context.Context, limit int) (int, error)
	PaymentMethods() map[payment.ProviderName][]string
}

type service struct {
	repo      Repository
	wallets   wallet.Repository
	tx        db.Transactor
	providers Providers
	users     UserFinder
	mailer    Mailer
	events    events.Publisher
	cfg       Config
	now       func() time.Time
}

func NewService(
	repo Repository,
	wallets wallet.Repository,
	tx db.Transactor,
	providers Providers,
	users UserFinder,
	mailer Mailer,
	publisher events.Publisher,
	cfg Config,
) Service {
	if cfg.PurchaseTTL <= 0 {
		cfg.PurchaseTTL = defaultPurchaseTTL
	}
	if cfg.ReturnPath == "" {
		cfg.ReturnPath = defaultReturnPath
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &service{
		repo:      repo,
		wallets:   wallets,
		tx:        tx,
		providers: providers,
		users:     users,
		mailer:    mailer,
		events:    publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

func validateInput(in InitiateInput) error {
	switch {
	case in.UserID <= 0:
		return errors.Wrap(ErrValidation, "user id is required")
	case in.IdempotencyKey == "":
		return errors.Wrap(ErrValidation, "idempotency key is required")
	case !in.WalletType.Valid():
		return errors.Wrapf(ErrValidation, "unknown wallet type %q", in.WalletType)
	case in.Amount <= 0:
		return errors.Wrap(ErrValidation, "amount must be positive")
	case in.PaymentAmount <= 0:
		return errors.Wrap(ErrValidation, "payment amount must be positive")
	case strings.TrimSpace(in.PaymentMethod) == "":
		return errors.Wrap(ErrValidation, "payment method is required")
	}
	if _, err := uuid.Parse(in.IdempotencyKey); err != nil {
		return errors.Wrap(ErrValidation, "idempotency key must be a uuid")
	}
	return nil
}

func (s *service) InitiatePurchase(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	in.PaymentMethod = strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if err := validateInput(in); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByIdempotencyKey(ctx, in.IdempotencyKey)
	if err == nil {
		return s.resolveExisting(ctx, existing, in, true)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	provider, err := s.providers.ForMethod(in.PaymentMethod)
	if err != nil {
		metrics.RecordPurchaseInitiated("none", "no_provider")
		return nil, err
	}

	now := s.now()
	req := &Request{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		IdempotencyKey:  in.IdempotencyKey,
		WalletType:      in.WalletType,
		Amount:          in.Amount,
		PaymentAmount:   in.PaymentAmount,
		PaymentMethod:   in.PaymentMethod,
		PaymentProvider: string(provider.Name()),
		Status:          StatusPending,
		ExpiresAt:       now.Add(s.cfg.PurchaseTTL),
	}

	if err := s.repo.Create(ctx, req); err != nil {
		if !errors.Is(err, ErrDuplicateIdempotencyKey) {
			return nil, err
		}
		// A concurrent call inserted the same key first.
		existing, err := s.repo.GetByIdempotencyKey(ctx, in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		return s.resolveExisting(ctx, existing, in, false)
	}

	logger.Info("purchase request created",
		"purchase_id", req.ID, "user_id", req.UserID, "provider", req.PaymentProvider, "status", req.Status)

	return s.openSession(ctx, req, provider, in.BaseURL)
}

// resolveExisting answers a repeated initiation. resume allows a pending
// request without a session to retry session creation.
func (s *service) resolveExisting(ctx context.Context, r *Request, in InitiateInput, resume bool) (*InitiateResult, error) {
	if !r.sameIntent(in) {
		metrics.RecordPurchaseInitiated(r.PaymentProvider, "conflict")
		return nil, ErrIdempotencyKeyConflict
	}

	if r.expiredAt(s.now()) {
		s.expire(ctx, r)
	}

	switch r.Status {
	case StatusCompleted:
		metrics.RecordPurchaseInitiated(r.PaymentProvider, "already_completed")
		return &InitiateResult{RequestID: r.ID, AlreadyCompleted: true}, nil
	case StatusProcessing:
		metrics.RecordPurchaseInitiated(r.PaymentProvider, "already_processing")
		return &InitiateResult{RequestID: r.ID, RedirectURL: r.RedirectURL, AlreadyProcessing: true}, nil
	case StatusPending:
		if !resume || r.PaymentSessionID != nil {
			metrics.RecordPurchaseInitiated(r.PaymentProvider, "already_processing")
			return &InitiateResult{RequestID: r.ID, RedirectURL: r.RedirectURL, AlreadyProcessing: true}, nil
		}
		provider, err := s.providers.Get(r.PaymentProvider)
		if err != nil {
			return nil, err
		}
		logger.Info("resuming purchase without payment session", "purchase_id", r.ID, "provider", r.PaymentProvider)
		return s.openSession(ctx, r, provider, in.BaseURL)
	default:
		metrics.RecordPurchaseInitiated(r.PaymentProvider, "key_reused")
		return nil, ErrIdempotencyKeyReused
	}
}

// openSession creates the remote checkout session. No row lock is held during
// the provider call; the request stays pending if it fails.
func (s *service) openSession(ctx context.Context, r *Request, provider payment.Provider, baseURL string) (*InitiateResult, error) {
	success, cancel := s.returnURLs(baseURL, r.ID)

	session, err := provider.CreateSession(ctx, payment.SessionRequest{
		PurchaseID:     r.ID,
		UserID:         r.UserID,
		Amount:         r.PaymentAmount,
		Currency:       s.providers.Currency(),
		PaymentMethod:  r.PaymentMethod,
		Description:    fmt.Sprintf("%d %s", r.Amount, r.WalletType),
		SuccessURL:     success,
		CancelURL:      cancel,
		ExpiresAt:      r.ExpiresAt,
		IdempotencyKey: r.IdempotencyKey,
	})
	if err != nil {
		logger.Error("payment session creation failed",
			"purchase_id", r.ID, "provider", r.PaymentProvider, "error", err)
		metrics.RecordPurchaseInitiated(r.PaymentProvider, "provider_error")
		if !errors.Is(err, payment.ErrProviderUnavailable) {
			err = errors.Wrap(payment.ErrProviderUnavailable, err.Error())
		}
		return nil, err
	}

	attached, err := s.repo.AttachSession(ctx, r.ID, session.ID, session.RedirectURL)
	if err != nil {
		return nil, err
	}
	if !attached {
		current, err := s.repo.GetByID(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		metrics.RecordPurchaseInitiated(r.PaymentProvider, "already_processing")
		return &InitiateResult{RequestID: current.ID, RedirectURL: current.RedirectURL, AlreadyProcessing: true}, nil
	}

	logger.Info("payment session attached",
		"purchase_id", r.ID, "provider", r.PaymentProvider, "session_id", session.ID, "status", StatusProcessing)
	metrics.RecordPurchaseInitiated(r.PaymentProvider, "created")

	redirect := session.RedirectURL
	return &InitiateResult{RequestID: r.ID, RedirectURL: &redirect}, nil
}

func (s *service) returnURLs(baseURL, purchaseID string) (string, string) {
	if s.cfg.PublicBaseURL != "" {
		baseURL = s.cfg.PublicBaseURL
	}
	base := strings.TrimRight(baseURL, "/") + s.cfg.ReturnPath

	success := url.Values{}
	success.Set("purchase_id", purchaseID)
	success.Set("result", "success")

	cancel := url.Values{}
	cancel.Set("purchase_id", purchaseID)
	cancel.Set("result", "cancel")

	return base + "?" + success.Encode(), base + "?" + cancel.Encode()
}

func (s *service) GetPurchaseStatusForUser(ctx context.Context, userID int, requestID string) (*StatusView, error) {
	if _, err := uuid.Parse(requestID); err != nil {
		return nil, ErrNotFound
	}

	r, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, ErrNotFound
	}

	if r.expiredAt(s.now()) {
		s.expire(ctx, r)
	}

	view := r.View()
	return &view, nil
}

func (s *service) ListPurchasesForUser(ctx context.Context, userID, limit, offset int) ([]StatusView, error) {
	requests, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]StatusView, 0, len(requests))
	for i := range requests {
		r := &requests[i]
		if r.expiredAt(now) {
			s.expire(ctx, r)
		}
		views = append(views, r.View())
	}
	return views, nil
}

// expire moves r to expired in place when the conditional update wins. On
// error r is left as read.
func (s *service) expire(ctx context.Context, r *Request) {
	ok, err := s.repo.MarkExpired(ctx, r.ID, s.now())
	if err != nil {
		logger.Error("failed to expire purchase", "purchase_id", r.ID, "error", err)
		return
	}
	if !ok {
		fresh, err := s.repo.GetByID(ctx, r.ID)
		if err == nil {
			*r = *fresh
		}
		return
	}

	code, msg := payment.ReasonExpired, expiredReason
	r.Status = StatusExpired
	r.ErrorCode = &code
	r.ErrorMessage = &msg
	s.afterExpired(ctx, r)
}

func (s *service) afterExpired(ctx context.Context, r *Request) {
	logger.Info("purchase expired", "purchase_id", r.ID, "provider", r.PaymentProvider, "status", StatusExpired)
	metrics.RecordPurchaseFinalized(string(StatusExpired))
	s.publish(ctx, events.Event{
		Type:          events.PurchaseExpired,
		UserID:        r.UserID,
		PurchaseID:    r.ID,
		WalletType:    string(r.WalletType),
		Amount:        r.Amount,
		PaymentAmount: r.PaymentAmount,
		Provider:      r.PaymentProvider,
		ErrorCode:     payment.ReasonExpired,
	})
}

func (s *service) ExpireStale(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	expired, err := s.repo.ExpireStale(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	for i := range expired {
		s.afterExpired(ctx, &expired[i])
	}
	return len(expired), nil
}

func (s *service) PaymentMethods() map[payment.ProviderName][]string {
	return s.providers.Methods()
}

func (s *service) HandleWebhook(ctx context.Context, provider string, header http.Header, body []byte) (*WebhookResult, error) {
	ev, err := s.providers.VerifyWebhook(provider, header, body)
	if err != nil {
		result := "rejected"
		if errors.Is(err, payment.ErrInvalidSignature) {
			result = "invalid_signature"
		}
		metrics.RecordWebhook(provider, result)
		logger.Warn("webhook rejected", "provider", provider, "error", err)
		return nil, err
	}

	processed, err := s.repo.RecordWebhookEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	if processed {
		return s.ack(ev, ResultDuplicate, ""), nil
	}

	result, procErr := s.processEvent(ctx, ev)

	markErr := ""
	if procErr != nil {
		markErr = procErr.Error()
	}
	if err := s.repo.MarkWebhookEventProcessed(ctx, string(ev.Provider), ev.ProviderEventID, markErr); err != nil {
		logger.Error("failed to mark webhook event", "provider", ev.Provider, "event_id", ev.ProviderEventID, "error", err)
	}

	if procErr != nil {
		metrics.RecordWebhook(string(ev.Provider), "error")
		logger.Error("webhook processing failed",
			"provider", ev.Provider, "event_id", ev.ProviderEventID, "session_id", ev.SessionID, "error", procErr)
		return nil, procErr
	}
	return result, nil
}

func (s *service) ack(ev *payment.WebhookEvent, result, purchaseID string) *WebhookResult {
	metrics.RecordWebhook(string(ev.Provider), result)
	logger.Info("webhook handled",
		"provider", ev.Provider, "event_id", ev.ProviderEventID, "event_type", ev.Type,
		"session_id", ev.SessionID, "purchase_id", purchaseID, "result", result)
	return &WebhookResult{Result: result, PurchaseID: purchaseID}
}

func (s *service) processEvent(ctx context.Context, ev *payment.WebhookEvent) (*WebhookResult, error) {
	if ev.Outcome == payment.OutcomeIgnored {
		return s.ack(ev, ResultIgnored, ""), nil
	}

	r, err := s.repo.GetBySession(ctx, string(ev.Provider), ev.SessionID)
	if errors.Is(err, ErrNotFound) {
		return s.ack(ev, ResultUnknownSession, ""), nil
	}
	if err != nil {
		return nil, err
	}

	if r.Status.IsTerminal() {
		s.warnLateSuccess(r, ev)
		return s.ack(ev, ResultDuplicate, r.ID), nil
	}

	switch ev.Outcome {
	case payment.OutcomeSucceeded:
		return s.complete(ctx, r.ID, ev)
	case payment.OutcomeFailed:
		return s.fail(ctx, r.ID, ev)
	}
	return s.ack(ev, ResultIgnored, r.ID), nil
}

func (s *service) warnLateSuccess(r *Request, ev *payment.WebhookEvent) {
	if ev.Outcome == payment.OutcomeSucceeded && r.Status != StatusCompleted {
		logger.Warn("payment succeeded for a finished purchase",
			"purchase_id", r.ID, "status", r.Status, "provider", ev.Provider,
			"session_id", ev.SessionID, "transaction_id", ev.TransactionID)
	}
}

func (s *service) complete(ctx context.Context, id string, ev *payment.WebhookEvent) (*WebhookResult, error) {
	var (
		done    *Request
		history *wallet.History
	)

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		r, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if !r.Status.CanTransition(StatusCompleted) {
			s.warnLateSuccess(r, ev)
			return errAlreadyFinal
		}

		history, err = s.wallets.Apply(ctx, tx, r.UserID, r.WalletType, wallet.ChangeIncrement, r.Amount, wallet.Entry{
			SourceType: wallet.SourceUserAction,
			Reason:     ledgerReason,
			Meta: map[string]interface{}{
				"purchase_request_id": r.ID,
				"provider":            r.PaymentProvider,
				"session_id":          ev.SessionID,
				"transaction_id":      ev.TransactionID,
			},
		})
		if err != nil {
			return errors.Wrap(err, "credit wallet")
		}

		paidAt := s.now()
		if err := s.repo.MarkCompleted(ctx, tx, r.ID, history.ID, ev.TransactionID, paidAt); err != nil {
			return err
		}

		r.Status = StatusCompleted
		r.WalletHistoryID = &history.ID
		r.PaidAt = &paidAt
		r.CompletedAt = &paidAt
		done = r
		return nil
	})
	if errors.Is(err, errAlreadyFinal) {
		return s.ack(ev, ResultDuplicate, id), nil
	}
	if err != nil {
		return nil, err
	}

	logger.Info("purchase completed",
		"purchase_id", done.ID, "user_id", done.UserID, "provider", done.PaymentProvider,
		"session_id", ev.SessionID, "status", done.Status, "history_id", history.ID)
	metrics.RecordPurchaseFinalized(string(StatusCompleted))
	metrics.RecordWalletChange(string(done.WalletType), string(wallet.SourceUserAction))

	s.publish(ctx, events.Event{
		Type:          events.PurchaseCompleted,
		UserID:        done.UserID,
		PurchaseID:    done.ID,
		WalletType:    string(done.WalletType),
		Amount:        done.Amount,
		PaymentAmount: done.PaymentAmount,
		Provider:      done.PaymentProvider,
	})
	s.sendReceipt(ctx, done)

	return s.ack(ev, ResultCompleted, done.ID), nil
}

func (s *service) fail(ctx context.Context, id string, ev *payment.WebhookEvent) (*WebhookResult, error) {
	var failed *Request

	code := payment.NormalizeReason(ev.ErrorCode)
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		r, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if !r.Status.CanTransition(StatusFailed) {
			return errAlreadyFinal
		}
		if err := s.repo.MarkFailed(ctx, tx, r.ID, code, ev.ErrorMessage, ev.TransactionID); err != nil {
			return err
		}
		r.Status = StatusFailed
		failed = r
		return nil
	})
	if errors.Is(err, errAlreadyFinal) {
		return s.ack(ev, ResultDuplicate, id), nil
	}
	if err != nil {
		return nil, err
	}

	logger.Info("purchase failed",
		"purchase_id", failed.ID, "provider", failed.PaymentProvider, "session_id", ev.SessionID,
		"status", failed.Status, "error_code", code)
	metrics.RecordPurchaseFinalized(string(StatusFailed))

	s.publish(ctx, events.Event{
		Type:          events.PurchaseFailed,
		UserID:        failed.UserID,
		PurchaseID:    failed.ID,
		WalletType:    string(failed.WalletType),
		Amount:        failed.Amount,
		PaymentAmount: failed.PaymentAmount,
		Provider:      failed.PaymentProvider,
		ErrorCode:     code,
	})

	return s.ack(ev, ResultFailed, failed.ID), nil
}

func (s *service) publish(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.Error("failed to publish event", "type", ev.Type, "purchase_id", ev.PurchaseID, "error", err)
	}
}

func (s *service) sendReceipt(ctx context.Context, r *Request) {
	if s.users == nil || s.mailer == nil {
		return
	}
	u, err := s.users.FindByID(ctx, r.UserID)
	if err != nil {
		logger.Warn("receipt skipped, user lookup failed", "purchase_id", r.ID, "user_id", r.UserID, "error", err)
		return
	}
	err = s.mailer.SendPurchaseReceipt(ctx, u.Email, u.Name, email.PurchaseReceipt{
		PurchaseID:    r.ID,
		WalletType:    string(r.WalletType),
		Amount:        r.Amount,
		PaymentAmount: r.PaymentAmount,
		Currency:      s.providers.Currency(),
		CompletedAt:   *r.CompletedAt,
	})
	if err != nil {
		logger.Warn("failed to queue purchase receipt", "purchase_id", r.ID, "error", err)
	}
}
