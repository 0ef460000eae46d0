package purchase

import (
	"context"
	"net/http"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"cardshop/internal/email"
	"cardshop/internal/events"
	"cardshop/internal/logger"
	"cardshop/internal/payment"
	"cardshop/internal/user"
	"cardshop/internal/wallet"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

func TestMain(m *testing.M) {
	logger.Init("error")

	code := m.Run()
	os.Exit(code)
}

// memRepo is an in-memory Repository enforcing the same uniqueness and
// conditional updates as the SQL one.
type memRepo struct {
	mu       sync.Mutex
	byID     map[string]*Request
	webhooks map[string]bool
	created  int
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*Request{}, webhooks: map[string]bool{}}
}

func (m *memRepo) copyOf(r *Request) *Request {
	c := *r
	return &c
}

func (m *memRepo) Create(_ context.Context, r *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.IdempotencyKey == r.IdempotencyKey {
			return ErrDuplicateIdempotencyKey
		}
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.byID[r.ID] = m.copyOf(r)
	m.created++
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.copyOf(r), nil
}

func (m *memRepo) GetByIdempotencyKey(_ context.Context, key string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.IdempotencyKey == key {
			return m.copyOf(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) GetBySession(_ context.Context, provider, sessionID string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.PaymentProvider == provider && r.PaymentSessionID != nil && *r.PaymentSessionID == sessionID {
			return m.copyOf(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) AttachSession(_ context.Context, id, sessionID, redirectURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok || r.Status != StatusPending || r.PaymentSessionID != nil {
		return false, nil
	}
	r.PaymentSessionID = &sessionID
	r.RedirectURL = &redirectURL
	r.Status = StatusProcessing
	return true, nil
}

func (m *memRepo) LockByID(ctx context.Context, _ *sqlx.Tx, id string) (*Request, error) {
	return m.GetByID(ctx, id)
}

func (m *memRepo) MarkCompleted(_ context.Context, _ *sqlx.Tx, id string, historyID int64, transactionID string, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok || r.Status.IsTerminal() {
		return ErrInvalidTransition
	}
	r.Status = StatusCompleted
	r.WalletHistoryID = &historyID
	if transactionID != "" {
		r.TransactionID = &transactionID
	}
	r.PaidAt = &paidAt
	r.CompletedAt = &paidAt
	return nil
}

func (m *memRepo) MarkFailed(_ context.Context, _ *sqlx.Tx, id, code, message, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok || r.Status.IsTerminal() {
		return ErrInvalidTransition
	}
	r.Status = StatusFailed
	r.ErrorCode = &code
	r.ErrorMessage = &message
	if transactionID != "" {
		r.TransactionID = &transactionID
	}
	return nil
}

func (m *memRepo) expireLocked(r *Request) {
	code, msg := payment.ReasonExpired, expiredReason
	r.Status = StatusExpired
	r.ErrorCode = &code
	r.ErrorMessage = &msg
}

func (m *memRepo) MarkExpired(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok || r.Status.IsTerminal() || now.Before(r.ExpiresAt) {
		return false, nil
	}
	m.expireLocked(r)
	return true, nil
}

func (m *memRepo) ExpireStale(_ context.Context, now time.Time, limit int) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, r := range m.byID {
		if len(out) == limit {
			break
		}
		if !r.Status.IsTerminal() && !now.Before(r.ExpiresAt) {
			m.expireLocked(r)
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) ListByUser(_ context.Context, userID, limit, offset int) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, r := range m.byID {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []Request{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) RecordWebhookEvent(_ context.Context, ev *payment.WebhookEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(ev.Provider) + "/" + ev.ProviderEventID
	processed, seen := m.webhooks[key]
	if !seen {
		m.webhooks[key] = false
	}
	return processed, nil
}

func (m *memRepo) MarkWebhookEventProcessed(_ context.Context, provider, eventID, processingErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if processingErr == "" {
		m.webhooks[provider+"/"+eventID] = true
	}
	return nil
}

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// memWallets keeps balances and ledger rows for Apply; the rest of
// wallet.Repository is unused here.
type memWallets struct {
	wallet.Repository

	mu       sync.Mutex
	balances map[wallet.Type]int64
	history  []wallet.History
	failNext error
}

func newMemWallets() *memWallets {
	return &memWallets{balances: map[wallet.Type]int64{}}
}

func (w *memWallets) Apply(_ context.Context, _ *sqlx.Tx, userID int, walletType wallet.Type, method wallet.ChangeMethod, amount int64, entry wallet.Entry) (*wallet.History, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failNext != nil {
		err := w.failNext
		w.failNext = nil
		return nil, err
	}
	if method != wallet.ChangeIncrement {
		return nil, errors.New("unexpected change method")
	}
	before := w.balances[walletType]
	w.balances[walletType] = before + amount
	h := wallet.History{
		ID:            int64(len(w.history) + 1),
		UserID:        userID,
		Type:          walletType,
		ChangeMethod:  method,
		PointsDelta:   amount,
		BalanceBefore: before,
		BalanceAfter:  before + amount,
		SourceType:    entry.SourceType,
		Reason:        entry.Reason,
	}
	w.history = append(w.history, h)
	return &h, nil
}

func (w *memWallets) balance(t wallet.Type) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[t]
}

func (w *memWallets) rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.history)
}

// serialTx runs transactions one at a time, standing in for row locks.
type serialTx struct {
	mu sync.Mutex
}

func (s *serialTx) WithTx(_ context.Context, fn func(tx *sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(nil)
}

// fakeProviders is a single dummy-backed provider that also plays the
// registry. It accepts the "card" method only.
type fakeProviders struct {
	dummy *payment.DummyProvider

	mu       sync.Mutex
	sessions int
	failNext error
}

func newFakeProviders() *fakeProviders {
	return &fakeProviders{dummy: payment.NewDummyProvider("")}
}

func (f *fakeProviders) Name() payment.ProviderName { return payment.Dummy }

func (f *fakeProviders) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	f.sessions++
	return f.dummy.CreateSession(ctx, req)
}

func (f *fakeProviders) VerifySignature(string, []byte) error { return nil }

func (f *fakeProviders) ParseWebhook(body []byte) (*payment.WebhookEvent, error) {
	return f.dummy.ParseWebhook(body)
}

func (f *fakeProviders) Currency() string { return "JPY" }

func (f *fakeProviders) Get(name string) (payment.Provider, error) {
	if name != string(payment.Dummy) {
		return nil, payment.ErrUnknownProvider
	}
	return f, nil
}

func (f *fakeProviders) ForMethod(method string) (payment.Provider, error) {
	if method != "card" {
		return nil, payment.ErrNoProviderForMethod
	}
	return f, nil
}

func (f *fakeProviders) Methods() map[payment.ProviderName][]string {
	return map[payment.ProviderName][]string{payment.Dummy: {"card"}}
}

func (f *fakeProviders) VerifyWebhook(name string, header http.Header, body []byte) (*payment.WebhookEvent, error) {
	if name != string(payment.Dummy) {
		return nil, payment.ErrUnknownProvider
	}
	if header.Get("X-Dummy-Signature") == "bad" {
		return nil, errors.Wrap(payment.ErrInvalidSignature, "dummy")
	}
	ev, err := f.ParseWebhook(body)
	if err != nil {
		return nil, err
	}
	ev.Raw = append(ev.Raw[:0], body...)
	return ev, nil
}

func (f *fakeProviders) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

type fakeUsers struct{}

func (fakeUsers) FindByID(_ context.Context, id int) (*user.User, error) {
	return &user.User{ID: id, Name: "Buyer", Email: "buyer@example.com"}, nil
}

type recordingMailer struct {
	mu       sync.Mutex
	receipts []email.PurchaseReceipt
}

func (m *recordingMailer) SendPurchaseReceipt(_ context.Context, _, _ string, r email.PurchaseReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts = append(m.receipts, r)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
