package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetOrCreateWallet(ctx context.Context, userID int, walletType Type) (*Wallet, error) {
	args := m.Called(ctx, userID, walletType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Wallet), args.Error(1)
}

func (m *MockRepository) ListWallets(ctx context.Context, userID int) ([]Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Wallet), args.Error(1)
}

func (m *MockRepository) Apply(ctx context.Context, tx *sqlx.Tx, userID int, walletType Type, method ChangeMethod, amount int64, entry Entry) (*History, error) {
	args := m.Called(ctx, tx, userID, walletType, method, amount, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*History), args.Error(1)
}

func (m *MockRepository) Credit(ctx context.Context, userID int, walletType Type, amount int64, entry Entry) (*History, error) {
	args := m.Called(ctx, userID, walletType, amount, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*History), args.Error(1)
}

func (m *MockRepository) Debit(ctx context.Context, userID int, walletType Type, amount int64, entry Entry) (*History, error) {
	args := m.Called(ctx, userID, walletType, amount, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*History), args.Error(1)
}

func (m *MockRepository) Adjust(ctx context.Context, userID int, walletType Type, method ChangeMethod, amount int64, entry Entry) (*History, error) {
	args := m.Called(ctx, userID, walletType, method, amount, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*History), args.Error(1)
}

func (m *MockRepository) ClearBalance(ctx context.Context, userID int, reason string) ([]History, error) {
	args := m.Called(ctx, userID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]History), args.Error(1)
}

func (m *MockRepository) ListHistory(ctx context.Context, userID int, walletType Type, limit, offset int) ([]History, error) {
	args := m.Called(ctx, userID, walletType, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]History), args.Error(1)
}

func (m *MockRepository) Reconcile(ctx context.Context, userID int) ([]Mismatch, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Mismatch), args.Error(1)
}

func newTestRouter(h *Handler, userID int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != 0 {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	r.GET("/wallet", h.GetBalances)
	r.GET("/wallet/history", h.ListHistory)
	r.POST("/admin/wallets/:userID/adjust", h.Adjust)
	r.GET("/admin/wallets/:userID/reconcile", h.Reconcile)
	return r
}

func TestHandler_GetBalances(t *testing.T) {
	repo := new(MockRepository)
	h := NewHandler(repo)

	repo.On("ListWallets", mock.Anything, 7).Return([]Wallet{
		{ID: 1, UserID: 7, Type: TypeRegularCoin, Balance: 500},
	}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	newTestRouter(h, 7).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var wallets []Wallet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallets))
	require.Len(t, wallets, 1)
	assert.Equal(t, int64(500), wallets[0].Balance)
	repo.AssertExpectations(t)
}

func TestHandler_GetBalances_Unauthenticated(t *testing.T) {
	repo := new(MockRepository)
	h := NewHandler(repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	newTestRouter(h, 0).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	repo.AssertNotCalled(t, "ListWallets", mock.Anything, mock.Anything)
}

func TestHandler_ListHistory_UnknownType(t *testing.T) {
	repo := new(MockRepository)
	h := NewHandler(repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/wallet/history?type=gems", nil)
	newTestRouter(h, 7).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ListHistory(t *testing.T) {
	repo := new(MockRepository)
	h := NewHandler(repo)

	repo.On("ListHistory", mock.Anything, 7, TypeRegularCoin, 10, 20).Return([]History{{ID: 3}}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/wallet/history?type=regular_coin&limit=10&offset=20", nil)
	newTestRouter(h, 7).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	repo.AssertExpectations(t)
}

func TestHandler_Adjust(t *testing.T) {
	repo := new(MockRepository)
	h := NewHandler(repo)

	repo.On("Adjust", mock.Anything, 42, TypeBonusCoin, ChangeIncrement, int64(100),
		mock.MatchedBy(func(e Entry) bool {
			return e.SourceType == SourceAdminAction && e.Reason == "compensation" && e.Meta["admin_id"] == 1
		}),
	).Return(&History{ID: 9, Type: TypeBonusCoin, SourceType: SourceAdminAction, PointsDelta: 100}, nil)

	body, _ := json.Marshal(AdjustRequest{
		WalletType:   TypeBonusCoin,
		ChangeMethod: ChangeIncrement,
		Amount:       100,
		Reason:       "compensation",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/wallets/42/adjust", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	newTestRouter(h, 1).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	repo.AssertExpectations(t)
}

func TestHandler_Adjust_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		repoErr    error
		wantStatus int
	}{
		{"bad user id", "/admin/wallets/abc/adjust", `{}`, nil, http.StatusBadRequest},
		{"malformed json", "/admin/wallets/42/adjust", `{`, nil, http.StatusBadRequest},
		{"missing reason", "/admin/wallets/42/adjust", `{"wallet_type":"regular_coin","change_method":"set","amount":0}`, nil, http.StatusBadRequest},
		{"insufficient", "/admin/wallets/42/adjust", `{"wallet_type":"regular_coin","change_method":"decrement","amount":5,"reason":"fix"}`, ErrInsufficientBalance, http.StatusConflict},
		{"unknown type", "/admin/wallets/42/adjust", `{"wallet_type":"gems","change_method":"increment","amount":5,"reason":"fix"}`, ErrInvalidWalletType, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			h := NewHandler(repo)
			if tt.repoErr != nil {
				repo.On("Adjust", mock.Anything, 42, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, tt.repoErr)
			}

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			newTestRouter(h, 1).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestHandler_Reconcile(t *testing.T) {
	repo := new(MockRepository)
	h := NewHandler(repo)

	repo.On("Reconcile", mock.Anything, 42).Return([]Mismatch{{Type: TypeRegularCoin, Balance: 10, LedgerAmount: 20}}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/wallets/42/reconcile", nil)
	newTestRouter(h, 1).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var out []Mismatch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out, 1)
}
