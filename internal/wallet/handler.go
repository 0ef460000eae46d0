package wallet

import (
	"net/http"
	"strconv"

	"cardshop/internal/api"
	"cardshop/internal/auth"
	"cardshop/internal/logger"
	"cardshop/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// GetBalances godoc
// @Summary      My wallets
// @Description  Returns every wallet of the authenticated user.
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   Wallet
// @Failure      401  {object}  api.ErrorResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /wallet [get]
func (h *Handler) GetBalances(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	wallets, err := h.repo.ListWallets(c.Request.Context(), userID)
	if err != nil {
		logger.Error("failed to load wallets", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load wallets"})
		return
	}

	c.JSON(http.StatusOK, wallets)
}

// ListHistory godoc
// @Summary      My ledger
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        type    query     string  false  "Wallet type"
// @Param        limit   query     int     false  "Page size"
// @Param        offset  query     int     false  "Offset"
// @Success      200     {array}   History
// @Failure      400     {object}  api.ErrorResponse
// @Failure      500     {object}  api.ErrorResponse
// @Router       /wallet/history [get]
func (h *Handler) ListHistory(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	walletType := Type(c.Query("type"))
	if walletType != "" && !walletType.Valid() {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "unknown wallet type"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	history, err := h.repo.ListHistory(c.Request.Context(), userID, walletType, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, history)
}

// Adjust godoc
// @Summary      Adjust a user's wallet
// @Description  Increments, decrements or sets a balance and writes an admin ledger row. Admin only.
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        userID   path      int            true  "User ID"
// @Param        request  body      AdjustRequest  true  "Adjustment"
// @Success      200      {object}  History
// @Failure      400      {object}  api.ValidationErrorResponse
// @Failure      409      {object}  api.ErrorResponse
// @Failure      500      {object}  api.ErrorResponse
// @Router       /admin/wallets/{userID}/adjust [post]
func (h *Handler) Adjust(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid user id"})
		return
	}

	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}
	if errs := api.ValidateStruct(req); len(errs) > 0 {
		api.RespondWithValidationErrors(c, errs)
		return
	}

	adminID, _ := auth.GetUserID(c)
	entry := Entry{
		SourceType: SourceAdminAction,
		Reason:     req.Reason,
		Meta:       map[string]interface{}{"admin_id": adminID},
	}

	history, err := h.repo.Adjust(c.Request.Context(), userID, req.WalletType, req.ChangeMethod, req.Amount, entry)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidWalletType), errors.Is(err, ErrInvalidChangeMethod), errors.Is(err, ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		case errors.Is(err, ErrInsufficientBalance):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
		default:
			logger.Error("wallet adjustment failed", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to adjust wallet"})
		}
		return
	}

	metrics.RecordWalletChange(string(history.Type), string(history.SourceType))
	logger.Info("wallet adjusted",
		"user_id", userID,
		"admin_id", adminID,
		"type", history.Type,
		"change_method", history.ChangeMethod,
		"points_delta", history.PointsDelta,
	)
	c.JSON(http.StatusOK, history)
}

// Reconcile godoc
// @Summary      Reconcile wallets against the ledger
// @Description  Lists wallets whose balance differs from their latest ledger row. Admin only.
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        userID  path      int  true  "User ID"
// @Success      200     {array}   Mismatch
// @Failure      400     {object}  api.ErrorResponse
// @Failure      500     {object}  api.ErrorResponse
// @Router       /admin/wallets/{userID}/reconcile [get]
func (h *Handler) Reconcile(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid user id"})
		return
	}

	mismatches, err := h.repo.Reconcile(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to reconcile"})
		return
	}
	if len(mismatches) > 0 {
		logger.Warn("wallet ledger mismatch", "user_id", userID, "count", len(mismatches))
	}

	c.JSON(http.StatusOK, mismatches)
}
