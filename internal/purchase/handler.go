package purchase

import (
	"io"
	"net/http"
	"strconv"

	"cardshop/internal/api"
	"cardshop/internal/auth"
	"cardshop/internal/logger"
	"cardshop/internal/payment"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// ReturnResponse is shown when the provider sends the buyer back.
type ReturnResponse struct {
	PurchaseID string `json:"purchaseId"`
	Result     string `json:"result"`
	StatusURL  string `json:"statusUrl"`
}

// Initiate godoc
// @Summary      Start a coin purchase
// @Description  Creates a purchase request and a provider checkout session. Repeating the call with the same idempotency key never opens a second session.
// @Tags         purchase
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      InitiateRequest  true  "Purchase"
// @Success      200      {object}  InitiateResult
// @Failure      400      {object}  api.ValidationErrorResponse
// @Failure      401      {object}  api.ErrorResponse
// @Failure      409      {object}  api.ErrorResponse
// @Failure      502      {object}  api.ErrorResponse
// @Router       /wallet/purchase/initiate [post]
func (h *Handler) Initiate(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}
	if errs := api.ValidateStruct(req); len(errs) > 0 {
		api.RespondWithValidationErrors(c, errs)
		return
	}

	result, err := h.service.InitiatePurchase(c.Request.Context(), InitiateInput{
		UserID:         userID,
		IdempotencyKey: req.IdempotencyKey,
		WalletType:     req.WalletType,
		Amount:         req.Amount,
		PaymentAmount:  req.PaymentAmount,
		PaymentMethod:  req.PaymentMethod,
		BaseURL:        baseURL(c),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation), errors.Is(err, payment.ErrNoProviderForMethod):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		case errors.Is(err, ErrIdempotencyKeyReused), errors.Is(err, ErrIdempotencyKeyConflict):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
		case errors.Is(err, payment.ErrProviderUnavailable):
			c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "payment provider unavailable, retry with the same idempotency key"})
		default:
			logger.Error("purchase initiation failed", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to start purchase"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// Status godoc
// @Summary      Poll a purchase
// @Description  Returns the purchase status for its owner. Requests of other users are reported as not found.
// @Tags         purchase
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Purchase request ID"
// @Success      200  {object}  StatusView
// @Failure      401  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /wallet/purchase/{id}/status [get]
func (h *Handler) Status(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	view, err := h.service.GetPurchaseStatusForUser(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "purchase not found"})
			return
		}
		logger.Error("purchase status lookup failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load purchase"})
		return
	}

	c.JSON(http.StatusOK, view)
}

// List godoc
// @Summary      My purchases
// @Tags         purchase
// @Security     BearerAuth
// @Produce      json
// @Param        limit   query     int  false  "Page size"
// @Param        offset  query     int  false  "Offset"
// @Success      200     {array}   StatusView
// @Failure      401     {object}  api.ErrorResponse
// @Router       /wallet/purchases [get]
func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	views, err := h.service.ListPurchasesForUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load purchases"})
		return
	}

	c.JSON(http.StatusOK, views)
}

// Methods godoc
// @Summary      Accepted payment methods
// @Tags         purchase
// @Produce      json
// @Success      200  {object}  map[string][]string
// @Router       /wallet/purchase/methods [get]
func (h *Handler) Methods(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.PaymentMethods())
}

// Return godoc
// @Summary      Checkout return target
// @Description  Where providers send the buyer after checkout. Completion is asynchronous, so clients poll the status URL.
// @Tags         purchase
// @Produce      json
// @Param        purchase_id  query     string  true  "Purchase request ID"
// @Param        result       query     string  false "success or cancel"
// @Success      200          {object}  ReturnResponse
// @Failure      400          {object}  api.ErrorResponse
// @Router       /wallet/purchase/return [get]
func (h *Handler) Return(c *gin.Context) {
	id := c.Query("purchase_id")
	if id == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "purchase_id is required"})
		return
	}

	c.JSON(http.StatusOK, ReturnResponse{
		PurchaseID: id,
		Result:     c.DefaultQuery("result", "success"),
		StatusURL:  "/wallet/purchase/" + id + "/status",
	})
}

// Webhook godoc
// @Summary      Payment provider webhook
// @Description  Receives provider callbacks. Answers 200 for every verified event, including duplicates and unknown sessions.
// @Tags         webhook
// @Accept       json
// @Produce      json
// @Param        provider  query     string  true  "Provider name"
// @Success      200       {object}  WebhookResult
// @Failure      400       {object}  api.ErrorResponse
// @Failure      401       {object}  api.ErrorResponse
// @Failure      413       {object}  api.ErrorResponse
// @Failure      500       {object}  api.ErrorResponse
// @Router       /webhook/payment [post]
func (h *Handler) Webhook(c *gin.Context) {
	provider := c.Query("provider")
	if provider == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "provider is required"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "failed to read body"})
		return
	}
	if len(body) > maxWebhookBody {
		logger.Warn("webhook body too large", "provider", provider, "limit_bytes", maxWebhookBody)
		c.JSON(http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "payload too large"})
		return
	}

	result, err := h.service.HandleWebhook(c.Request.Context(), provider, c.Request.Header, body)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidSignature):
			c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid signature"})
		case errors.Is(err, payment.ErrMalformedPayload):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "malformed payload"})
		case errors.Is(err, payment.ErrUnknownProvider), errors.Is(err, payment.ErrProviderDisabled):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "webhook processing failed"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// baseURL is the scheme and host the caller reached us on.
func baseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}
