package user

import (
	"net/http"
	"strconv"

	"cardshop/internal/api"
	"cardshop/internal/auth"
	"cardshop/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// GetMe godoc
// @Summary      Get current user
// @Description  Returns profile of the authenticated user.
// @Tags         user
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  User
// @Failure      401  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /me [get]
func (h *Handler) GetMe(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	user, err := h.service.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load user"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// DeleteMe godoc
// @Summary      Close my account
// @Description  Soft-deletes the authenticated user and clears every wallet balance.
// @Tags         user
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  DeleteResult
// @Failure      401  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /me [delete]
func (h *Handler) DeleteMe(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}
	h.softDelete(c, userID)
}

// Delete godoc
// @Summary      Delete user (admin)
// @Description  Soft-deletes a user and writes compensating ledger rows for every non-zero wallet.
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        userID  path      int  true  "User ID"
// @Success      200     {object}  DeleteResult
// @Failure      400     {object}  api.ErrorResponse
// @Failure      404     {object}  api.ErrorResponse
// @Failure      500     {object}  api.ErrorResponse
// @Router       /admin/users/{userID} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userID"))
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid user id"})
		return
	}

	adminID, _ := auth.GetUserID(c)
	logger.Info("admin deleting user", "admin_id", adminID, "user_id", userID)
	h.softDelete(c, userID)
}

func (h *Handler) softDelete(c *gin.Context, userID int) {
	result, err := h.service.SoftDelete(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to delete user"})
		return
	}

	c.JSON(http.StatusOK, result)
}
