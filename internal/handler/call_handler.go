package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"carelink/internal/history"
	"carelink/internal/middleware"
	"carelink/internal/signaling"
	"carelink/internal/transport/httpdto"
	carelink_errors "carelink/pkg/errors"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	signaling *signaling.Service
	history   *history.Service
}

func NewCallHandler(sig *signaling.Service, hist *history.Service) *CallHandler {
	return &CallHandler{signaling: sig, history: hist}
}

// Propose handles POST /calls.
func (h *CallHandler) Propose(c *gin.Context) {
	var req httpdto.ProposeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	rec, err := h.signaling.Propose(c.Request.Context(), middleware.UserID(c), req.CalleeID, req.PatientName)
	if err != nil {
		c.JSON(statusFor(err), httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(rec))
}

// Answer handles POST /calls/:id/answer.
func (h *CallHandler) Answer(c *gin.Context) {
	h.transition(c, h.signaling.Answer)
}

// Reject handles POST /calls/:id/reject.
func (h *CallHandler) Reject(c *gin.Context) {
	h.transition(c, h.signaling.Reject)
}

// End handles POST /calls/:id/end.
func (h *CallHandler) End(c *gin.Context) {
	h.transition(c, h.signaling.End)
}

// MarkMissed handles POST /calls/:id/missed.
func (h *CallHandler) MarkMissed(c *gin.Context) {
	h.transition(c, h.signaling.MarkMissed)
}

// GetByID handles GET /calls/:id.
func (h *CallHandler) GetByID(c *gin.Context) {
	rec, err := h.signaling.Fetch(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(rec))
}

// History handles GET /calls/history for the authenticated user.
func (h *CallHandler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, total, err := h.history.ListUserCalls(c.Request.Context(), middleware.UserID(c), page, limit)
	if err != nil {
		c.JSON(statusFor(err), httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"calls": entries, "total": total}))
}

func (h *CallHandler) transition(c *gin.Context, fn func(ctx context.Context, callID string) (signaling.Outcome, error)) {
	out, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.TransitionResponse{
		Applied: out.Applied,
		Record:  out.Record,
	}))
}

func statusFor(err error) int {
	if errors.Is(err, carelink_errors.ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, carelink_errors.ErrInvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
