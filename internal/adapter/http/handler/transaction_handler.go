package handler

import (
	"marketplace-escrow/internal/adapter/http/dto"
	"marketplace-escrow/internal/adapter/http/middleware"
	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"
	"marketplace-escrow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransactionHandler serves the unified transaction view.
type TransactionHandler struct {
	txSvc ports.TransactionService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(txSvc ports.TransactionService) *TransactionHandler {
	return &TransactionHandler{txSvc: txSvc}
}

// List handles GET /api/v1/transactions.
func (h *TransactionHandler) List(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var q dto.ListTransactionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	params := ports.TransactionListParams{
		Status:   q.Status,
		From:     q.From,
		To:       q.To,
		Page:     q.Page,
		PageSize: q.Limit,
	}
	if q.PaymentMethod != nil {
		m := domain.PaymentMethod(*q.PaymentMethod)
		params.Method = &m
	}

	var filterUserID *uuid.UUID
	if q.UserID != nil {
		id, err := uuid.Parse(*q.UserID)
		if err != nil {
			response.Error(c, apperror.Validation("invalid user id"))
			return
		}
		filterUserID = &id
	}

	items, total, err := h.txSvc.List(c.Request.Context(), actor, params, filterUserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	out := make([]dto.TransactionResponse, 0, len(items))
	for _, item := range items {
		out = append(out, dto.FromTransaction(item))
	}

	response.OK(c, dto.TransactionListResponse{
		Items:      out,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// Stats handles GET /api/v1/transactions/stats (admin only).
func (h *TransactionHandler) Stats(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	stats, err := h.txSvc.Stats(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromStats(stats))
}
