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

// PaymentHandler handles escrow payment endpoints.
type PaymentHandler struct {
	ledger     ports.LedgerService
	refundCoor ports.RefundCoordinator
	auditSvc   ports.AuditService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(ledger ports.LedgerService, refundCoor ports.RefundCoordinator, auditSvc ports.AuditService) *PaymentHandler {
	return &PaymentHandler{ledger: ledger, refundCoor: refundCoor, auditSvc: auditSvc}
}

// CreateEscrow handles POST /api/v1/payments/escrow.
func (h *PaymentHandler) CreateEscrow(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	offerID, err := uuid.Parse(req.OfferID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid offer id"))
		return
	}

	params := ports.CreateEscrowParams{
		OfferID:  offerID,
		Amount:   req.Amount,
		Currency: req.Currency,
	}
	if req.Method != nil {
		params.Method = domain.PaymentMethod(*req.Method)
	}

	session, err := h.ledger.CreateEscrowPayment(c.Request.Context(), actor, params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.EscrowSessionResponse{
		Payment:     dto.FromPayment(session.Payment),
		CheckoutURL: session.CheckoutURL,
	})
}

// GetPayment handles GET /api/v1/payments/:paymentId.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	paymentID, err := uuid.Parse(c.Param("paymentId"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	p, err := h.ledger.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !p.IsParticipant(actor.UserID) && !actor.IsAdmin() {
		response.Error(c, apperror.ErrNotParticipant())
		return
	}

	response.OK(c, dto.FromPayment(p))
}

// ReleaseFunds handles POST /api/v1/payments/:paymentId/release.
func (h *PaymentHandler) ReleaseFunds(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	paymentID, err := uuid.Parse(c.Param("paymentId"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	p, err := h.ledger.ReleaseFunds(c.Request.Context(), actor, paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromPayment(p))
}

// Refund handles POST /api/v1/payments/:paymentId/refund.
func (h *PaymentHandler) Refund(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	paymentID, err := uuid.Parse(c.Param("paymentId"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	rf, err := h.refundCoor.Refund(c.Request.Context(), actor, ports.RefundParams{
		PaymentID: paymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromRefund(rf))
}

// ListRefunds handles GET /api/v1/payments/:paymentId/refunds.
func (h *PaymentHandler) ListRefunds(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	paymentID, err := uuid.Parse(c.Param("paymentId"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	refunds, err := h.ledger.ListRefunds(c.Request.Context(), actor, paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.RefundResponse, 0, len(refunds))
	for i := range refunds {
		items = append(items, dto.FromRefund(&refunds[i]))
	}
	response.OK(c, items)
}

// History handles GET /api/v1/payments/:paymentId/history: the audit trail
// of the payment, doubling as dispute/cancellation history.
func (h *PaymentHandler) History(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	paymentID, err := uuid.Parse(c.Param("paymentId"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	p, err := h.ledger.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !p.IsParticipant(actor.UserID) && !actor.IsAdmin() {
		response.Error(c, apperror.ErrNotParticipant())
		return
	}

	trail, err := h.auditSvc.History(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	items := make([]dto.AuditLogResponse, 0, len(trail))
	for i := range trail {
		items = append(items, dto.FromAuditLog(&trail[i]))
	}
	response.OK(c, items)
}

// MarkDisputed handles POST /api/v1/payments/:paymentId/dispute.
func (h *PaymentHandler) MarkDisputed(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	paymentID, err := uuid.Parse(c.Param("paymentId"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	var req dto.DisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	// Disputes come from either party contesting work completion.
	p, err := h.ledger.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !p.IsParticipant(actor.UserID) && !actor.IsAdmin() {
		response.Error(c, apperror.ErrNotParticipant())
		return
	}

	p, err = h.ledger.MarkDisputed(c.Request.Context(), paymentID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromPayment(p))
}

// CancelService handles POST /api/v1/offers/:offerId/cancel.
func (h *PaymentHandler) CancelService(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	offerID, err := uuid.Parse(c.Param("offerId"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid offer id"))
		return
	}

	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	p, err := h.refundCoor.CancelService(c.Request.Context(), actor, offerID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromPayment(p))
}
