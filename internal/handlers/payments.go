package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/splithaus/splithaus/internal/services"
	apperrors "github.com/splithaus/splithaus/pkg/errors"
	"github.com/splithaus/splithaus/pkg/response"
)

// PaymentHandler exposes payment request generation and listing.
type PaymentHandler struct {
	payments *services.PaymentService
	checkout *services.CheckoutService
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(payments *services.PaymentService, checkout *services.CheckoutService) *PaymentHandler {
	return &PaymentHandler{payments: payments, checkout: checkout}
}

type createPaymentsRequest struct {
	TotalAmountCents int64  `json:"total_amount_cents" validate:"required,gt=0"`
	Currency         string `json:"currency" validate:"required,len=3"`
	DueDate          string `json:"due_date" validate:"required"`
}

// CreateBatch splits the billing period total across the household's
// residents, creating one pending payment request each.
func (h *PaymentHandler) CreateBatch(c *gin.Context) {
	req, ok := bindAndValidate[createPaymentsRequest](c)
	if !ok {
		return
	}

	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("due_date must be formatted as YYYY-MM-DD"))
		return
	}

	payments, err := h.payments.CreatePeriodPayments(c.Request.Context(), services.CreatePeriodPaymentsInput{
		HouseholdID:      c.Param("id"),
		CreatorID:        currentUserID(c),
		TotalAmountCents: req.TotalAmountCents,
		Currency:         req.Currency,
		DueDate:          dueDate,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, payments)
}

// ListForHousehold returns all payment requests of a household.
func (h *PaymentHandler) ListForHousehold(c *gin.Context) {
	payments, err := h.payments.ListForHousehold(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, payments)
}

// Get returns a single payment request visible to the caller.
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, err := h.payments.Get(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, payment)
}

// ListMine returns the caller's own payment requests, optionally filtered by
// a status query parameter.
func (h *PaymentHandler) ListMine(c *gin.Context) {
	payments, err := h.payments.ListForUser(c.Request.Context(), currentUserID(c), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, payments)
}

// BeginCheckout opens a gateway payment session for one payment request.
func (h *PaymentHandler) BeginCheckout(c *gin.Context) {
	checkout, err := h.checkout.BeginCheckout(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, checkout)
}
