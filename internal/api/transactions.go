package api

import (
	"net/http"

	"hound-api/internal/middleware"
	"hound-api/internal/response"
	"hound-api/internal/services"

	"github.com/gin-gonic/gin"
)

// ReconcileReceiptRequest represents a receipt upload from the app
type ReconcileReceiptRequest struct {
	AppStoreReceiptURL string `json:"appStoreReceiptURL"` // Base64 App Store receipt
}

// ReconcileReceipt refreshes the caller's ledger from their receipt
// POST /api/v1/user/:userId/family/:familyId/transactions
func (h *Handlers) ReconcileReceipt(c *gin.Context) {
	scope, ok := middleware.Scope(c)
	if !ok {
		writeError(c, services.NewDomainError(services.KindValueMissing, "request scope missing"))
		return
	}

	var req ReconcileReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, services.NewDomainError(services.KindValueInvalid, "invalid request format: %v", err))
		return
	}

	active, err := h.Receipts.Reconcile(c.Request.Context(), scope, req.AppStoreReceiptURL)
	if err != nil {
		writeError(c, err)
		return
	}
	response.SuccessJSON(c, active)
}

// GetTransactions returns the family ledger, newest first
// GET /api/v1/user/:userId/family/:familyId/transactions
func (h *Handlers) GetTransactions(c *gin.Context) {
	scope, ok := middleware.Scope(c)
	if !ok {
		writeError(c, services.NewDomainError(services.KindValueMissing, "request scope missing"))
		return
	}

	head, err := h.Ledger.FamilyHead(c.Request.Context(), scope.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	transactions, err := h.Ledger.GetTransactions(c.Request.Context(), head)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(transactions))
}

// GetActiveTransaction returns the transaction that currently entitles the family, or null
// GET /api/v1/user/:userId/family/:familyId/transactions/active
func (h *Handlers) GetActiveTransaction(c *gin.Context) {
	scope, ok := middleware.Scope(c)
	if !ok {
		writeError(c, services.NewDomainError(services.KindValueMissing, "request scope missing"))
		return
	}

	head, err := h.Ledger.FamilyHead(c.Request.Context(), scope.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	active, err := h.Ledger.GetActiveTransaction(c.Request.Context(), head)
	if err != nil {
		writeError(c, err)
		return
	}
	response.SuccessJSON(c, active)
}
