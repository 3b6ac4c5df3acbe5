package api

import (
	"context"
	"net/http"

	"hound-api/internal/models"
	"hound-api/internal/response"
	"hound-api/internal/services"
	"hound-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// NotificationProcessor applies one App Store signedPayload
type NotificationProcessor interface {
	Process(ctx context.Context, signedPayload string) string
}

// ReceiptReconciler refreshes a ledger from an uploaded receipt
type ReceiptReconciler interface {
	Reconcile(ctx context.Context, scope services.RequestScope, receipt string) (*models.Transaction, error)
}

// LedgerReader serves the read side of the ledger
type LedgerReader interface {
	FamilyHead(ctx context.Context, userID string) (string, error)
	GetTransactions(ctx context.Context, userID string) ([]models.Transaction, error)
	GetActiveTransaction(ctx context.Context, userID string) (*models.Transaction, error)
}

// Handlers bundles the services the HTTP layer calls into
type Handlers struct {
	Notifications NotificationProcessor
	Receipts      ReceiptReconciler
	Ledger        LedgerReader
}

// writeError maps an error onto its coded JSON response
func writeError(c *gin.Context, err error) {
	domainErr := services.AsDomainError(err)
	if domainErr.Kind == services.KindInternal {
		logging.Errorf("Request failed - path: %s, error: %v", c.FullPath(), err)
		response.ErrorJSON(c, http.StatusInternalServerError, domainErr.Kind.Code(), "internal error")
		return
	}
	response.ErrorJSON(c, domainErr.Kind.HTTPStatus(), domainErr.Kind.Code(), domainErr.Message)
}
