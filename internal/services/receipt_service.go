package services

import (
	"context"

	"hound-api/internal/metrics"
	"hound-api/internal/models"
	"hound-api/pkg/logging"
)

// RequestScope is the caller identity established by the family gate
type RequestScope struct {
	UserID   string
	FamilyID string
}

// ReceiptLedger is the ledger surface receipt reconciliation needs
type ReceiptLedger interface {
	TransactionLedger
	// HasTransaction reports whether userID already owns the lineage transactionID belongs to
	HasTransaction(ctx context.Context, userID, transactionID string) (bool, error)
}

// ReceiptService reconciles the ledger from a receipt the app uploads
type ReceiptService struct {
	families FamilyDirectory
	querier  SubscriptionQuerier
	ledger   ReceiptLedger
	limiter  RateLimiter
}

func NewReceiptService(families FamilyDirectory, querier SubscriptionQuerier, ledger ReceiptLedger, limiter RateLimiter) *ReceiptService {
	if limiter == nil {
		limiter = NoopRateLimiter{}
	}
	return &ReceiptService{families: families, querier: querier, ledger: ledger, limiter: limiter}
}

// Reconcile pulls every subscription transaction related to the receipt into the caller's
// ledger and returns the resulting active transaction, which may be nil.
func (s *ReceiptService) Reconcile(ctx context.Context, scope RequestScope, receipt string) (*models.Transaction, error) {
	active, err := s.reconcile(ctx, scope, receipt)
	outcome := "ok"
	if err != nil {
		outcome = AsDomainError(err).Kind.Code()
	}
	metrics.RecordReceiptReconciliation(outcome)
	return active, err
}

func (s *ReceiptService) reconcile(ctx context.Context, scope RequestScope, receipt string) (*models.Transaction, error) {
	if scope.UserID == "" {
		return nil, NewDomainError(KindValueMissing, "userId missing")
	}
	if receipt == "" {
		return nil, NewDomainError(KindValueMissing, "appStoreReceiptURL missing")
	}

	if err := requireFamilyHead(ctx, s.families, scope.UserID); err != nil {
		return nil, err
	}

	transactionID, ok := ExtractTransactionID(receipt)
	if !ok {
		return nil, NewDomainError(KindReceiptUnparsable, "appStoreReceiptURL could not be parsed")
	}

	allowed, err := s.limiter.Allow(ctx, scope.UserID)
	if err != nil {
		// Limiter outages should not block purchases
		logging.Warnf("Receipt rate limit check failed for user %s: %v", scope.UserID, err)
	} else if !allowed {
		return s.throttled(ctx, scope.UserID, transactionID)
	}

	items := s.querier.QueryAllSubscriptionsForTransactionID(ctx, transactionID)
	if len(items) == 0 {
		return nil, NewDomainError(KindNoSubscriptions, "no subscriptions found for receipt")
	}

	applied := 0
	for _, item := range items {
		if _, err := s.ledger.UpsertTransaction(ctx, scope.UserID, item.RenewalInfo, item.Transaction); err != nil {
			id := ""
			if item.Transaction != nil {
				id = item.Transaction.TransactionID
			}
			logging.Warnf("Skipping transaction %s during receipt reconciliation for user %s: %v", id, scope.UserID, err)
			continue
		}
		applied++
	}
	logging.Infof("Receipt reconciled - user: %s, transactions: %d, applied: %d", scope.UserID, len(items), applied)

	return s.ledger.GetActiveTransaction(ctx, scope.UserID)
}

// throttled answers a submission inside the rate limit window. A receipt the ledger already
// knows is served from the ledger without asking Apple again; anything new has to wait.
func (s *ReceiptService) throttled(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	known, err := s.ledger.HasTransaction(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, NewDomainError(KindRateLimited, "receipt submitted too recently, try again shortly")
	}
	logging.Infof("Receipt resubmitted within rate limit window, serving ledger - user: %s, transaction: %s", userID, transactionID)
	return s.ledger.GetActiveTransaction(ctx, userID)
}
