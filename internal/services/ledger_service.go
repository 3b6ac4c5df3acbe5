package services

import (
	"context"
	"fmt"

	"hound-api/internal/database"
	"hound-api/internal/metrics"
	"hound-api/internal/models"
	"hound-api/pkg/logging"

	"gorm.io/gorm"
)

// TransactionLedger is the write side of the ledger used by the entry points
type TransactionLedger interface {
	UpsertTransaction(ctx context.Context, userID string, renewal *models.JWSRenewalInfo, tx *models.JWSTransaction) (*models.Transaction, error)
	GetActiveTransaction(ctx context.Context, userID string) (*models.Transaction, error)
}

// LedgerService validates and stores App Store transactions and resolves entitlements
type LedgerService struct {
	db          *gorm.DB
	environment string
	catalog     ProductCatalog
	families    FamilyDirectory
	locker      UserLocker
}

func NewLedgerService(db *gorm.DB, environment string, catalog ProductCatalog, families FamilyDirectory, locker UserLocker) *LedgerService {
	return &LedgerService{
		db:          db,
		environment: environment,
		catalog:     catalog,
		families:    families,
		locker:      locker,
	}
}

// UpsertTransaction records tx for userID and re-establishes the single auto-renewing row.
// renewal may be nil when the current renewal state is unknown.
func (s *LedgerService) UpsertTransaction(ctx context.Context, userID string, renewal *models.JWSRenewalInfo, tx *models.JWSTransaction) (*models.Transaction, error) {
	row, err := s.buildRow(ctx, userID, renewal, tx)
	if err != nil {
		metrics.RecordLedgerUpsert("rejected")
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		metrics.RecordLedgerUpsert("error")
		return nil, err
	}
	defer unlock()

	var stored *models.Transaction
	err = s.db.WithContext(ctx).Transaction(func(dbTx *gorm.DB) error {
		if err := database.UpsertTransaction(dbTx, row); err != nil {
			return fmt.Errorf("failed to upsert transaction: %w", err)
		}
		if _, err := database.RecomputeAutoRenewing(dbTx, userID); err != nil {
			return fmt.Errorf("failed to recompute auto renewal: %w", err)
		}
		var err error
		stored, err = database.GetTransaction(dbTx, row.TransactionID)
		return err
	})
	if err != nil {
		metrics.RecordLedgerUpsert("error")
		return nil, err
	}

	metrics.RecordLedgerUpsert("ok")
	logging.Debugf("Ledger upserted - user: %s, transaction: %s, product: %s", userID, row.TransactionID, row.ProductID)
	return stored, nil
}

// buildRow validates the observation and maps it onto a ledger row
func (s *LedgerService) buildRow(ctx context.Context, userID string, renewal *models.JWSRenewalInfo, tx *models.JWSTransaction) (*models.Transaction, error) {
	if userID == "" {
		return nil, NewDomainError(KindValueMissing, "userId missing")
	}
	if tx == nil {
		return nil, NewDomainError(KindValueMissing, "transaction info missing")
	}
	switch {
	case tx.TransactionID == "":
		return nil, NewDomainError(KindValueMissing, "transactionId missing")
	case tx.OriginalTransactionID == "":
		return nil, NewDomainError(KindValueMissing, "originalTransactionId missing")
	case tx.ProductID == "":
		return nil, NewDomainError(KindValueMissing, "productId missing")
	case tx.PurchaseDate <= 0:
		return nil, NewDomainError(KindValueMissing, "purchaseDate missing")
	}

	if tx.Environment != s.environment {
		return nil, NewDomainError(KindEnvironmentMismatch, "environment %q does not match server environment %q", tx.Environment, s.environment)
	}
	if tx.InAppOwnershipType != models.OwnershipTypePurchased {
		return nil, NewDomainError(KindOwnershipTypeInvalid, "inAppOwnershipType %q is not %s", tx.InAppOwnershipType, models.OwnershipTypePurchased)
	}

	product, ok := s.catalog.Lookup(tx.ProductID)
	if !ok {
		return nil, NewDomainError(KindProductUnknown, "productId %q is not a known subscription product", tx.ProductID)
	}

	if err := requireFamilyHead(ctx, s.families, userID); err != nil {
		return nil, err
	}

	quantity := tx.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	row := &models.Transaction{
		TransactionID:               tx.TransactionID,
		OriginalTransactionID:       tx.OriginalTransactionID,
		UserID:                      userID,
		Environment:                 tx.Environment,
		ProductID:                   tx.ProductID,
		SubscriptionGroupIdentifier: tx.SubscriptionGroupIdentifier,
		PurchaseDate:                models.MillisToTime(tx.PurchaseDate),
		ExpiresDate:                 models.MillisToTimePtr(tx.ExpiresDate),
		Quantity:                    quantity,
		WebOrderLineItemID:          tx.WebOrderLineItemID,
		InAppOwnershipType:          tx.InAppOwnershipType,
		OfferIdentifier:             tx.OfferIdentifier,
		OfferType:                   tx.OfferType,
		TransactionReason:           tx.TransactionReason,
		NumberOfFamilyMembers:       product.NumberOfFamilyMembers,
		NumberOfDogs:                product.NumberOfDogs,
		RevocationReason:            tx.RevocationReason,
		RevocationDate:              models.MillisToTimePtr(tx.RevocationDate),
	}

	if renewal != nil {
		row.AutoRenewProductID = renewal.AutoRenewProductID
		if renewal.AutoRenewStatus != nil {
			renewing := *renewal.AutoRenewStatus == 1
			row.AutoRenewStatus = &renewing
		}
	}

	return row, nil
}

// GetActiveTransaction returns the user's current entitlement, nil when there is none
func (s *LedgerService) GetActiveTransaction(ctx context.Context, userID string) (*models.Transaction, error) {
	active, err := database.GetActiveTransaction(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active transaction: %w", err)
	}
	return active, nil
}

// GetTransactions returns the user's full ledger, newest first
func (s *LedgerService) GetTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	transactions, err := database.GetTransactionsByUser(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	return transactions, nil
}

// HasTransaction reports whether userID owns the lineage containing transactionID
func (s *LedgerService) HasTransaction(ctx context.Context, userID, transactionID string) (bool, error) {
	owner, err := database.FindOwnerUserID(s.db.WithContext(ctx), transactionID, transactionID)
	if err != nil {
		return false, fmt.Errorf("failed to look up transaction owner: %w", err)
	}
	return owner != "" && owner == userID, nil
}

// FamilyHead resolves whose ledger backs the given member's family
func (s *LedgerService) FamilyHead(ctx context.Context, userID string) (string, error) {
	head, err := s.families.GetFamilyHeadUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if head == "" {
		return "", NewDomainError(KindNoFamily, "user %s is not in a family", userID)
	}
	return head, nil
}
