package services

import (
	"context"

	"hound-api/internal/database"
	"hound-api/internal/metrics"
	"hound-api/internal/models"
	"hound-api/pkg/logging"

	"gorm.io/gorm"
)

// Notification types that can change a user's ledger
var ledgerNotificationTypes = map[string]bool{
	"DID_RENEW":                 true,
	"SUBSCRIBED":                true,
	"REFUND":                    true,
	"REVOKE":                    true,
	"DID_CHANGE_RENEWAL_PREF":   true,
	"DID_CHANGE_RENEWAL_STATUS": true,
	"DID_FAIL_TO_RENEW":         true,
	"EXPIRED":                   true,
	"OFFER_REDEEMED":            true,
}

// Processing outcomes, also used as metric labels
const (
	OutcomeUndecodable    = "undecodable"
	OutcomeDuplicate      = "duplicate"
	OutcomeIgnored        = "ignored"
	OutcomeUnattributable = "unattributable"
	OutcomeRejected       = "rejected"
	OutcomeFailed         = "failed"
	OutcomeApplied        = "applied"
)

// NotificationService applies App Store Server Notifications to the ledger
type NotificationService struct {
	db      *gorm.DB
	decoder PayloadDecoder
	ledger  TransactionLedger
	push    PushEnqueuer
}

func NewNotificationService(db *gorm.DB, decoder PayloadDecoder, ledger TransactionLedger, push PushEnqueuer) *NotificationService {
	return &NotificationService{db: db, decoder: decoder, ledger: ledger, push: push}
}

// Process handles one signedPayload. It never fails visibly: Apple only needs an
// acknowledgement, so every problem is logged and reported through the outcome.
func (s *NotificationService) Process(ctx context.Context, signedPayload string) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("Panic while processing App Store notification: %v", r)
			outcome = OutcomeFailed
		}
		metrics.RecordNotification(outcome)
	}()

	decoded, err := s.decoder.DecodeNotification(signedPayload)
	if err != nil {
		logging.Warnf("Failed to decode App Store notification: %v", err)
		return OutcomeUndecodable
	}

	n := decoded.Notification
	log := logging.WithFields(logging.Fields{
		"notification_uuid": n.NotificationUUID,
		"notification_type": n.NotificationType,
		"subtype":           n.Subtype,
	})

	isNew, err := database.RecordNotification(s.db.WithContext(ctx), models.NewInboundNotification(decoded))
	if err != nil {
		log.Errorf("Failed to record notification: %v", err)
		return OutcomeFailed
	}
	if !isNew {
		log.Info("Duplicate notification, already processed")
		return OutcomeDuplicate
	}

	tx := decoded.TransactionInfo
	if tx == nil || tx.Type != models.TransactionTypeAutoRenewable {
		log.Debug("Notification carries no auto-renewable transaction")
		return OutcomeIgnored
	}
	if !ledgerNotificationTypes[n.NotificationType] {
		log.Debug("Notification type does not affect the ledger")
		return OutcomeIgnored
	}

	log = log.WithField("transaction_id", tx.TransactionID)

	// Only purchases made in the app have an owner; anything else is dropped for good.
	owner, err := database.FindOwnerUserID(s.db.WithContext(ctx), tx.TransactionID, tx.OriginalTransactionID)
	if err != nil {
		log.Errorf("Failed to look up transaction owner: %v", err)
		return OutcomeFailed
	}
	if owner == "" {
		log.Info("No user owns this transaction lineage, skipping")
		return OutcomeUnattributable
	}

	stored, err := s.ledger.UpsertTransaction(ctx, owner, decoded.RenewalInfo, tx)
	if err != nil {
		domainErr := AsDomainError(err)
		if domainErr.Kind == KindInternal {
			log.Errorf("Failed to apply notification: %v", err)
			return OutcomeFailed
		}
		log.Warnf("Notification rejected: %v", domainErr)
		return OutcomeRejected
	}

	s.push.Enqueue(NewSubscriptionPushEvent(owner, stored.TransactionID, stored.ProductID, n.NotificationType))
	log.WithField("user_id", owner).Info("Notification applied to ledger")
	return OutcomeApplied
}

