package models

import (
	"time"

	"gorm.io/datatypes"
)

// App Store constants used by the ledger
const (
	TransactionTypeAutoRenewable = "Auto-Renewable Subscription"
	OwnershipTypePurchased       = "PURCHASED"
)

// AppStoreNotificationWrapper represents the outer wrapper of App Store Server Notification V2
// Apple sends notifications as a JWS in the signedPayload field
type AppStoreNotificationWrapper struct {
	SignedPayload string `json:"signedPayload"`
}

// AppStoreNotification represents the decoded signedPayload of a V2 notification
type AppStoreNotification struct {
	NotificationType string            `json:"notificationType"`
	Subtype          string            `json:"subtype,omitempty"`
	NotificationUUID string            `json:"notificationUUID"`
	Version          string            `json:"version"`
	SignedDate       int64             `json:"signedDate"`
	Data             *NotificationData `json:"data,omitempty"`
}

// NotificationData contains the app identity and the signed transaction/renewal snapshots
type NotificationData struct {
	AppAppleID            int64  `json:"appAppleId"`
	BundleID              string `json:"bundleId"`
	BundleVersion         string `json:"bundleVersion"`
	Environment           string `json:"environment"`
	SignedTransactionInfo string `json:"signedTransactionInfo"`
	SignedRenewalInfo     string `json:"signedRenewalInfo"`
	Status                *int   `json:"status,omitempty"`
}

// JWSTransaction is the decoded payload of a signed transaction
// Dates are milliseconds since the Unix epoch.
type JWSTransaction struct {
	TransactionID               string  `json:"transactionId"`
	OriginalTransactionID       string  `json:"originalTransactionId"`
	WebOrderLineItemID          string  `json:"webOrderLineItemId"`
	BundleID                    string  `json:"bundleId"`
	ProductID                   string  `json:"productId"`
	SubscriptionGroupIdentifier string  `json:"subscriptionGroupIdentifier"`
	PurchaseDate                int64   `json:"purchaseDate"`
	OriginalPurchaseDate        int64   `json:"originalPurchaseDate"`
	ExpiresDate                 *int64  `json:"expiresDate,omitempty"`
	Quantity                    int     `json:"quantity"`
	Type                        string  `json:"type"`
	AppAccountToken             string  `json:"appAccountToken,omitempty"`
	InAppOwnershipType          string  `json:"inAppOwnershipType"`
	SignedDate                  int64   `json:"signedDate"`
	RevocationReason            *int    `json:"revocationReason,omitempty"`
	RevocationDate              *int64  `json:"revocationDate,omitempty"`
	IsUpgraded                  bool    `json:"isUpgraded,omitempty"`
	OfferType                   *int    `json:"offerType,omitempty"`
	OfferIdentifier             *string `json:"offerIdentifier,omitempty"`
	Environment                 string  `json:"environment"`
	Storefront                  string  `json:"storefront,omitempty"`
	StorefrontID                string  `json:"storefrontId,omitempty"`
	TransactionReason           *string `json:"transactionReason,omitempty"`
	Currency                    string  `json:"currency,omitempty"`
	Price                       *int64  `json:"price,omitempty"`
}

// JWSRenewalInfo is the decoded payload of signed renewal info
type JWSRenewalInfo struct {
	OriginalTransactionID       string  `json:"originalTransactionId"`
	AutoRenewProductID          *string `json:"autoRenewProductId,omitempty"`
	ProductID                   string  `json:"productId"`
	AutoRenewStatus             *int    `json:"autoRenewStatus,omitempty"`
	ExpirationIntent            *int    `json:"expirationIntent,omitempty"`
	GracePeriodExpiresDate      *int64  `json:"gracePeriodExpiresDate,omitempty"`
	IsInBillingRetryPeriod      *bool   `json:"isInBillingRetryPeriod,omitempty"`
	OfferIdentifier             *string `json:"offerIdentifier,omitempty"`
	OfferType                   *int    `json:"offerType,omitempty"`
	PriceIncreaseStatus         *int    `json:"priceIncreaseStatus,omitempty"`
	SignedDate                  int64   `json:"signedDate"`
	Environment                 string  `json:"environment"`
	RecentSubscriptionStartDate *int64  `json:"recentSubscriptionStartDate,omitempty"`
	RenewalDate                 *int64  `json:"renewalDate,omitempty"`
}

// DecodedNotification bundles a verified notification with its decoded snapshots.
// RenewalInfo and TransactionInfo are nil when the notification carried none.
type DecodedNotification struct {
	Notification    AppStoreNotification
	RenewalInfo     *JWSRenewalInfo
	TransactionInfo *JWSTransaction
	Raw             []byte
}

// InboundNotification is the append-only audit and idempotency record of a
// received notification. One row per NotificationUUID; never updated.
type InboundNotification struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	NotificationUUID string    `json:"notificationUUID" gorm:"size:64;not null;uniqueIndex"`
	CreatedAt        time.Time `json:"createdAt" gorm:"autoCreateTime"`

	NotificationType string    `json:"notificationType" gorm:"size:64;not null"`
	Subtype          string    `json:"subtype" gorm:"size:64"`
	Version          string    `json:"version" gorm:"size:16"`
	SignedDate       time.Time `json:"signedDate"`
	AppAppleID       int64     `json:"appAppleId"`
	BundleID         string    `json:"bundleId" gorm:"size:255"`
	BundleVersion    string    `json:"bundleVersion" gorm:"size:64"`
	Environment      string    `json:"environment" gorm:"size:20"`
	Status           *int      `json:"status"`

	// Renewal snapshot
	AutoRenewProductID *string    `json:"autoRenewProductId" gorm:"size:255"`
	AutoRenewStatus    *int       `json:"autoRenewStatus"`
	ExpirationIntent   *int       `json:"expirationIntent"`
	RenewalDate        *time.Time `json:"renewalDate"`

	// Transaction snapshot
	TransactionID         string     `json:"transactionId" gorm:"size:64;index"`
	OriginalTransactionID string     `json:"originalTransactionId" gorm:"size:64"`
	ProductID             string     `json:"productId" gorm:"size:255"`
	TransactionType       string     `json:"transactionType" gorm:"size:64"`
	InAppOwnershipType    string     `json:"inAppOwnershipType" gorm:"size:32"`
	PurchaseDate          *time.Time `json:"purchaseDate"`
	ExpiresDate           *time.Time `json:"expiresDate"`
	RevocationReason      *int       `json:"revocationReason"`

	RawPayload datatypes.JSON `json:"rawPayload"`
}

func (InboundNotification) TableName() string {
	return "app_store_server_notifications"
}

// MillisToTime converts an App Store millisecond timestamp to UTC
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// MillisToTimePtr converts an optional millisecond timestamp
func MillisToTimePtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := MillisToTime(*ms)
	return &t
}

// NewInboundNotification snapshots a decoded notification for the audit log
func NewInboundNotification(decoded *DecodedNotification) *InboundNotification {
	n := decoded.Notification
	row := &InboundNotification{
		NotificationUUID: n.NotificationUUID,
		NotificationType: n.NotificationType,
		Subtype:          n.Subtype,
		Version:          n.Version,
		SignedDate:       MillisToTime(n.SignedDate),
		RawPayload:       datatypes.JSON(decoded.Raw),
	}
	if len(decoded.Raw) == 0 {
		row.RawPayload = datatypes.JSON("{}")
	}

	if n.Data != nil {
		row.AppAppleID = n.Data.AppAppleID
		row.BundleID = n.Data.BundleID
		row.BundleVersion = n.Data.BundleVersion
		row.Environment = n.Data.Environment
		row.Status = n.Data.Status
	}

	if r := decoded.RenewalInfo; r != nil {
		row.AutoRenewProductID = r.AutoRenewProductID
		row.AutoRenewStatus = r.AutoRenewStatus
		row.ExpirationIntent = r.ExpirationIntent
		row.RenewalDate = MillisToTimePtr(r.RenewalDate)
	}

	if t := decoded.TransactionInfo; t != nil {
		row.TransactionID = t.TransactionID
		row.OriginalTransactionID = t.OriginalTransactionID
		row.ProductID = t.ProductID
		row.TransactionType = t.Type
		row.InAppOwnershipType = t.InAppOwnershipType
		purchase := MillisToTime(t.PurchaseDate)
		row.PurchaseDate = &purchase
		row.ExpiresDate = MillisToTimePtr(t.ExpiresDate)
		row.RevocationReason = t.RevocationReason
	}

	return row
}
