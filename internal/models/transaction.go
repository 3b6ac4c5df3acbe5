package models

import (
	"time"
)

// Transaction is one row of the purchase ledger, keyed by the App Store transaction id.
// Rows are created on first observation and updated in place; they are never deleted.
type Transaction struct {
	TransactionID         string    `json:"transactionId" gorm:"primaryKey;size:64;column:transaction_id"`
	OriginalTransactionID string    `json:"originalTransactionId" gorm:"size:64;not null;index"`
	UserID                string    `json:"userId" gorm:"size:64;not null;index:idx_transactions_user_purchase,priority:1"`
	CreatedAt             time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt             time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	// Commercial facts
	Environment                 string     `json:"environment" gorm:"size:20;not null"`
	ProductID                   string     `json:"productId" gorm:"size:255;not null"`
	SubscriptionGroupIdentifier string     `json:"subscriptionGroupIdentifier" gorm:"size:64"`
	PurchaseDate                time.Time  `json:"purchaseDate" gorm:"not null;index:idx_transactions_user_purchase,priority:2"`
	ExpiresDate                 *time.Time `json:"expiresDate"`
	Quantity                    int        `json:"quantity" gorm:"not null;default:1"`
	WebOrderLineItemID          string     `json:"webOrderLineItemId" gorm:"size:64"`
	InAppOwnershipType          string     `json:"inAppOwnershipType" gorm:"size:32"`
	OfferIdentifier             *string    `json:"offerIdentifier" gorm:"size:255"`
	OfferType                   *int       `json:"offerType"`
	TransactionReason           *string    `json:"transactionReason" gorm:"size:32"`

	// Entitlement facts, frozen from the product catalog at insert time
	NumberOfFamilyMembers int `json:"numberOfFamilyMembers" gorm:"not null"`
	NumberOfDogs          int `json:"numberOfDogs" gorm:"not null"`

	// Renewal facts, best known so far
	AutoRenewProductID *string `json:"autoRenewProductId" gorm:"size:255"`
	AutoRenewStatus    *bool   `json:"autoRenewStatus"`

	// Terminal facts, set once and never cleared
	RevocationReason *int       `json:"revocationReason"`
	RevocationDate   *time.Time `json:"revocationDate"`
}

// TableName 指定表名
func (Transaction) TableName() string {
	return "transactions"
}

// IsRevoked reports whether a refund or revocation has been observed
func (t *Transaction) IsRevoked() bool {
	return t.RevocationReason != nil
}

// IsAutoRenewing reports whether this row is currently flagged as the renewing one
func (t *Transaction) IsAutoRenewing() bool {
	return t.AutoRenewStatus != nil && *t.AutoRenewStatus
}
