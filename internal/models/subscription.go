package models

// SubscriptionItem pairs a decoded transaction with the renewal info known for it.
// RenewalInfo is nil when the App Store reported no status for the transaction.
type SubscriptionItem struct {
	Transaction *JWSTransaction
	RenewalInfo *JWSRenewalInfo
}
