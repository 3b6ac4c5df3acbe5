package database

import (
	"errors"

	"hound-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// recencyOrder is shared by the recompute step and the entitlement read so both
// always agree on which row is the most recent one. Transaction ids are digit strings,
// so shorter ids sort as smaller numbers before the lexical tie-break.
var recencyOrder = []clause.OrderByColumn{
	{Column: clause.Column{Name: "purchase_date"}, Desc: true},
	{Column: clause.Column{Name: "LENGTH(transaction_id)", Raw: true}, Desc: true},
	{Column: clause.Column{Name: "transaction_id"}, Desc: true},
}

// newestFirst orders a query by recencyOrder. It is applied eagerly rather than as a
// scope so the columns precede the primary key ordering First appends.
func newestFirst(db *gorm.DB) *gorm.DB {
	for _, column := range recencyOrder {
		db = db.Order(column)
	}
	return db
}

// UpsertTransaction inserts a ledger row or, when the transaction id already exists,
// refreshes only its renewal and revocation facts. A column is overwritten only when
// the new observation carries a value, so stale observations never clear known facts.
func UpsertTransaction(db *gorm.DB, row *models.Transaction) error {
	keep := func(column string) clause.Expr {
		return gorm.Expr("COALESCE(excluded." + column + ", transactions." + column + ")")
	}

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "transaction_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"auto_renew_product_id": keep("auto_renew_product_id"),
			"auto_renew_status":     keep("auto_renew_status"),
			"revocation_reason":     keep("revocation_reason"),
			"revocation_date":       keep("revocation_date"),
			"updated_at":            gorm.Expr("excluded.updated_at"),
		}),
	}).Create(row).Error
}

// RecomputeAutoRenewing enforces that at most one of a user's transactions is flagged as
// auto renewing: the latest non-revoked one keeps its own status, every other row is
// forced off. The user's rows are locked for the rest of the surrounding transaction.
// Returns the id of the most recent transaction, or "" when every row is revoked.
func RecomputeAutoRenewing(tx *gorm.DB, userID string) (string, error) {
	var ids []string
	if err := tx.Model(&models.Transaction{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Pluck("transaction_id", &ids).Error; err != nil {
		return "", err
	}

	latest, err := GetActiveTransaction(tx, userID)
	if err != nil {
		return "", err
	}

	others := tx.Model(&models.Transaction{}).Where("user_id = ?", userID)
	latestID := ""
	if latest != nil {
		latestID = latest.TransactionID
		others = others.Where("transaction_id <> ?", latestID)
	}

	if err := others.Update("auto_renew_status", false).Error; err != nil {
		return "", err
	}
	return latestID, nil
}

// GetActiveTransaction returns the user's latest non-revoked transaction, nil when none
func GetActiveTransaction(db *gorm.DB, userID string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := newestFirst(db.Where("user_id = ? AND revocation_reason IS NULL", userID)).
		First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// GetTransactionsByUser returns every ledger row of a user, newest purchase first
func GetTransactionsByUser(db *gorm.DB, userID string) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := newestFirst(db.Where("user_id = ?", userID)).
		Find(&transactions).Error
	return transactions, err
}

// GetTransaction returns one ledger row by transaction id
func GetTransaction(db *gorm.DB, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := db.Where("transaction_id = ?", transactionID).First(&transaction).Error; err != nil {
		return nil, err
	}
	return &transaction, nil
}

// FindOwnerUserID resolves which user a transaction lineage has been attributed to.
// Returns "" when neither id has ever been recorded.
func FindOwnerUserID(db *gorm.DB, transactionID, originalTransactionID string) (string, error) {
	var transaction models.Transaction
	err := db.Select("user_id").
		Where("transaction_id = ? OR original_transaction_id = ?", transactionID, originalTransactionID).
		Order("purchase_date DESC").
		First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return transaction.UserID, nil
}
