package database

import (
	"errors"

	"hound-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMissingNotificationUUID is returned when a notification cannot be deduplicated
var ErrMissingNotificationUUID = errors.New("notification uuid is empty")

// RecordNotification stores a notification exactly once per notification UUID.
// isNew is false when the UUID was already recorded; that case is not an error.
func RecordNotification(db *gorm.DB, row *models.InboundNotification) (bool, error) {
	if row.NotificationUUID == "" {
		return false, ErrMissingNotificationUUID
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "notification_uuid"}},
		DoNothing: true,
	}).Create(row)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
