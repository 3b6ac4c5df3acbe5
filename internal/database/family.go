package database

import (
	"errors"

	"hound-api/internal/models"

	"gorm.io/gorm"
)

// GetFamilyHeadUserID returns the head of the family the user belongs to.
// Returns "" when the user is in no family.
func GetFamilyHeadUserID(db *gorm.DB, userID string) (string, error) {
	var family models.Family
	err := db.Table("families").
		Select("families.user_id").
		Joins("JOIN family_members ON family_members.family_id = families.family_id").
		Where("family_members.user_id = ?", userID).
		Take(&family).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return family.UserID, nil
}

// IsFamilyMember reports whether the user belongs to the given family
func IsFamilyMember(db *gorm.DB, userID, familyID string) (bool, error) {
	var count int64
	err := db.Model(&models.FamilyMember{}).
		Where("user_id = ? AND family_id = ?", userID, familyID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
