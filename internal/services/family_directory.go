package services

import (
	"context"
	"fmt"

	"hound-api/internal/database"

	"gorm.io/gorm"
)

// FamilyDirectory answers family membership questions owned by the family module
type FamilyDirectory interface {
	// GetFamilyHeadUserID returns "" when the user belongs to no family
	GetFamilyHeadUserID(ctx context.Context, userID string) (string, error)
	IsFamilyMember(ctx context.Context, userID, familyID string) (bool, error)
}

// DatabaseFamilyDirectory reads the families and family_members tables
type DatabaseFamilyDirectory struct {
	db *gorm.DB
}

func NewDatabaseFamilyDirectory(db *gorm.DB) *DatabaseFamilyDirectory {
	return &DatabaseFamilyDirectory{db: db}
}

func (d *DatabaseFamilyDirectory) GetFamilyHeadUserID(ctx context.Context, userID string) (string, error) {
	head, err := database.GetFamilyHeadUserID(d.db.WithContext(ctx), userID)
	if err != nil {
		return "", fmt.Errorf("failed to look up family head: %w", err)
	}
	return head, nil
}

func (d *DatabaseFamilyDirectory) IsFamilyMember(ctx context.Context, userID, familyID string) (bool, error) {
	ok, err := database.IsFamilyMember(d.db.WithContext(ctx), userID, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to check family membership: %w", err)
	}
	return ok, nil
}

// requireFamilyHead fails unless userID is the head of the family they belong to
func requireFamilyHead(ctx context.Context, families FamilyDirectory, userID string) error {
	head, err := families.GetFamilyHeadUserID(ctx, userID)
	if err != nil {
		return err
	}
	if head == "" {
		return NewDomainError(KindNoFamily, "user %s is not in a family", userID)
	}
	if head != userID {
		return NewDomainError(KindNotFamilyHead, "only the family head can manage the family subscription")
	}
	return nil
}
