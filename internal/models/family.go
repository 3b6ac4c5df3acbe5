package models

import "time"

// Family is owned by the family CRUD surface; this service only reads it.
// UserID is the family head, the only member allowed to hold the subscription.
type Family struct {
	FamilyID  string    `json:"familyId" gorm:"primaryKey;size:64"`
	UserID    string    `json:"userId" gorm:"size:64;not null;uniqueIndex"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

func (Family) TableName() string {
	return "families"
}

// FamilyMember links a user to the family they belong to (head included)
type FamilyMember struct {
	FamilyID  string    `json:"familyId" gorm:"primaryKey;size:64;index"`
	UserID    string    `json:"userId" gorm:"primaryKey;size:64;uniqueIndex"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

func (FamilyMember) TableName() string {
	return "family_members"
}
