// Package databasetest provides migrated SQLite databases for package tests.
package databasetest

import (
	"path/filepath"
	"testing"

	"hound-api/internal/database"
	"hound-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a migrated SQLite database in a per-test temp directory
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SeedFamily creates a family with the given head and members
func SeedFamily(t testing.TB, db *gorm.DB, familyID, headUserID string, memberUserIDs ...string) {
	t.Helper()

	if err := db.Create(&models.Family{FamilyID: familyID, UserID: headUserID}).Error; err != nil {
		t.Fatalf("failed to seed family: %v", err)
	}
	for _, userID := range append([]string{headUserID}, memberUserIDs...) {
		if err := db.Create(&models.FamilyMember{FamilyID: familyID, UserID: userID}).Error; err != nil {
			t.Fatalf("failed to seed family member: %v", err)
		}
	}
}
