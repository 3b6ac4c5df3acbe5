package database

import (
	"path/filepath"
	"testing"

	"hound-api/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedFamily(t *testing.T, db *gorm.DB, familyID, headUserID string, memberUserIDs ...string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Family{FamilyID: familyID, UserID: headUserID}).Error)
	for _, userID := range append([]string{headUserID}, memberUserIDs...) {
		require.NoError(t, db.Create(&models.FamilyMember{FamilyID: familyID, UserID: userID}).Error)
	}
}
