// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"fmt"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/mmdatafocus/hotel_migration/config"
	"github.com/mmdatafocus/hotel_migration/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	dbSeq      atomic.Int64
	unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

// OpenDB returns a migrated in-memory sqlite database with the same plugins as
// the service. One connection is kept so worker-pool tests serialise writes.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := fmt.Sprintf("%s_%d", unsafeName.ReplaceAllString(t.Name(), "_"), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), config.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	config.InstallPlugins(db)
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// MustCreate inserts each value or fails the test.
func MustCreate(t testing.TB, db *gorm.DB, values ...any) {
	t.Helper()
	for _, v := range values {
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("create %T: %v", v, err)
		}
	}
}

func IntPtr(v int) *int { return &v }
