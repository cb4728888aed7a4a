// Package dbtest opens throwaway in-memory databases for package tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/social_platform/pkg/db"
)

// Open returns a private shared-cache sqlite database with models migrated.
// A single connection keeps concurrent writers serialized the way row locks
// would in Postgres.
func Open(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_") + "_" + uuid.NewString()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)

	pool := db.DefaultPool()
	pool.PrepareStmt = false
	pool.MaxOpenConns = 1
	pool.MaxIdleConns = 1

	gdb, err := db.OpenDialector(context.Background(), sqlite.Open(dsn), pool, models...)
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}
