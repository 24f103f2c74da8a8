//go:build integration

package migrator_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/archon-research/stl-listing/db/migrator"
	"github.com/archon-research/stl-listing/internal/testutil"
)

func TestApplyAll_AppliesOnceAndVerifies(t *testing.T) {
	ctx := context.Background()
	dsn, cleanup := testutil.StartPostgres(t)
	defer cleanup()
	pool := testutil.ConnectPool(t, dsn)
	defer pool.Close()

	m := migrator.NewWithLogger(pool, testutil.MigrationsDir(), testutil.DiscardLogger())

	ran, err := m.ApplyAll(ctx)
	if err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}
	if len(ran) == 0 || ran[0] != "001_listing_submissions.sql" {
		t.Fatalf("expected the submissions migration to run, got %v", ran)
	}

	ran, err = m.ApplyAll(ctx)
	if err != nil {
		t.Fatalf("second ApplyAll failed: %v", err)
	}
	if len(ran) != 0 {
		t.Errorf("expected nothing to run twice, got %v", ran)
	}

	applied, err := m.ListApplied(ctx)
	if err != nil {
		t.Fatalf("ListApplied failed: %v", err)
	}
	if len(applied) == 0 {
		t.Error("expected applied migrations to be listed")
	}

	var exists bool
	if err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'listing_submission')`,
	).Scan(&exists); err != nil || !exists {
		t.Errorf("expected listing_submission table, exists=%v err=%v", exists, err)
	}
}

func TestApplyAll_DetectsModifiedMigration(t *testing.T) {
	ctx := context.Background()
	dsn, cleanup := testutil.StartPostgres(t)
	defer cleanup()
	pool := testutil.ConnectPool(t, dsn)
	defer pool.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "001_test.sql")
	if err := os.WriteFile(path, []byte("CREATE TABLE t (id INT);"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := migrator.NewWithLogger(pool, dir, testutil.DiscardLogger())
	if _, err := m.ApplyAll(ctx); err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("CREATE TABLE t (id BIGINT);"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := m.ApplyAll(ctx)
	if err == nil || !strings.Contains(err.Error(), "has been modified") {
		t.Errorf("expected modified migration error, got %v", err)
	}
}
