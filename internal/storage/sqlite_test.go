package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T, ttl time.Duration) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(context.Background(), db, ttl)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t, 0)

	if _, found, err := store.Load(ctx, "missing"); err != nil || found {
		t.Fatalf("load missing = %v, %v", found, err)
	}

	if err := store.Save(ctx, "k", []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, "k", []byte(`{"a":2}`)); err != nil {
		t.Fatal(err)
	}
	val, found, err := store.Load(ctx, "k")
	if err != nil || !found || string(val) != `{"a":2}` {
		t.Fatalf("load = %s, %v, %v", val, found, err)
	}

	if err := store.Clear(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.Load(ctx, "k"); found {
		t.Error("record survived clear")
	}
	if err := store.Clear(ctx, "k"); err != nil {
		t.Errorf("clearing a missing key: %v", err)
	}
}

func TestSQLiteStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t, time.Hour)

	now := time.Now()
	store.now = func() time.Time { return now }
	if err := store.Save(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.Load(ctx, "k"); !found {
		t.Fatal("fresh record not found")
	}

	store.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, found, err := store.Load(ctx, "k"); found || err != nil {
		t.Errorf("expired load = %v, %v", found, err)
	}
}

func TestSQLiteStorePurge(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t, time.Hour)
	now := time.Now()
	store.now = func() time.Time { return now }

	_ = store.Save(ctx, "old", []byte("1"))
	now = now.Add(30 * time.Minute)
	_ = store.Save(ctx, "fresh", []byte("2"))
	now = now.Add(45 * time.Minute)

	n, err := store.Purge(ctx)
	if err != nil || n != 1 {
		t.Fatalf("purge = %d, %v", n, err)
	}
	if _, found, _ := store.Load(ctx, "fresh"); !found {
		t.Error("unexpired record purged")
	}
}
