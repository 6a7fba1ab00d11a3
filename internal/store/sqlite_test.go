// ABOUTME: Tests for SQLite store initialisation
// ABOUTME: Covers file creation, nested directories, in-memory mode and the audit schema

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		t.Error("database directory was not created")
	}
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.AppendAuditLog(ctx, &AuditEntry{
		Actor: "admin", Action: AuditRegister, TargetType: "user", TargetID: "admin",
	}))

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewSQLiteStore_SchemaHasRemoteAddr(t *testing.T) {
	store := setupTestStore(t)

	var n int
	err := store.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('audit_log') WHERE name = 'remote_addr'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewSQLiteStore_ReopenKeepsEntries(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, first.AppendAuditLog(ctx, &AuditEntry{
		Actor: "admin", Action: AuditImagePull, TargetType: "image", TargetID: "local/alpine", RemoteAddr: "10.0.0.1:5000",
	}))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	defer second.Close()

	entries, err := second.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "10.0.0.1:5000", entries[0].RemoteAddr)
}
