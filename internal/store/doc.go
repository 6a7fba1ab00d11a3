// Package store persists the gateway's audit log in SQLite.
//
// Every login attempt, bootstrap registration and mutating runtime action is
// recorded as an AuditEntry. Entries are append-only and listed newest first.
//
// The database runs in WAL mode:
//
//	PRAGMA journal_mode=WAL;
//
// Use NewSQLiteStore(":memory:") in tests; the connection pool is pinned to a
// single connection in that case so every query sees the same database.
package store
