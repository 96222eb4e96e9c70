// Package store provides SQLite-backed durable storage for sync state and
// the replicated catalog.
//
// # Sync state
//
//   - _previous_all_collections: global watermark history (all mode)
//   - _school_strategies: registered scopes, term NULL for a whole school
//   - _previous_school_collections: whole-school watermark history
//   - _previous_term_collections: term watermark history
//
// Watermarks are append-only history rows; a scope's watermark is the MAX of
// its rows. The sync mode is derived from which tables hold rows, so a
// reader can never observe a mode that disagrees with the data.
//
// # Transactions
//
// Every multi-step operation runs inside Store.WithTx, which commits only if
// the callback succeeds. The catalog tables are written through the same
// transaction (Tx.SQL), so watermark advancement and data changes commit or
// roll back together.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Two drivers are supported, selected at runtime by Backend: mattn/go-sqlite3
// ("sqlite3") and modernc.org/sqlite ("sqlite").
package store
