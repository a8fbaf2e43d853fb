// Package store provides persistent storage for intake-bot using SQLite.
//
// # Architecture
//
// A single Store interface covers the two concerns of the bot:
//
//   - Conversations: one mutable row per user holding the dialogue state,
//     the collected answers and the menu debounce timestamp
//   - Leads: an append-only ledger of completed intake submissions
//
// SQLiteStore is the production implementation; MockStore is an in-memory
// stand-in for tests that can also inject failures per operation.
//
// # Schema
//
// The base tables match the layout written by earlier deployments of the
// bot (integer millisecond timestamps, the data map as JSON text). Columns
// added later (branch, last_menu_at, lead_uid) are applied by idempotent
// migrations at startup, so an old database file opens without manual steps.
//
// # Errors
//
// Every failure of the persistence layer is returned as a *StorageError
// naming the operation. A missing conversation is not an error: reads
// return a fresh record in the initial state.
package store
