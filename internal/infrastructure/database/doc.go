// Package database manages the SQLite connection backing the pairing store.
//
// It opens the database with the pragmas VRLink relies on (WAL, busy
// timeout, foreign keys), applies embedded schema migrations, and exposes
// health checks for startup verification.
package database
