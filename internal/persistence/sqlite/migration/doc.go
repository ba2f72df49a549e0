// Package migration owns the SQLite schema of the trip planning store. It
// opens configured connections and applies versioned, embedded migrations in
// order, tracking applied versions in a schema_migrations table so startup is
// idempotent.
package migration
