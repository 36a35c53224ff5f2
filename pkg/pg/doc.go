// Package pg provides the PostgreSQL connection pool for the Postgres-backed
// job storage, plus goose-based schema migrations.
//
// The pool is constructed explicitly via Connect and handed to the storage;
// migrations live in the repository-level migrations/ directory and are
// applied with Migrate at startup.
package pg
