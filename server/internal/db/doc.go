// Package db opens the Postgres connection pool shared by the hospital
// repository and the history ledger, and applies the embedded schema
// migrations with golang-migrate.
package db
