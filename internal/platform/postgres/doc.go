// Package postgres provides the PostgreSQL implementation of the
// read-store interfaces defined in the internal/store package.
package postgres
