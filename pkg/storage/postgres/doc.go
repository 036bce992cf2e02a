// Package postgres provides the PostgreSQL persistence layer: the
// connection pool, schema migrations, and the entitlement store.
package postgres
