// Package store provides Postgres-backed repositories for the entities in
// internal/domain, following the hand-written-SQL-over-pgx idiom the rest of
// this codebase uses (no ORM, no generated query layer).
//
// Unlike the teacher's multi-tenant, schema-per-tenant design (SET
// search_path per request), this service has a single schema: Facility is a
// physical site, not a SaaS tenant boundary, so there is nothing to switch
// per request.
package store

import "github.com/jackc/pgx/v5/pgxpool"

// Pool is the shared dependency every repository in this package takes.
type Pool = pgxpool.Pool
