// Package db embeds the database schema and the default product catalog so
// binaries can run migrations and seed data without external files.
package db

import _ "embed"

// Schema holds the DDL for the cart, catalog and api_keys tables. It is
// executed as a single batch by the migration runner on startup.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedProducts is the default catalog used by seed-db when no products file
// is supplied on the command line.
//
//go:embed seed/products.json
var SeedProducts []byte
