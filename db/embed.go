// Package db provides the embedded PostgreSQL schema.
package db

import _ "embed"

// Schema contains the DDL statements for the order slot table.
//
//go:embed migrations/001_schema.sql
var Schema string
