// Package db provides the embedded database schema and demo seed data.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// Catalogue is the demo catalogue loaded by seed-db when no file is given.
//
//go:embed seed/catalogue.json
var Catalogue []byte
