// Package db provides the embedded schema for the catalog read model.
package db

import _ "embed"

// Schema contains the DDL for every table the engine reads.
//
//go:embed migrations/001_schema.sql
var Schema string
