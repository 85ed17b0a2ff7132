package repository

import _ "embed"

// Schema is the DDL for every table the onboarding stores use.
//
//go:embed schema.sql
var Schema string
