// Package db embeds the checkout database schema.
package db

import _ "embed"

// Schema creates the products, coupons, grants, api keys, orders and
// redemption tables. Every statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
