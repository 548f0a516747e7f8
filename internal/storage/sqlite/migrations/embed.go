// Package migrations содержит схему хранилища профилей.
package migrations

import "embed"

// FS — встроенные SQL-миграции.
//
//go:embed *.sql
var FS embed.FS
