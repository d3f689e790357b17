package migrations

import "embed"

// FS содержит миграции goose для хранилища документов
//
//go:embed *.sql
var FS embed.FS
