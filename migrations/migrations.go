// migrations содержит SQL-миграции схемы (goose), встроенные в бинарь.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
