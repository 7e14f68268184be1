package postgres

import (
	"embed"

	"github.com/G-Research/phonehome/internal/common/database"
)

//go:embed migrations/*.sql
var fs embed.FS

func Migrations() ([]database.Migration, error) {
	return database.ReadMigrations(fs, "migrations")
}
