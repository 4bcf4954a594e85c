package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/sheets?sslmode=disable", migrateURL("postgres://u:p@db:5432/sheets?sslmode=disable"))
	assert.Equal(t, "pgx5://db/sheets", migrateURL("postgresql://db/sheets"))
	assert.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}
