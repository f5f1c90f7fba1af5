package db

import (
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp-system/erp/migrations"
)

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("up")
	require.NoError(t, err)
	assert.Equal(t, Up, d)

	d, err = ParseDirection("down")
	require.NoError(t, err)
	assert.Equal(t, Down, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://erp:erp@db:5432/erp?sslmode=disable", migrateURL("postgres://erp:erp@db:5432/erp?sslmode=disable"))
	assert.Equal(t, "pgx5://db/erp", migrateURL("postgresql://db/erp"))
	assert.Equal(t, "pgx5://db/erp", migrateURL("pgx5://db/erp"))
}

var migrationName = regexp.MustCompile(`^(\d{6})_[a-z_]+\.(up|down)\.sql$`)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	require.NoError(t, err)

	pairs := map[string][]string{}
	for _, e := range entries {
		m := migrationName.FindStringSubmatch(e.Name())
		require.NotNil(t, m, "unexpected file %s", e.Name())
		pairs[m[1]] = append(pairs[m[1]], m[2])
	}
	require.NotEmpty(t, pairs)
	for version, dirs := range pairs {
		sort.Strings(dirs)
		assert.Equal(t, []string{"down", "up"}, dirs, version)
	}
}

func TestSeedGrantsEveryPermissionToAdmin(t *testing.T) {
	body, err := fs.ReadFile(migrations.FS, "000001_identity.up.sql")
	require.NoError(t, err)
	for _, p := range []string{
		"dashboard.view", "users.manage", "roles.manage", "companies.manage",
		"settings.view", "settings.edit", "profile.edit",
		"betonara.view", "betonara.manage", "betonara.export",
	} {
		assert.True(t, strings.Contains(string(body), "('"+p+"')"), p)
	}
}

func TestTotalsViewHasUniqueIndex(t *testing.T) {
	body, err := fs.ReadFile(migrations.FS, "000002_betonara.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE UNIQUE INDEX IF NOT EXISTS betonara_daily_totals_key")
}

func TestTotalsViewCarriesConcreteClass(t *testing.T) {
	body, err := fs.ReadFile(migrations.FS, "000003_betonara_class_totals.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "GROUP BY produced_on, company_id, plant, concrete_class")
	assert.Contains(t, string(body), "betonara_daily_totals (day, company_id, plant, concrete_class)")
}
