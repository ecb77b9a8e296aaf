package db

import (
	"testing"

	"github.com/diewo77/vtc-exchange/internal/config"
	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true, Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: "sqlite"}}
	require.NoError(t, Migrate(conn, cfg))
	return conn
}

func TestSeedIdempotent(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, Seed(conn))
	require.NoError(t, Seed(conn))

	var perms, roles int64
	conn.Model(&models.Permission{}).Count(&perms)
	conn.Model(&models.Role{}).Where("is_system = ?", true).Count(&roles)
	assert.EqualValues(t, len(permissionCatalog), perms)
	assert.EqualValues(t, 3, roles)
}

func TestSeedKeepsEditedRights(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, Seed(conn))

	var role models.Role
	require.NoError(t, conn.Where("name = ?", models.RoleChauffeur).First(&role).Error)
	role.AccessRights = models.AccessRights{models.ModuleRides: {"read"}}
	require.NoError(t, conn.Save(&role).Error)

	require.NoError(t, Seed(conn))
	var again models.Role
	require.NoError(t, conn.Preload("Permissions").First(&again, role.ID).Error)
	assert.Equal(t, []string{"read"}, again.AccessRights[models.ModuleRides])
	require.Len(t, again.Permissions, 1)
	assert.Equal(t, models.ModuleRides, again.Permissions[0].Module)
}

func TestChauffeurAccessHasNoAdminModules(t *testing.T) {
	rights := ChauffeurAccess()
	assert.False(t, rights.Allows(models.ModuleChauffeurs, "read"))
	assert.False(t, rights.Allows(models.ModuleRBAC, "write"))
	assert.True(t, rights.Allows(models.ModuleRides, "write"))
	assert.True(t, FullAccess().Allows(models.ModuleChauffeurs, "delete"))
}
