package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "tally.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	seedPath := filepath.Join(t.TempDir(), "units.yml")
	require.NoError(t, os.WriteFile(seedPath, []byte("units: []\n"), 0644))

	configPath := writeConfig(t, `version: "1.0"
instance: north-dock
redis:
  url: redis://cache:6379/2
server:
  listen: "127.0.0.1:9090"
notifications:
  limit: 20
permissions:
  admin_role: supervisor
  actors:
    alice: supervisor
    bob: picker
  lock_roles: [supervisor, lead]
inventory:
  seed: `+seedPath+`
`)
	t.Setenv("TALLY_INSTANCE_NAME", "")
	t.Setenv("REDIS_URL", "")

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "1.0", config.Version)
	assert.Equal(t, "north-dock", config.Instance)
	assert.Equal(t, "redis://cache:6379/2", config.Redis.URL)
	assert.Equal(t, "127.0.0.1:9090", config.Server.Listen)
	assert.Equal(t, 20, config.Notifications.Limit)
	assert.Equal(t, "supervisor", config.Permissions.AdminRole)
	assert.Equal(t, map[string]string{"alice": "supervisor", "bob": "picker"}, config.Permissions.Actors)
	assert.Equal(t, []string{"supervisor", "lead"}, config.Permissions.LockRoles)
	assert.Equal(t, seedPath, config.Inventory.Seed)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TALLY_INSTANCE_NAME", "")
	t.Setenv("REDIS_URL", "")

	config, err := Load(writeConfig(t, "version: \"1.0\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "default", config.Instance)
	assert.Equal(t, "redis://localhost:6379", config.Redis.URL)
	assert.Equal(t, ":8080", config.Server.Listen)
	assert.Equal(t, 50, config.Notifications.Limit)
	assert.Equal(t, "admin", config.Permissions.AdminRole)
	assert.Empty(t, config.Permissions.LockRoles)
	assert.Empty(t, config.Inventory.Seed)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TALLY_INSTANCE_NAME", "south-dock")
	t.Setenv("REDIS_URL", "redis://other:6380")

	config, err := Load(writeConfig(t, `version: "1.0"
instance: north-dock
redis:
  url: redis://cache:6379
`))
	require.NoError(t, err)
	assert.Equal(t, "south-dock", config.Instance)
	assert.Equal(t, "redis://other:6380", config.Redis.URL)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/tally.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	config, err := Load(writeConfig(t, `version: "1.0"
permissions:
  - this is invalid
    yaml syntax
`))
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		config      TallyConfig
		errContains string
	}{
		{
			name:        "unsupported version",
			config:      TallyConfig{Version: "2.0"},
			errContains: "unsupported version: 2.0",
		},
		{
			name:        "missing version",
			config:      TallyConfig{},
			errContains: "unsupported version",
		},
		{
			name:        "instance with separator",
			config:      TallyConfig{Version: "1.0", Instance: "a:b"},
			errContains: "must not contain ':'",
		},
		{
			name:        "negative notification limit",
			config:      TallyConfig{Version: "1.0", Notifications: &NotificationsConfig{Limit: -1}},
			errContains: "notifications.limit must be > 0",
		},
		{
			name: "actor without role",
			config: TallyConfig{Version: "1.0", Permissions: &PermissionsConfig{
				Actors: map[string]string{"alice": ""},
			}},
			errContains: "actor 'alice' has no role",
		},
		{
			name: "empty lock role",
			config: TallyConfig{Version: "1.0", Permissions: &PermissionsConfig{
				LockRoles: []string{"lead", ""},
			}},
			errContains: "lock_roles: role cannot be empty",
		},
		{
			name:        "missing seed file",
			config:      TallyConfig{Version: "1.0", Inventory: &InventoryConfig{Seed: "/nonexistent/units.yml"}},
			errContains: "inventory seed does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("TALLY_INSTANCE_NAME", "")
	t.Setenv("REDIS_URL", "redis://env:6379")

	config := Default()
	assert.Equal(t, "1.0", config.Version)
	assert.Equal(t, "default", config.Instance)
	assert.Equal(t, "redis://env:6379", config.Redis.URL)
	assert.Equal(t, 50, config.Notifications.Limit)
}
