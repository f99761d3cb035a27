package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for the configuration file.
const DefaultPath = "tally.yml"

// TallyConfig represents the top-level tally.yml configuration
type TallyConfig struct {
	Version       string               `yaml:"version"`
	Instance      string               `yaml:"instance,omitempty"`
	Redis         *RedisConfig         `yaml:"redis,omitempty"`
	Server        *ServerConfig        `yaml:"server,omitempty"`
	Notifications *NotificationsConfig `yaml:"notifications,omitempty"`
	Permissions   *PermissionsConfig   `yaml:"permissions,omitempty"`
	Inventory     *InventoryConfig     `yaml:"inventory,omitempty"`
}

// RedisConfig locates the persistence store
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ServerConfig specifies the HTTP listener
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// NotificationsConfig bounds each workspace's notification feed
type NotificationsConfig struct {
	Limit int `yaml:"limit"`
}

// PermissionsConfig maps actors to roles
type PermissionsConfig struct {
	AdminRole string            `yaml:"admin_role"`
	Actors    map[string]string `yaml:"actors,omitempty"`    // actor id → role
	LockRoles []string          `yaml:"lock_roles,omitempty"` // Empty: any actor may lock
}

// InventoryConfig points at the inventory seed file
type InventoryConfig struct {
	Seed string `yaml:"seed,omitempty"`
}

const (
	defaultInstance          = "default"
	defaultRedisURL          = "redis://localhost:6379"
	defaultListen            = ":8080"
	defaultNotificationLimit = 50
	defaultAdminRole         = "admin"
)

// Validate performs strict validation on the configuration and fills in defaults
func (c *TallyConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		c.Instance = defaultInstance
	}
	if strings.Contains(c.Instance, ":") {
		return fmt.Errorf("instance name %q must not contain ':'", c.Instance)
	}

	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	if c.Redis.URL == "" {
		c.Redis.URL = defaultRedisURL
	}

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}

	if c.Notifications == nil {
		c.Notifications = &NotificationsConfig{Limit: defaultNotificationLimit}
	}
	if c.Notifications.Limit == 0 {
		c.Notifications.Limit = defaultNotificationLimit
	}
	if c.Notifications.Limit < 0 {
		return fmt.Errorf("notifications.limit must be > 0, got %d", c.Notifications.Limit)
	}

	if c.Permissions == nil {
		c.Permissions = &PermissionsConfig{}
	}
	if err := c.Permissions.Validate(); err != nil {
		return err
	}

	if c.Inventory == nil {
		c.Inventory = &InventoryConfig{}
	}
	if c.Inventory.Seed != "" {
		if _, err := os.Stat(c.Inventory.Seed); os.IsNotExist(err) {
			return fmt.Errorf("inventory seed does not exist: %s", c.Inventory.Seed)
		}
	}

	return nil
}

// Validate checks the role table
func (p *PermissionsConfig) Validate() error {
	if p.AdminRole == "" {
		p.AdminRole = defaultAdminRole
	}
	for actor, role := range p.Actors {
		if actor == "" {
			return fmt.Errorf("permissions.actors: actor id cannot be empty")
		}
		if role == "" {
			return fmt.Errorf("permissions.actors: actor '%s' has no role", actor)
		}
	}
	for _, role := range p.LockRoles {
		if role == "" {
			return fmt.Errorf("permissions.lock_roles: role cannot be empty")
		}
	}
	return nil
}

// ApplyEnv lets TALLY_INSTANCE_NAME and REDIS_URL override the file.
func (c *TallyConfig) ApplyEnv() {
	if v := os.Getenv("TALLY_INSTANCE_NAME"); v != "" {
		c.Instance = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.URL = v
	}
}

// Load reads and validates tally.yml from the specified path
func Load(path string) (*TallyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config TallyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a validated configuration with every default applied, used
// when no config file exists.
func Default() *TallyConfig {
	config := &TallyConfig{Version: "1.0"}
	config.ApplyEnv()
	// Defaults alone always validate.
	_ = config.Validate()
	return config
}
