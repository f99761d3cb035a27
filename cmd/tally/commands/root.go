package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dyluth/tally/internal/config"
	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath   string
	instanceName string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Tally - warehouse fulfillment checklists and scan reconciliation",
	Long: `Tally tracks the checklists that warehouse staff assemble for a customer
shipment, locks them for physical verification, and reconciles barcode scans
against them until every unit is accounted for.

State lives in Redis; every change is published as an event that
'tally watch' can follow.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to tally.yml")
	rootCmd.PersistentFlags().StringVarP(&instanceName, "name", "n", "", "Instance name (overrides tally.yml and TALLY_INSTANCE_NAME)")
}

// loadConfig reads --config. A missing default tally.yml falls back to the
// built-in defaults; a missing file named explicitly is an error.
func loadConfig(cmd *cobra.Command) (*config.TallyConfig, error) {
	var cfg *config.TallyConfig
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, printer.Error(
				"invalid configuration",
				err.Error(),
				[]string{"Create a starter configuration:\n  tally init"},
			)
		}
		cfg = loaded
	}

	if instanceName != "" {
		cfg.Instance = instanceName
	}
	return cfg, nil
}

// connectStore opens and pings the Redis store for the configured instance.
func connectStore(ctx context.Context, cfg *config.TallyConfig) (*store.Client, error) {
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, printer.Error(
			"invalid Redis URL",
			fmt.Sprintf("Could not parse %q: %v", cfg.Redis.URL, err),
			[]string{"Set redis.url in tally.yml or the REDIS_URL environment variable"},
		)
	}

	client, err := store.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create store client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", cfg.Redis.URL),
			map[string]string{"instance": cfg.Instance, "error": err.Error()},
			[]string{"Check that Redis is running and reachable", "Override the address with REDIS_URL"},
		)
	}
	return client, nil
}
