package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/tally/internal/config"
	"github.com/dyluth/tally/internal/engine"
	"github.com/dyluth/tally/internal/inventory"
	"github.com/dyluth/tally/internal/permission"
	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/server"
	"github.com/dyluth/tally/internal/watch"
	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveListen    string
	serveLogEvents bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fulfillment engine and its HTTP API",
	Long: `Run the fulfillment engine behind the JSON-over-HTTP API.

On start the engine restores workspaces, checklists and pending modification
requests from Redis, loads the inventory seed named in tally.yml, and re-marks
units already placed on checklists as reserved.

Stop with Ctrl+C or SIGTERM; in-flight requests are drained before exit.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "HTTP listen address (overrides server.listen)")
	serveCmd.Flags().BoolVar(&serveLogEvents, "log-events", false, "Also write every published event to stderr as JSONL")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Server.Listen = serveListen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	repo, err := loadInventory(cfg)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Options{
		InstanceName:      cfg.Instance,
		Persister:         client,
		Publisher:         client,
		Inventory:         repo,
		Authorizer:        permission.New(cfg.Permissions),
		NotificationLimit: cfg.Notifications.Limit,
	})

	stats, err := eng.Restore(ctx, client)
	if err != nil {
		return printer.Error("restore failed", err.Error(), []string{"Check the Redis instance holds tally data for this instance name"})
	}
	restoreReservations(eng, repo)

	printer.Success("Restored %d workspace(s), %d checklist(s), %d modification request(s) for instance '%s'\n",
		stats.Workspaces, stats.Checklists, stats.Requests, cfg.Instance)
	if stats.Skipped > 0 {
		printer.Warning("Skipped %d orphaned record(s) during restore\n", stats.Skipped)
	}
	printer.Info("Listening on %s\n", cfg.Server.Listen)

	srv := server.New(eng, server.Options{
		InstanceName: cfg.Instance,
		Store:        client,
		Catalog:      repo,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.Server.Listen)
	})
	if serveLogEvents {
		g.Go(func() error {
			return watch.StreamEvents(gctx, client, watch.OutputFormatJSON, nil, os.Stderr)
		})
	}

	if err := g.Wait(); err != nil {
		return printer.Error("server stopped", err.Error(), nil)
	}
	printer.Info("Server stopped\n")
	return nil
}

// loadInventory builds the inventory repository, seeded when tally.yml names a seed file.
func loadInventory(cfg *config.TallyConfig) (*inventory.Repository, error) {
	repo := inventory.NewRepository()
	if cfg.Inventory.Seed == "" {
		return repo, nil
	}

	n, err := repo.LoadSeed(cfg.Inventory.Seed)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid inventory seed",
			err.Error(),
			map[string]string{"seed": cfg.Inventory.Seed},
			[]string{"Fix the seed file or remove inventory.seed from tally.yml"},
		)
	}
	printer.Step("Loaded %d inventory unit(s) from %s\n", n, cfg.Inventory.Seed)
	return repo, nil
}

// restoreReservations re-marks units on the engine's restored checklists as
// reserved. Orphans the engine skipped hold nothing.
func restoreReservations(eng *engine.Engine, repo *inventory.Repository) {
	var checklists []*fulfillment.Checklist
	for _, w := range eng.Workspaces() {
		cls, err := eng.WorkspaceChecklists(w.ID)
		if err != nil {
			continue // closed meanwhile
		}
		checklists = append(checklists, cls...)
	}
	repo.RestoreReservations(checklists)
}
