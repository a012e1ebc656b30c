package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mtkorhonen/helen2mqtt/internal/config"
	"github.com/mtkorhonen/helen2mqtt/internal/entities"
	"github.com/mtkorhonen/helen2mqtt/internal/metrics"
	"github.com/mtkorhonen/helen2mqtt/internal/publisher"
)

var migratePrune bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade the config and adopt legacy entities",
	Long: `Rewrites an old single-account config to the current multi-account
layout and re-keys entity registrations left behind by earlier account
identities, so Home Assistant entity ids and their recorded history
carry over.

With --prune, registrations whose account no longer exists are removed
and their MQTT discovery configs cleared.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migratePrune, "prune", false, "Remove entities of deleted accounts")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, upgraded, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if upgraded {
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("saving upgraded config: %w", err)
		}
		fmt.Printf("✓ Upgraded config to the multi-account layout (schema v%d)\n", config.SchemaVersion)
	} else {
		fmt.Println("Config is already on the current layout")
	}

	if len(cfg.Accounts) == 0 {
		fmt.Println("No accounts configured, nothing to adopt")
		return nil
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	registry := entities.NewRegistry(db)

	active := make([]string, len(cfg.Accounts))
	for i, a := range cfg.Accounts {
		active[i] = a.ID
	}

	adopted, err := registry.AdoptLegacy(cfg.Accounts[0].ID, active)
	if err != nil {
		return fmt.Errorf("adopting legacy entities: %w", err)
	}
	if adopted > 0 {
		fmt.Printf("✓ Adopted %d legacy entities for %s\n", adopted, cfg.Accounts[0].Title())
	} else {
		fmt.Println("No legacy entities to adopt")
	}

	if !migratePrune {
		return nil
	}

	removed, err := registry.PruneOrphans(active)
	if err != nil {
		return fmt.Errorf("pruning orphaned entities: %w", err)
	}
	if len(removed) == 0 {
		fmt.Println("No orphaned entities to prune")
		return nil
	}

	fmt.Printf("✓ Removed %d orphaned entities\n", len(removed))

	// Clear the retained discovery configs so Home Assistant drops them
	if cfg.MQTT.Enabled {
		pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant)
		if err != nil {
			return fmt.Errorf("creating publisher: %w", err)
		}
		defer pub.Close()
		pub.OnPublish = metrics.ObservePublish

		objectIDs := make([]string, len(removed))
		for i, e := range removed {
			objectIDs[i] = e.ObjectID
		}
		if err := pub.ClearDiscovery(objectIDs); err != nil {
			return fmt.Errorf("clearing discovery configs: %w", err)
		}
		fmt.Printf("✓ Cleared %d discovery configs\n", len(objectIDs))
	}

	return nil
}
