package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtkorhonen/helen2mqtt/internal/billing"
	"github.com/mtkorhonen/helen2mqtt/internal/entities"
	"github.com/mtkorhonen/helen2mqtt/internal/metrics"
	"github.com/mtkorhonen/helen2mqtt/internal/publisher"
	"github.com/mtkorhonen/helen2mqtt/pkg/models"
)

var (
	publishAccount string
	publishLatest  bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish stored snapshots to Home Assistant",
	Long: `Reads stored snapshots from the database and publishes their sensors
to Home Assistant without polling the Helen API. By default only
snapshots that never made it out are sent; --latest re-sends the newest
snapshot of each account instead, refreshing the discovery configs.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishAccount, "account", "", "Publish only this account (id or username)")
	publishCmd.Flags().BoolVar(&publishLatest, "latest", false, "Re-send the newest snapshot even if already published")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no accounts configured: run 'helen2mqtt setup' first")
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()
	pub.OnPublish = metrics.ObservePublish

	registry := entities.NewRegistry(db)

	totalPublished := 0
	for i, acct := range cfg.Accounts {
		if publishAccount != "" && acct.ID != publishAccount && acct.Username != publishAccount {
			continue
		}

		var snapshots []models.Snapshot
		if publishLatest {
			snap, err := db.LatestSnapshot(acct.ID)
			if err != nil {
				return fmt.Errorf("loading latest snapshot for %s: %w", acct.Title(), err)
			}
			if snap != nil {
				snapshots = []models.Snapshot{*snap}
			}
		} else {
			snapshots, err = db.UnpublishedSnapshots(acct.ID)
			if err != nil {
				return fmt.Errorf("listing unpublished snapshots for %s: %w", acct.Title(), err)
			}
		}

		if len(snapshots) == 0 {
			fmt.Printf("Nothing to publish for %s\n", acct.Title())
			continue
		}

		fmt.Printf("Publishing %d snapshots for %s...\n", len(snapshots), acct.Title())
		for j, snap := range snapshots {
			fmt.Printf("[%d/%d] %s (%.2f kWh, %.2f EUR)... ", j+1, len(snapshots), snap.Month, snap.CurrentMonthConsumption, snap.CurrentMonthCost)

			sensors := billing.Sensors(&snap, acct.IncludeTransferCosts)
			if err := registry.Resolve(sensors, acct.ID, i, acct.DeliverySiteID); err != nil {
				fmt.Printf("FAILED: %v\n", err)
				continue
			}

			dev := publisher.Device{ID: acct.ID, Name: acct.Title()}
			if err := pub.PublishSensors(dev, sensors); err != nil {
				fmt.Printf("FAILED: %v\n", err)
				continue
			}

			if err := db.MarkSnapshotPublished(snap.ID); err != nil {
				fmt.Printf("✓ (warning: failed to mark as published: %v)\n", err)
			} else {
				fmt.Printf("✓\n")
			}
			totalPublished++
		}
	}

	fmt.Printf("\nTotal snapshots published: %d\n", totalPublished)
	return nil
}
