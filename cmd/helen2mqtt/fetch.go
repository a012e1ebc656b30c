package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtkorhonen/helen2mqtt/internal/metrics"
	"github.com/mtkorhonen/helen2mqtt/internal/poller"
	"github.com/mtkorhonen/helen2mqtt/internal/publisher"
)

var fetchAccount string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Poll Helen once and publish the results",
	Long: `Runs a single polling cycle: fetches consumption and contract prices
from the Helen API, derives the monthly cost figures, stores a snapshot
in the local database and publishes the sensors to Home Assistant.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchAccount, "account", "", "Poll only this account (id or username)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

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

	p := poller.New(getConfigPath(), db, pub)
	ctx := context.Background()

	if fetchAccount != "" {
		return p.PollOne(ctx, fetchAccount)
	}
	return p.RunCycle(ctx)
}
