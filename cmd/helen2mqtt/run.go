package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtkorhonen/helen2mqtt/internal/metrics"
	"github.com/mtkorhonen/helen2mqtt/internal/poller"
	"github.com/mtkorhonen/helen2mqtt/internal/publisher"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the polling daemon",
	Long: `Polls the Helen API on the configured schedule and keeps publishing
sensor updates to Home Assistant until interrupted.

The poll_interval config value accepts a duration like "3h" or a cron
expression like "0 */3 * * *". Config edits are picked up between
cycles without a restart. When metrics_listen is set, Prometheus
metrics are exposed on that address.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== helen2mqtt started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

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

	if cfg.MetricsListen != "" {
		go func() {
			fmt.Printf("Metrics listening on %s\n", cfg.MetricsListen)
			if err := metrics.Serve(cfg.MetricsListen); err != nil {
				fmt.Printf("⚠ Metrics server: %v\n", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := poller.New(getConfigPath(), db, pub)
	fmt.Printf("Polling %d accounts every %s\n", len(cfg.Accounts), cfg.GetPollInterval())

	if err := p.Run(ctx); err != nil {
		return err
	}

	fmt.Println("Shutting down")
	return nil
}
