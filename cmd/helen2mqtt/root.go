package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mtkorhonen/helen2mqtt/internal/config"
	"github.com/mtkorhonen/helen2mqtt/internal/database"
)

var (
	cfgFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "helen2mqtt",
	Short: "Bridge Helen electricity data to Home Assistant",
	Long: `helen2mqtt polls the Helen API for electricity consumption and contract
prices, derives monthly cost estimates per contract type, and publishes
sensor entities to Home Assistant over MQTT discovery or the HTTP API.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./helen2mqtt.db)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "helen2mqtt.db"
}

// loadConfig loads the configuration file. Old single-account configs
// are upgraded in memory; migrate rewrites them on disk.
func loadConfig() (*config.Config, error) {
	cfg, upgraded, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if upgraded {
		fmt.Println("Note: config uses the old single-account layout, run 'helen2mqtt migrate' to rewrite it")
	}
	return cfg, nil
}

// saveConfig saves the configuration file
func saveConfig(cfg *config.Config) error {
	return config.Save(getConfigPath(), cfg)
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}
