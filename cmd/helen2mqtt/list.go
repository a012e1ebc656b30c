package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mtkorhonen/helen2mqtt/internal/config"
	"github.com/mtkorhonen/helen2mqtt/internal/database"
)

var (
	listAccount  string
	listLimit    int
	listEntities bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots",
	Long: `Displays the monthly snapshots stored in the database, newest first.
With --entities it lists the registered Home Assistant entities instead.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listAccount, "account", "", "Filter by account (id or username)")
	listCmd.Flags().IntVar(&listLimit, "limit", 10, "Snapshots to show per account (0 = all)")
	listCmd.Flags().BoolVar(&listEntities, "entities", false, "List registered entities instead of snapshots")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if listEntities {
		return printEntities(db)
	}

	accounts := cfg.Accounts
	if listAccount != "" {
		acct := cfg.FindAccount(listAccount)
		if acct == nil {
			return fmt.Errorf("no account matching %q in config", listAccount)
		}
		accounts = []config.Account{*acct}
	}

	for _, acct := range accounts {
		snapshots, err := db.ListSnapshots(acct.ID, listLimit)
		if err != nil {
			return fmt.Errorf("listing snapshots for %s: %w", acct.Title(), err)
		}

		if len(snapshots) == 0 {
			fmt.Printf("No snapshots for %s\n", acct.Title())
			continue
		}

		fmt.Printf("\n%s:\n", acct.Title())
		fmt.Println("------------------------------------------------------------------------")
		fmt.Printf("%-8s  %-10s  %10s  %10s  %-18s\n", "Month", "Contract", "kWh", "EUR", "Fetched")
		fmt.Println("------------------------------------------------------------------------")

		for _, snap := range snapshots {
			contract := snap.ContractType
			if contract == "" {
				contract = "-"
			}
			fmt.Printf("%-8s  %-10s  %10.2f  %10.2f  %-18s\n",
				snap.Month, contract, snap.CurrentMonthConsumption, snap.CurrentMonthCost,
				humanize.Time(snap.FetchedAt))
		}

		fmt.Println("------------------------------------------------------------------------")
	}

	return nil
}

func printEntities(db *database.DB) error {
	entities, err := db.ListEntities()
	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}

	if len(entities) == 0 {
		fmt.Println("No entities registered yet")
		return nil
	}

	fmt.Println("--------------------------------------------------------------------------------")
	fmt.Printf("%-40s  %-36s\n", "Entity", "Unique ID")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, e := range entities {
		fmt.Printf("%-40s  %-36s\n", "sensor."+e.ObjectID, e.UniqueID)
	}
	fmt.Println("--------------------------------------------------------------------------------")
	fmt.Printf("%d entities\n", len(entities))

	return nil
}
