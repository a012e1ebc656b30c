package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtkorhonen/helen2mqtt/internal/helen"
)

var sitesCmd = &cobra.Command{
	Use:   "sites [account]",
	Short: "List the delivery sites of an account",
	Long: `Logs in with an account's credentials and lists its electricity
delivery sites, marking the one the config selects. Use the ids shown
here for delivery_site_id.

With a single configured account the argument can be left out.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSites,
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}

func runSites(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no accounts configured: run 'helen2mqtt setup' first")
	}

	acct := &cfg.Accounts[0]
	if len(args) == 1 {
		acct = cfg.FindAccount(args[0])
		if acct == nil {
			return fmt.Errorf("no account matching %q in config", args[0])
		}
	} else if len(cfg.Accounts) > 1 {
		return fmt.Errorf("multiple accounts configured, pass an account id or username")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	opts := []helen.Option{helen.WithVAT(acct.GetVAT())}
	if acct.AccessToken != "" {
		opts = append(opts, helen.WithSession(acct.AccessToken, acct.Cookies))
	}
	client := helen.NewClient(acct.Username, acct.Password, opts...)
	defer client.Close()

	contracts, err := client.Contracts(ctx)
	if err != nil {
		return fmt.Errorf("listing contracts: %w", err)
	}
	if len(contracts) == 0 {
		fmt.Printf("No delivery sites found for %s\n", acct.Username)
		return nil
	}

	fmt.Printf("Delivery sites for %s:\n", acct.Username)
	fmt.Println("--------------------------------------------------------------")
	fmt.Printf("%-12s  %-30s  %s\n", "Site", "Address", "Contract")
	fmt.Println("--------------------------------------------------------------")
	for _, c := range contracts {
		marker := " "
		if acct.DeliverySiteID == c.DeliverySite.ID.String() {
			marker = "*"
		}
		fmt.Printf("%s %-12s  %-30s  %s\n", marker, c.DeliverySite.ID.String(), c.DeliverySite.Address, contractName(c))
	}
	fmt.Println("--------------------------------------------------------------")
	if acct.DeliverySiteID == "" {
		fmt.Println("No delivery_site_id configured, the first site is used")
	}

	return nil
}

func contractName(c helen.Contract) string {
	if len(c.Products) == 0 {
		return "-"
	}
	return c.Products[0].Name
}
