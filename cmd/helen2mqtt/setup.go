package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mtkorhonen/helen2mqtt/internal/billing"
	"github.com/mtkorhonen/helen2mqtt/internal/config"
	"github.com/mtkorhonen/helen2mqtt/internal/helen"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Add a Helen account interactively",
	Long: `Walks through adding an account: validates the credentials against the
Helen API, lets you pick a delivery site, detects the contract type and
writes the result to the config file.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	username := prompt(reader, "Helen username: ")
	if username == "" {
		return fmt.Errorf("username is required")
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	vat := 25.5
	if s := prompt(reader, "VAT percent [25.5]: "); s != "" {
		vat, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid VAT: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	fmt.Println("Validating credentials...")
	client := helen.NewClient(username, password, helen.WithVAT(vat))
	defer client.Close()

	if err := client.Login(ctx); err != nil {
		var authErr *helen.AuthError
		if errors.As(err, &authErr) {
			return fmt.Errorf("login failed: %w (check username and password)", err)
		}
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Println("✓ Credentials valid")

	sites, err := client.DeliverySites(ctx)
	if err != nil {
		return fmt.Errorf("listing delivery sites: %w", err)
	}

	siteID := ""
	if len(sites) > 1 {
		fmt.Println("Delivery sites:")
		for _, s := range sites {
			fmt.Printf("  %s\n", s)
		}
		siteID = prompt(reader, "Delivery site id (empty for first): ")
	}
	if err := client.SelectDeliverySite(ctx, siteID); err != nil {
		return err
	}

	if cfg.HasAccount(username, siteID) {
		return fmt.Errorf("account %s is already configured for this delivery site", username)
	}

	contractChoice := config.ContractAutomatic
	rawType, err := client.ContractType(ctx)
	if err != nil {
		fmt.Printf("⚠ Could not read the contract type: %v\n", err)
		fmt.Println("  Continuing anyway, the contract will be detected when polling")
	} else if kind, err := billing.Detect(config.ContractAutomatic, rawType); err != nil {
		fmt.Printf("⚠ Contract %q is not recognized\n", rawType)
		choice := prompt(reader, "Contract type (fixed/market/exchange, empty to decide later): ")
		if choice != "" {
			contractChoice = strings.ToLower(choice)
		} else {
			fmt.Println("  Without a contract type only the consumption sensor will publish")
		}
	} else {
		fmt.Printf("✓ Detected %s contract (%s)\n", kind, rawType)
	}

	includeTransfer := false
	if s := prompt(reader, "Track transfer costs? [y/N]: "); strings.EqualFold(s, "y") || strings.EqualFold(s, "yes") {
		includeTransfer = true
	}

	basePrice, err := promptOptionalFloat(reader, "Base price override EUR/month (empty = from contract): ")
	if err != nil {
		return err
	}
	unitPrice, err := promptOptionalFloat(reader, "Unit price override c/kWh (empty = from contract): ")
	if err != nil {
		return err
	}

	acct := config.Account{
		ID:                   uuid.NewString(),
		Username:             username,
		Password:             password,
		VAT:                  vat,
		ContractType:         contractChoice,
		DeliverySiteID:       siteID,
		IncludeTransferCosts: includeTransfer,
		BasePrice:            basePrice,
		UnitPrice:            unitPrice,
	}
	if err := acct.Validate(); err != nil {
		return err
	}

	cfg.Accounts = append(cfg.Accounts, acct)
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("✓ Added %s to %s\n", acct.Title(), getConfigPath())
	fmt.Println("Run 'helen2mqtt fetch' to poll once, or 'helen2mqtt run' to start the daemon")
	return nil
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func promptPassword(label string) (string, error) {
	fmt.Print(label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func promptOptionalFloat(reader *bufio.Reader, label string) (*float64, error) {
	s := prompt(reader, label)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return &v, nil
}
