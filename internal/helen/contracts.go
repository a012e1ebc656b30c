package helen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Contract is one electricity contract on the account
type Contract struct {
	ID           int64        `json:"id"`
	DeliverySite DeliverySite `json:"delivery_site"`
	Products     []Product    `json:"products"`
}

// DeliverySite is the metering point a contract delivers to
type DeliverySite struct {
	ID      json.Number `json:"id"`
	Address string      `json:"address,omitempty"`
}

// Product is a named tariff product with its price components
type Product struct {
	Name       string           `json:"name"`
	Components []PriceComponent `json:"components"`
}

// PriceComponent is one priced part of a product, e.g. the monthly base
// fee ("Perusmaksu", eur/kk) or the energy price ("Energia", c/kWh).
type PriceComponent struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Unit  string  `json:"unit"`
}

// fetchContracts loads and caches the account's contract list
func (c *Client) fetchContracts(ctx context.Context) ([]Contract, error) {
	if c.contracts != nil {
		return c.contracts, nil
	}

	var contracts []Contract
	url := fmt.Sprintf("%s/contract/list", c.apiBaseURL)
	if err := c.getJSON(ctx, "contracts", url, &contracts); err != nil {
		return nil, fmt.Errorf("fetching contracts: %w", err)
	}

	c.contracts = contracts
	return contracts, nil
}

// Contracts returns the account's electricity contracts
func (c *Client) Contracts(ctx context.Context) ([]Contract, error) {
	return c.fetchContracts(ctx)
}

// DeliverySites returns the delivery site ids available on the account
func (c *Client) DeliverySites(ctx context.Context) ([]string, error) {
	contracts, err := c.fetchContracts(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var sites []string
	for _, contract := range contracts {
		id := contract.DeliverySite.ID.String()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		sites = append(sites, id)
	}
	return sites, nil
}

// SelectDeliverySite picks the delivery site later calls fetch data for.
// An empty id selects the account's first site. An id the account does not
// have returns *InvalidSiteError listing the valid alternatives.
func (c *Client) SelectDeliverySite(ctx context.Context, siteID string) error {
	sites, err := c.DeliverySites(ctx)
	if err != nil {
		return err
	}

	if siteID == "" {
		if len(sites) > 0 {
			c.siteID = sites[0]
		}
		return nil
	}

	for _, id := range sites {
		if id == siteID {
			c.siteID = siteID
			return nil
		}
	}
	return &InvalidSiteError{Requested: siteID, Valid: sites}
}

// selectedContract returns the contract for the selected delivery site,
// falling back to the first contract when no site is selected.
func (c *Client) selectedContract(ctx context.Context) (*Contract, error) {
	contracts, err := c.fetchContracts(ctx)
	if err != nil {
		return nil, err
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("account has no electricity contracts")
	}

	if c.siteID == "" {
		return &contracts[0], nil
	}
	for i := range contracts {
		if contracts[i].DeliverySite.ID.String() == c.siteID {
			return &contracts[i], nil
		}
	}
	return nil, &InvalidSiteError{Requested: c.siteID, Valid: siteIDs(contracts)}
}

func siteIDs(contracts []Contract) []string {
	var ids []string
	for _, contract := range contracts {
		if id := contract.DeliverySite.ID.String(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ContractType returns the raw product name of the contract, e.g.
// "PERUSSÄHKÖ" or "MARKKINASÄHKÖ"
func (c *Client) ContractType(ctx context.Context) (string, error) {
	contract, err := c.selectedContract(ctx)
	if err != nil {
		return "", err
	}
	if len(contract.Products) == 0 {
		return "", fmt.Errorf("contract %d has no products", contract.ID)
	}
	return contract.Products[0].Name, nil
}

// ContractBasePrice returns the monthly base fee in EUR
func (c *Client) ContractBasePrice(ctx context.Context) (float64, error) {
	return c.contractComponent(ctx, "eur/kk", "perusmaksu")
}

// ContractUnitPrice returns the contract energy price in c/kWh
func (c *Client) ContractUnitPrice(ctx context.Context) (float64, error) {
	return c.contractComponent(ctx, "c/kwh", "energia")
}

// contractComponent finds a price component by unit or name substring
func (c *Client) contractComponent(ctx context.Context, unit, name string) (float64, error) {
	contract, err := c.selectedContract(ctx)
	if err != nil {
		return 0, err
	}

	for _, product := range contract.Products {
		for _, component := range product.Components {
			if strings.EqualFold(component.Unit, unit) || strings.Contains(strings.ToLower(component.Name), name) {
				return component.Price, nil
			}
		}
	}
	return 0, fmt.Errorf("contract %d has no %q price component", contract.ID, name)
}
