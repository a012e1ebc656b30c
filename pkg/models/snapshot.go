package models

import "time"

// Snapshot holds the derived monthly figures for one account, recomputed
// in full on every poll cycle.
type Snapshot struct {
	ID           int64     `json:"id"`
	AccountID    string    `json:"account_id"`
	SiteID       string    `json:"site_id"`
	ContractType string    `json:"contract_type"` // "fixed", "market", "exchange" or "smart_guarantee"
	Month        string    `json:"month"`         // YYYY-MM
	FetchedAt    time.Time `json:"fetched_at"`

	CurrentMonthConsumption float64 `json:"current_month_consumption"` // kWh
	LastMonthConsumption    float64 `json:"last_month_consumption"`    // kWh
	DailyAverageConsumption float64 `json:"daily_average_consumption"` // kWh

	BasePrice float64 `json:"base_price"` // EUR/month
	UnitPrice float64 `json:"unit_price"` // c/kWh

	CurrentMonthCost float64 `json:"current_month_cost"` // EUR
	LastMonthCost    float64 `json:"last_month_cost"`    // EUR

	TransferCost float64 `json:"transfer_cost"` // EUR, 0 when transfer costs are disabled

	// Market price contracts
	PriceLastMonth    float64 `json:"price_last_month"`    // c/kWh
	PriceCurrentMonth float64 `json:"price_current_month"` // c/kWh
	PriceNextMonth    float64 `json:"price_next_month"`    // c/kWh

	// Exchange contracts
	ExchangeMargin float64 `json:"exchange_margin"` // c/kWh

	// Smart guarantee contracts
	PriceWithImpact float64 `json:"price_with_impact"` // EUR/kWh
}
