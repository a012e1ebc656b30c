package billing

import (
	"math"
	"time"

	"github.com/mtkorhonen/helen2mqtt/pkg/models"
)

// Round2 rounds a figure to two decimals. NaN, infinities and negative
// values all clamp to 0 so a bad upstream value never publishes as a
// negative or non-numeric state.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return math.Round(v*100) / 100
}

// MonthRange returns the first instant of the month containing t and the
// first instant of the following month, in t's location.
func MonthRange(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// MonthKey formats t's month as YYYY-MM, the snapshot month identifier
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// Inputs carries one polling cycle's raw figures for a single account.
// Prices are the resolved values: where the account configures an
// override it has already replaced the rate reported by the API.
type Inputs struct {
	Kind Kind

	CurrentMonthConsumption float64 // kWh
	LastMonthConsumption    float64 // kWh
	DailyAverageConsumption float64 // kWh

	BasePrice float64 // EUR/month
	UnitPrice float64 // c/kWh, energy component of the contract

	// Market price contracts. Last month always uses the published rate,
	// never an override.
	PriceLastMonth    float64 // c/kWh
	PriceCurrentMonth float64 // c/kWh
	PriceNextMonth    float64 // c/kWh

	// Exchange contracts
	SpotCostCurrentMonth float64 // EUR
	SpotCostLastMonth    float64 // EUR
	ExchangeMargin       float64 // c/kWh

	// Smart guarantee contracts
	UsageImpact float64 // c/kWh

	TransferCost float64 // EUR, 0 when transfer costs are not tracked
}

// Derive computes the monthly cost figures for one account from one
// cycle's raw data. Every monetary result is rounded to cents and never
// negative. An empty Kind derives consumption figures only, for accounts
// whose contract could not be classified.
func Derive(in Inputs) (*models.Snapshot, error) {
	snap := &models.Snapshot{
		ContractType:            string(in.Kind),
		CurrentMonthConsumption: Round2(in.CurrentMonthConsumption),
		LastMonthConsumption:    Round2(in.LastMonthConsumption),
		DailyAverageConsumption: Round2(in.DailyAverageConsumption),
		BasePrice:               Round2(in.BasePrice),
		UnitPrice:               Round2(in.UnitPrice),
		TransferCost:            Round2(in.TransferCost),
		PriceLastMonth:          Round2(in.PriceLastMonth),
		PriceCurrentMonth:       Round2(in.PriceCurrentMonth),
		PriceNextMonth:          Round2(in.PriceNextMonth),
		ExchangeMargin:          in.ExchangeMargin,
	}

	switch in.Kind {
	case KindFixed:
		snap.CurrentMonthCost = Round2(in.CurrentMonthConsumption*in.UnitPrice/100 + in.BasePrice)
		snap.LastMonthCost = Round2(in.LastMonthConsumption*in.UnitPrice/100 + in.BasePrice)

	case KindMarket:
		// Estimate the full month: cost so far plus roughly two more
		// days at the average daily consumption.
		price := in.PriceCurrentMonth / 100
		snap.CurrentMonthCost = Round2(in.BasePrice + price*in.CurrentMonthConsumption + 2*in.DailyAverageConsumption*price)
		snap.LastMonthCost = Round2(in.PriceLastMonth/100*in.LastMonthConsumption + in.BasePrice)

	case KindExchange:
		snap.CurrentMonthCost = Round2(in.SpotCostCurrentMonth + in.BasePrice)
		snap.LastMonthCost = Round2(in.SpotCostLastMonth + in.BasePrice)

	case KindSmartGuarantee:
		withImpact := (in.UnitPrice + in.UsageImpact) / 100
		snap.CurrentMonthCost = Round2(in.CurrentMonthConsumption*withImpact + in.BasePrice)
		snap.LastMonthCost = Round2(in.LastMonthConsumption*withImpact + in.BasePrice)
		snap.PriceWithImpact = Round2(withImpact)

	case "":
		// consumption only

	default:
		return nil, &UnsupportedContractError{ContractType: string(in.Kind)}
	}

	return snap, nil
}
