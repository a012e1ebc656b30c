package helen

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// StatusValid marks a measurement the meter has confirmed. Other statuses
// (estimated, missing) are excluded from every derived figure.
const StatusValid = "valid"

// Measurement is a single metered value with its validation status
type Measurement struct {
	Value  float64 `json:"value"`
	Status string  `json:"status"`
}

type measurementInterval struct {
	Start        string        `json:"start"`
	Stop         string        `json:"stop"`
	ResolutionS  int           `json:"resolution_s"`
	Unit         string        `json:"unit"`
	Measurements []Measurement `json:"measurements"`
}

type measurementResponse struct {
	Intervals struct {
		Electricity []measurementInterval `json:"electricity"`
	} `json:"intervals"`
}

// TotalConsumption sums the valid measurements in a series
func TotalConsumption(ms []Measurement) float64 {
	var total float64
	for _, m := range ms {
		if m.Status == StatusValid {
			total += m.Value
		}
	}
	return total
}

// DailyAverage returns the mean of the valid measurements in a series,
// 0 when the series has none
func DailyAverage(ms []Measurement) float64 {
	var total float64
	var count int
	for _, m := range ms {
		if m.Status == StatusValid {
			total += m.Value
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// DailyMeasurements returns the daily consumption series for the period.
// A period the provider has no data for returns an empty slice.
func (c *Client) DailyMeasurements(ctx context.Context, from, to time.Time) ([]Measurement, error) {
	return c.measurements(ctx, "day", from, to)
}

// HourlyMeasurements returns the hourly consumption series for the period
func (c *Client) HourlyMeasurements(ctx context.Context, from, to time.Time) ([]Measurement, error) {
	return c.measurements(ctx, "hour", from, to)
}

func (c *Client) measurements(ctx context.Context, resolution string, from, to time.Time) ([]Measurement, error) {
	params := url.Values{}
	params.Set("begin", from.UTC().Format(time.RFC3339))
	params.Set("end", to.UTC().Format(time.RFC3339))
	params.Set("resolution", resolution)
	if c.siteID != "" {
		params.Set("delivery_site_id", c.siteID)
	}

	var resp measurementResponse
	reqURL := fmt.Sprintf("%s/measurements/electricity?%s", c.apiBaseURL, params.Encode())
	if err := c.getJSON(ctx, "measurements", reqURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching %s measurements: %w", resolution, err)
	}

	if len(resp.Intervals.Electricity) == 0 {
		return nil, nil
	}
	return resp.Intervals.Electricity[0].Measurements, nil
}

// SpotPrices returns the hourly exchange electricity prices in c/kWh,
// VAT excluded, for the period.
func (c *Client) SpotPrices(ctx context.Context, from, to time.Time) ([]Measurement, error) {
	params := url.Values{}
	params.Set("begin", from.UTC().Format(time.RFC3339))
	params.Set("end", to.UTC().Format(time.RFC3339))
	params.Set("resolution", "hour")

	var resp measurementResponse
	reqURL := fmt.Sprintf("%s/prices/electricity?%s", c.apiBaseURL, params.Encode())
	if err := c.getJSON(ctx, "spot-prices", reqURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching spot prices: %w", err)
	}

	if len(resp.Intervals.Electricity) == 0 {
		return nil, nil
	}
	return resp.Intervals.Electricity[0].Measurements, nil
}

// SpotCosts totals the cost of exchange electricity for the period: each
// valid hour's consumption times its spot price plus the contract margin,
// with VAT applied. Returns EUR. Periods with no data total 0.
func (c *Client) SpotCosts(ctx context.Context, from, to time.Time) (float64, error) {
	consumption, err := c.HourlyMeasurements(ctx, from, to)
	if err != nil {
		return 0, err
	}
	prices, err := c.SpotPrices(ctx, from, to)
	if err != nil {
		return 0, err
	}

	hours := len(consumption)
	if len(prices) < hours {
		hours = len(prices)
	}

	var totalCents float64
	for i := 0; i < hours; i++ {
		if consumption[i].Status != StatusValid {
			continue
		}
		totalCents += consumption[i].Value * (prices[i].Value + c.margin)
	}

	return totalCents * (1 + c.vat) / 100, nil
}

// UsageImpact measures how the account's usage pattern shifts its average
// spot price: the consumption-weighted mean price minus the plain mean
// price for the period, in c/kWh. Flat usage scores 0; using power during
// expensive hours scores positive.
func (c *Client) UsageImpact(ctx context.Context, from, to time.Time) (float64, error) {
	consumption, err := c.HourlyMeasurements(ctx, from, to)
	if err != nil {
		return 0, err
	}
	prices, err := c.SpotPrices(ctx, from, to)
	if err != nil {
		return 0, err
	}

	hours := len(consumption)
	if len(prices) < hours {
		hours = len(prices)
	}
	if hours == 0 {
		return 0, nil
	}

	var weighted, totalKWh, priceSum float64
	for i := 0; i < hours; i++ {
		priceSum += prices[i].Value
		if consumption[i].Status != StatusValid {
			continue
		}
		weighted += consumption[i].Value * prices[i].Value
		totalKWh += consumption[i].Value
	}
	if totalKWh == 0 {
		return 0, nil
	}

	return weighted/totalKWh - priceSum/float64(hours), nil
}

// TransferFees returns the total electricity transfer cost for the period
// in EUR, for accounts whose transfer contract is also with Helen.
func (c *Client) TransferFees(ctx context.Context, from, to time.Time) (float64, error) {
	params := url.Values{}
	params.Set("begin", from.UTC().Format(time.RFC3339))
	params.Set("end", to.UTC().Format(time.RFC3339))
	if c.siteID != "" {
		params.Set("delivery_site_id", c.siteID)
	}

	var resp struct {
		Total float64 `json:"total"`
	}
	reqURL := fmt.Sprintf("%s/costs/electricity-transfer?%s", c.apiBaseURL, params.Encode())
	if err := c.getJSON(ctx, "transfer-costs", reqURL, &resp); err != nil {
		return 0, fmt.Errorf("fetching transfer fees: %w", err)
	}

	return resp.Total, nil
}
