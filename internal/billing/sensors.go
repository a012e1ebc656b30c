package billing

import (
	"github.com/mtkorhonen/helen2mqtt/pkg/models"
)

// Sensors expands a snapshot into the sensor set for its contract: one
// cost sensor matching the billing model, the transfer cost sensor when
// enabled, and always the monthly consumption sensor. Naming fields are
// left blank for the entity registry to fill in.
func Sensors(snap *models.Snapshot, includeTransfer bool) []models.Sensor {
	var sensors []models.Sensor

	if cost, ok := costSensor(snap); ok {
		sensors = append(sensors, cost)
	}

	if includeTransfer {
		sensors = append(sensors, models.Sensor{
			Type:  models.SensorTransfer,
			State: snap.TransferCost,
			Unit:  "EUR",
			Icon:  "mdi:currency-eur",
		})
	}

	sensors = append(sensors, models.Sensor{
		Type:        models.SensorConsumption,
		State:       snap.CurrentMonthConsumption,
		Unit:        "kWh",
		DeviceClass: "energy",
		StateClass:  "total_increasing",
		Icon:        "mdi:home-lightning-bolt",
	})

	return sensors
}

func costSensor(snap *models.Snapshot) (models.Sensor, bool) {
	attrs := consumptionAttributes(snap)
	attrs["contract_base_price"] = snap.BasePrice

	sensor := models.Sensor{
		State: snap.CurrentMonthCost,
		Unit:  "EUR",
		Icon:  "mdi:currency-eur",
	}

	switch Kind(snap.ContractType) {
	case KindFixed:
		sensor.Type = models.SensorFixed
		attrs["fixed_unit_price"] = snap.UnitPrice
		attrs["fixed_unit_price_unit_of_measurement"] = "c/kWh"

	case KindMarket:
		sensor.Type = models.SensorMarket
		attrs["last_month_total_cost"] = snap.LastMonthCost
		attrs["price_last_month"] = snap.PriceLastMonth
		attrs["price_current_month"] = snap.PriceCurrentMonth
		attrs["price_next_month"] = snap.PriceNextMonth

	case KindExchange:
		sensor.Type = models.SensorExchange
		attrs["last_month_total_cost"] = snap.LastMonthCost

	case KindSmartGuarantee:
		sensor.Type = models.SensorSmartGuarantee
		attrs["current_month_price_with_impact"] = snap.PriceWithImpact

	default:
		return models.Sensor{}, false
	}

	sensor.Attributes = attrs
	return sensor, true
}

func consumptionAttributes(snap *models.Snapshot) map[string]any {
	return map[string]any{
		"current_month_consumption":       snap.CurrentMonthConsumption,
		"last_month_consumption":          snap.LastMonthConsumption,
		"daily_average_consumption":       snap.DailyAverageConsumption,
		"consumption_unit_of_measurement": "kWh",
	}
}
