package entities

import (
	"fmt"
	"strings"

	"github.com/mtkorhonen/helen2mqtt/pkg/models"
)

// LegacyEntityMappings maps the entity ids the original single-account
// integration created to their sensor types. An installation upgrading
// from it keeps these entity ids so recorder history carries over.
var LegacyEntityMappings = map[string]string{
	"sensor.helen_fixed_price_electricity":  models.SensorFixed,
	"sensor.helen_market_price_electricity": models.SensorMarket,
	"sensor.helen_exchange_electricity":     models.SensorExchange,
	"sensor.helen_smart_guarantee":          models.SensorSmartGuarantee,
	"sensor.helen_transfer_costs":           models.SensorTransfer,
	"sensor.helen_monthly_consumption":      models.SensorConsumption,
}

// IsLegacyEntityID reports whether an entity id belongs to the original
// single-account naming scheme
func IsLegacyEntityID(entityID string) bool {
	_, ok := LegacyEntityMappings[entityID]
	return ok
}

// IsLegacyObjectID reports whether an object id is one of the bare
// legacy ids the first account claims
func IsLegacyObjectID(objectID string) bool {
	return IsLegacyEntityID("sensor." + objectID)
}

// LegacyEntityName returns the display name the original integration
// used for a sensor type, e.g. "Helen Monthly Consumption"
func LegacyEntityName(sensorType string) string {
	return "Helen " + titleWords(sensorType)
}

// UniqueID returns the stable identifier for a sensor type on the
// account at the given position in the configuration. The first account
// uses the bare form, later accounts carry a numeric suffix.
func UniqueID(accountID, sensorType string, index int) string {
	if index == 0 {
		return fmt.Sprintf("%s_%s", accountID, sensorType)
	}
	return fmt.Sprintf("%s_%s_%d", accountID, sensorType, index+1)
}

// ObjectID returns the entity id suffix for a sensor type at the given
// account position. The first account claims the bare legacy ids.
func ObjectID(sensorType string, index int) string {
	if index == 0 {
		return "helen_" + sensorType
	}
	return fmt.Sprintf("helen_%s_%d", sensorType, index+1)
}

// DisplayName returns the friendly name for a sensor. The first account
// keeps the legacy names, later accounts are distinguished by delivery
// site or position.
func DisplayName(sensorType string, index int, siteID string) string {
	if index == 0 {
		return LegacyEntityName(sensorType)
	}
	if siteID != "" {
		return fmt.Sprintf("Helen %s (Site %s)", titleWords(sensorType), siteID)
	}
	return fmt.Sprintf("Helen %s (%d)", titleWords(sensorType), index+1)
}

func titleWords(slug string) string {
	words := strings.Split(slug, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
