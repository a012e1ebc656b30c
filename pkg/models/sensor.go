package models

// Sensor type slugs. Cost sensors are per contract family, the
// consumption sensor is always published and the transfer sensor only
// when the account tracks transfer costs.
const (
	SensorFixed          = "fixed_price_electricity"
	SensorMarket         = "market_price_electricity"
	SensorExchange       = "exchange_electricity"
	SensorSmartGuarantee = "smart_guarantee"
	SensorTransfer       = "transfer_costs"
	SensorConsumption    = "monthly_consumption"
)

// SensorTypes lists every sensor type slug the daemon can publish
var SensorTypes = []string{
	SensorFixed,
	SensorMarket,
	SensorExchange,
	SensorSmartGuarantee,
	SensorTransfer,
	SensorConsumption,
}

// Sensor describes one Home Assistant entity derived from a snapshot.
type Sensor struct {
	Type        string         `json:"type"`      // sensor type slug, e.g. "monthly_consumption"
	UniqueID    string         `json:"unique_id"` // stable identity across renames
	ObjectID    string         `json:"object_id"` // entity id suffix, e.g. "helen_monthly_consumption"
	Name        string         `json:"name"`
	State       float64        `json:"state"`
	Unit        string         `json:"unit"`
	DeviceClass string         `json:"device_class,omitempty"`
	StateClass  string         `json:"state_class,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// EntityID returns the Home Assistant entity id for the sensor.
func (s Sensor) EntityID() string {
	return "sensor." + s.ObjectID
}
