package models

// Entity is one registered Home Assistant entity identity. The object id
// is claimed once and then never changes, so the entity id and its
// recorded history survive account renames and re-numbering.
type Entity struct {
	UniqueID   string `json:"unique_id"`
	AccountID  string `json:"account_id"`
	SensorType string `json:"sensor_type"`
	ObjectID   string `json:"object_id"`
	Name       string `json:"name"`
}
