package publisher

import (
	"encoding/json"
	"fmt"

	"github.com/mtkorhonen/helen2mqtt/pkg/models"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// discoveryConfig is the MQTT discovery payload Home Assistant reads to
// create a sensor entity
type discoveryConfig struct {
	Name                string          `json:"name"`
	UniqueID            string          `json:"unique_id"`
	ObjectID            string          `json:"object_id"`
	StateTopic          string          `json:"state_topic"`
	JSONAttributesTopic string          `json:"json_attributes_topic,omitempty"`
	AvailabilityTopic   string          `json:"availability_topic"`
	UnitOfMeasurement   string          `json:"unit_of_measurement,omitempty"`
	DeviceClass         string          `json:"device_class,omitempty"`
	StateClass          string          `json:"state_class,omitempty"`
	Icon                string          `json:"icon,omitempty"`
	Device              discoveryDevice `json:"device"`
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

func (p *Publisher) configTopic(objectID string) string {
	return fmt.Sprintf("%s/sensor/%s/config", p.discoveryPrefix, objectID)
}

func (p *Publisher) stateTopic(objectID string) string {
	return fmt.Sprintf("%s/%s/state", p.topicPrefix, objectID)
}

func (p *Publisher) attributesTopic(objectID string) string {
	return fmt.Sprintf("%s/%s/attributes", p.topicPrefix, objectID)
}

func (p *Publisher) availabilityTopic() string {
	return fmt.Sprintf("%s/status", p.topicPrefix)
}

func (p *Publisher) discoveryPayload(dev Device, s models.Sensor) (string, error) {
	cfg := discoveryConfig{
		Name:              s.Name,
		UniqueID:          s.UniqueID,
		ObjectID:          s.ObjectID,
		StateTopic:        p.stateTopic(s.ObjectID),
		AvailabilityTopic: p.availabilityTopic(),
		UnitOfMeasurement: s.Unit,
		DeviceClass:       s.DeviceClass,
		StateClass:        s.StateClass,
		Icon:              s.Icon,
		Device: discoveryDevice{
			Identifiers:  []string{"helen2mqtt_" + dev.ID},
			Name:         dev.Name,
			Manufacturer: "Helen Oy",
			Model:        "helen2mqtt",
		},
	}

	if len(s.Attributes) > 0 {
		cfg.JSONAttributesTopic = p.attributesTopic(s.ObjectID)
	}

	body, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func encodeAttributes(attrs map[string]any) (string, error) {
	body, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
