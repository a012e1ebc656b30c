package publisher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mtkorhonen/helen2mqtt/pkg/models"
)

// statePayload matches the Home Assistant REST states API body
type statePayload struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// publishHTTP sets sensor states directly through the Home Assistant
// HTTP API, for installations without an MQTT broker
func (p *Publisher) publishHTTP(sensors []models.Sensor) error {
	client := &http.Client{Timeout: 10 * time.Second}

	for _, s := range sensors {
		apiURL := fmt.Sprintf("%s/api/states/%s", p.haConfig.URL, s.EntityID())

		payload := statePayload{
			State:      fmt.Sprintf("%.2f", s.State),
			Attributes: stateAttributes(s),
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding payload for %s: %w", s.EntityID(), err)
		}

		req, err := http.NewRequest("POST", apiURL, bytes.NewBuffer(body))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+p.haConfig.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request error: %w", err)
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(respBody))
		}
		resp.Body.Close()
	}

	return nil
}

// stateAttributes merges the sensor's presentation fields into its
// attribute map, since the REST API has no discovery step to carry them
func stateAttributes(s models.Sensor) map[string]any {
	attrs := make(map[string]any, len(s.Attributes)+5)
	for k, v := range s.Attributes {
		attrs[k] = v
	}

	attrs["friendly_name"] = s.Name
	if s.Unit != "" {
		attrs["unit_of_measurement"] = s.Unit
	}
	if s.DeviceClass != "" {
		attrs["device_class"] = s.DeviceClass
	}
	if s.StateClass != "" {
		attrs["state_class"] = s.StateClass
	}
	if s.Icon != "" {
		attrs["icon"] = s.Icon
	}

	return attrs
}
