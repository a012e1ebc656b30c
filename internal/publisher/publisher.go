package publisher

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mtkorhonen/helen2mqtt/internal/config"
	"github.com/mtkorhonen/helen2mqtt/pkg/models"
)

// Device groups an account's sensors under one Home Assistant device
type Device struct {
	ID   string
	Name string
}

// Publisher pushes sensors to Home Assistant over MQTT discovery, the
// HTTP states API, or both, depending on what the config enables
type Publisher struct {
	client          mqtt.Client
	topicPrefix     string
	discoveryPrefix string
	haConfig        config.HAConfig

	// OnPublish is called after each transport attempt, for metrics
	OnPublish func(transport string, err error)
}

// New creates a new publisher and connects to the MQTT broker when MQTT
// is enabled. At least one transport must be enabled.
func New(mqttCfg config.MQTTConfig, haCfg config.HAConfig) (*Publisher, error) {
	if !mqttCfg.Enabled && !haCfg.Enabled {
		return nil, fmt.Errorf("no publishing transport enabled: enable mqtt or home_assistant in the config")
	}

	if haCfg.Enabled {
		if haCfg.URL == "" {
			return nil, fmt.Errorf("Home Assistant URL is required when enabled")
		}
		if haCfg.Token == "" {
			return nil, fmt.Errorf("Home Assistant token is required when enabled")
		}
	}

	p := &Publisher{
		topicPrefix:     mqttCfg.GetTopicPrefix(),
		discoveryPrefix: mqttCfg.GetDiscoveryPrefix(),
		haConfig:        haCfg,
	}

	if mqttCfg.Enabled {
		if mqttCfg.Broker == "" {
			return nil, fmt.Errorf("MQTT broker address is required when enabled")
		}

		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", mqttCfg.Broker))
		opts.SetClientID(mqttCfg.GetClientID())
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectTimeout(10 * time.Second)
		opts.SetWill(p.availabilityTopic(), payloadOffline, 1, true)

		if mqttCfg.Username != "" {
			opts.SetUsername(mqttCfg.Username)
		}
		if mqttCfg.Password != "" {
			opts.SetPassword(mqttCfg.Password)
		}

		p.client = mqtt.NewClient(opts)
		if token := p.client.Connect(); token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
		}

		if err := p.publishRetained(p.availabilityTopic(), payloadOnline); err != nil {
			return nil, fmt.Errorf("announcing availability: %w", err)
		}
	}

	return p, nil
}

// PublishSensors pushes the sensor set over every enabled transport.
// MQTT gets a retained discovery config plus state and attribute topics
// per sensor, the HTTP path sets the states directly.
func (p *Publisher) PublishSensors(dev Device, sensors []models.Sensor) error {
	var firstErr error

	if p.client != nil {
		err := p.publishMQTT(dev, sensors)
		p.observe("mqtt", err)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if p.haConfig.Enabled {
		err := p.publishHTTP(sensors)
		p.observe("http", err)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (p *Publisher) publishMQTT(dev Device, sensors []models.Sensor) error {
	for _, s := range sensors {
		cfg, err := p.discoveryPayload(dev, s)
		if err != nil {
			return fmt.Errorf("encoding discovery config for %s: %w", s.ObjectID, err)
		}
		if err := p.publishRetained(p.configTopic(s.ObjectID), cfg); err != nil {
			return fmt.Errorf("publishing discovery config for %s: %w", s.ObjectID, err)
		}

		if err := p.publishRetained(p.stateTopic(s.ObjectID), fmt.Sprintf("%.2f", s.State)); err != nil {
			return fmt.Errorf("publishing state for %s: %w", s.ObjectID, err)
		}

		if len(s.Attributes) > 0 {
			attrs, err := encodeAttributes(s.Attributes)
			if err != nil {
				return fmt.Errorf("encoding attributes for %s: %w", s.ObjectID, err)
			}
			if err := p.publishRetained(p.attributesTopic(s.ObjectID), attrs); err != nil {
				return fmt.Errorf("publishing attributes for %s: %w", s.ObjectID, err)
			}
		}
	}

	return nil
}

// ClearDiscovery removes the retained discovery configs for the given
// object ids so Home Assistant drops the entities
func (p *Publisher) ClearDiscovery(objectIDs []string) error {
	if p.client == nil {
		return fmt.Errorf("MQTT is not enabled")
	}

	for _, objectID := range objectIDs {
		if err := p.publishRetained(p.configTopic(objectID), ""); err != nil {
			return fmt.Errorf("clearing discovery config for %s: %w", objectID, err)
		}
	}

	return nil
}

func (p *Publisher) publishRetained(topic, payload string) error {
	token := p.client.Publish(topic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (p *Publisher) observe(transport string, err error) {
	if p.OnPublish != nil {
		p.OnPublish(transport, err)
	}
}

// Close marks the bridge offline and disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.publishRetained(p.availabilityTopic(), payloadOffline)
		p.client.Disconnect(250)
	}
}
