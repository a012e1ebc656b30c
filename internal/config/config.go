package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Current config schema version. Version 1 kept a single account in
// top-level fields; version 2 moved accounts into a list with stable ids
// and added the include_transfer_costs flag.
const SchemaVersion = 2

// Contract type options for an account
const (
	ContractAutomatic = "automatic"
	ContractFixed     = "fixed"
	ContractMarket    = "market"
	ContractExchange  = "exchange"
)

// Config holds the application configuration
type Config struct {
	Version       int        `yaml:"version,omitempty"`
	Timezone      string     `yaml:"timezone,omitempty"`       // default Europe/Helsinki
	PollInterval  string     `yaml:"poll_interval,omitempty"`  // Go duration or cron expression
	MetricsListen string     `yaml:"metrics_listen,omitempty"` // e.g. ":9187", empty disables
	Accounts      []Account  `yaml:"accounts"`
	MQTT          MQTTConfig `yaml:"mqtt,omitempty"`
	HomeAssistant HAConfig   `yaml:"home_assistant,omitempty"`

	// Version 1 single-account fields, read only during migration
	LegacyUsername     string   `yaml:"username,omitempty"`
	LegacyPassword     string   `yaml:"password,omitempty"`
	LegacyVAT          float64  `yaml:"vat,omitempty"`
	LegacyContractType string   `yaml:"contract_type,omitempty"`
	LegacyUnitPrice    *float64 `yaml:"default_unit_price,omitempty"`
	LegacyBasePrice    *float64 `yaml:"default_base_price,omitempty"`
	LegacySiteID       string   `yaml:"delivery_site_id,omitempty"`
}

// Account holds the credentials and contract options for one Helen account
type Account struct {
	ID                   string   `yaml:"id"`
	Username             string   `yaml:"username"`
	Password             string   `yaml:"password"`
	VAT                  float64  `yaml:"vat,omitempty"`           // percent, 0 means default (25.5)
	ContractType         string   `yaml:"contract_type,omitempty"` // automatic, fixed, market or exchange
	DeliverySiteID       string   `yaml:"delivery_site_id,omitempty"`
	BasePrice            *float64 `yaml:"base_price,omitempty"` // EUR/month override, nil uses contract price
	UnitPrice            *float64 `yaml:"unit_price,omitempty"` // c/kWh override, nil uses contract price
	IncludeTransferCosts bool     `yaml:"include_transfer_costs"`
	AccessToken          string   `yaml:"access_token,omitempty"` // captured session token
	Cookies              []Cookie `yaml:"cookies,omitempty"`      // captured session cookies
}

// Cookie represents a browser cookie
type Cookie struct {
	Name     string  `yaml:"name"`
	Value    string  `yaml:"value"`
	Domain   string  `yaml:"domain"`
	Path     string  `yaml:"path"`
	Expires  float64 `yaml:"expires,omitempty"`
	HTTPOnly bool    `yaml:"httpOnly,omitempty"`
	Secure   bool    `yaml:"secure,omitempty"`
	SameSite string  `yaml:"sameSite,omitempty"`
}

// MQTTConfig holds the MQTT broker and discovery settings
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"` // host:port
	Username        string `yaml:"username,omitempty"`
	Password        string `yaml:"password,omitempty"`
	ClientID        string `yaml:"client_id,omitempty"`        // default "helen2mqtt"
	DiscoveryPrefix string `yaml:"discovery_prefix,omitempty"` // default "homeassistant"
	TopicPrefix     string `yaml:"topic_prefix,omitempty"`     // default "helen2mqtt"
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`   // e.g., "http://homeassistant.local:8123"
	Token   string `yaml:"token"` // Long-lived access token
}

// Load reads the config file and upgrades old schema versions in place.
// The second return value reports whether an upgrade happened so callers
// can persist it.
func Load(configPath string) (*Config, bool, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{Version: SchemaVersion}, false, nil
		}
		return nil, false, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, false, fmt.Errorf("parsing config file: %w", err)
	}

	upgraded := cfg.migrate()
	return &cfg, upgraded, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// migrate upgrades a version 1 config to the current schema and reports
// whether anything changed.
func (c *Config) migrate() bool {
	changed := false

	// Version 1 kept one account in top-level fields.
	if c.Version < 2 && c.LegacyUsername != "" {
		c.Accounts = append([]Account{{
			Username:             c.LegacyUsername,
			Password:             c.LegacyPassword,
			VAT:                  c.LegacyVAT,
			ContractType:         strings.ToLower(c.LegacyContractType),
			DeliverySiteID:       c.LegacySiteID,
			UnitPrice:            c.LegacyUnitPrice,
			BasePrice:            c.LegacyBasePrice,
			IncludeTransferCosts: false,
		}}, c.Accounts...)
		c.LegacyUsername = ""
		c.LegacyPassword = ""
		c.LegacyVAT = 0
		c.LegacyContractType = ""
		c.LegacyUnitPrice = nil
		c.LegacyBasePrice = nil
		c.LegacySiteID = ""
		changed = true
	}

	for i := range c.Accounts {
		if c.Accounts[i].ID == "" {
			c.Accounts[i].ID = uuid.NewString()
			changed = true
		}
		if c.Accounts[i].ContractType == "" {
			c.Accounts[i].ContractType = ContractAutomatic
			changed = true
		}
	}

	if c.Version != SchemaVersion {
		c.Version = SchemaVersion
		changed = true
	}

	return changed
}

// GetPollInterval returns the poll schedule with a default of every 3 hours
func (c *Config) GetPollInterval() string {
	if c.PollInterval == "" {
		return "3h"
	}
	return c.PollInterval
}

// GetTimezone returns the configured timezone name, defaulting to Helen's
func (c *Config) GetTimezone() string {
	if c.Timezone == "" {
		return "Europe/Helsinki"
	}
	return c.Timezone
}

// FindAccount returns the account with the given id or username, or nil
func (c *Config) FindAccount(key string) *Account {
	for i := range c.Accounts {
		if c.Accounts[i].ID == key || c.Accounts[i].Username == key {
			return &c.Accounts[i]
		}
	}
	return nil
}

// AccountIndex returns the position of the account in the config, or -1
func (c *Config) AccountIndex(id string) int {
	for i := range c.Accounts {
		if c.Accounts[i].ID == id {
			return i
		}
	}
	return -1
}

// HasAccount reports whether an account for the username and delivery site
// pair already exists.
func (c *Config) HasAccount(username, siteID string) bool {
	for i := range c.Accounts {
		if strings.EqualFold(c.Accounts[i].Username, username) && c.Accounts[i].DeliverySiteID == siteID {
			return true
		}
	}
	return false
}

// GetVAT returns the account VAT percentage with a default of 25.5
func (a *Account) GetVAT() float64 {
	if a.VAT <= 0 {
		return 25.5
	}
	return a.VAT
}

// GetContractType returns the configured contract type, defaulting to automatic detection
func (a *Account) GetContractType() string {
	if a.ContractType == "" {
		return ContractAutomatic
	}
	return strings.ToLower(a.ContractType)
}

// Title returns the display name for the account, matching the site id
// when one is configured.
func (a *Account) Title() string {
	if a.DeliverySiteID != "" {
		return fmt.Sprintf("Helen Energy (%s)", a.DeliverySiteID)
	}
	return fmt.Sprintf("Helen Energy (%s)", a.Username)
}

// Validate checks that the account has usable credentials and options
func (a *Account) Validate() error {
	if a.Username == "" {
		return fmt.Errorf("username is required")
	}
	if a.Password == "" {
		return fmt.Errorf("password is required")
	}
	if a.VAT < 0 || a.VAT > 100 {
		return fmt.Errorf("vat must be between 0 and 100, got %v", a.VAT)
	}
	switch a.GetContractType() {
	case ContractAutomatic, ContractFixed, ContractMarket, ContractExchange:
	default:
		return fmt.Errorf("unknown contract_type %q (available: automatic, fixed, market, exchange)", a.ContractType)
	}
	if a.UnitPrice != nil && *a.UnitPrice <= 0 {
		return fmt.Errorf("unit_price override must be greater than 0")
	}
	if a.BasePrice != nil && *a.BasePrice <= 0 {
		return fmt.Errorf("base_price override must be greater than 0")
	}
	return nil
}

// GetClientID returns the MQTT client id with a default
func (m *MQTTConfig) GetClientID() string {
	if m.ClientID == "" {
		return "helen2mqtt"
	}
	return m.ClientID
}

// GetDiscoveryPrefix returns the Home Assistant discovery prefix with a default
func (m *MQTTConfig) GetDiscoveryPrefix() string {
	if m.DiscoveryPrefix == "" {
		return "homeassistant"
	}
	return m.DiscoveryPrefix
}

// GetTopicPrefix returns the state topic prefix with a default
func (m *MQTTConfig) GetTopicPrefix() string {
	if m.TopicPrefix == "" {
		return "helen2mqtt"
	}
	return m.TopicPrefix
}
