package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, upgraded, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.False(t, upgraded)
	assert.Equal(t, SchemaVersion, cfg.Version)
	assert.Empty(t, cfg.Accounts)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "helen", "config.yaml")

	unitPrice := 8.5
	cfg := &Config{
		Version:      SchemaVersion,
		PollInterval: "6h",
		Accounts: []Account{{
			ID:                   "acct-1",
			Username:             "erkki@example.fi",
			Password:             "hunter2",
			VAT:                  25.5,
			ContractType:         ContractFixed,
			DeliverySiteID:       "641449",
			UnitPrice:            &unitPrice,
			IncludeTransferCosts: true,
		}},
		MQTT: MQTTConfig{Enabled: true, Broker: "broker.local:1883"},
	}

	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, upgraded, err := Load(path)
	require.NoError(t, err)
	assert.False(t, upgraded)
	require.Len(t, loaded.Accounts, 1)

	acct := loaded.Accounts[0]
	assert.Equal(t, "acct-1", acct.ID)
	assert.Equal(t, "erkki@example.fi", acct.Username)
	assert.Equal(t, "641449", acct.DeliverySiteID)
	require.NotNil(t, acct.UnitPrice)
	assert.Equal(t, 8.5, *acct.UnitPrice)
	assert.True(t, acct.IncludeTransferCosts)
	assert.Equal(t, "6h", loaded.GetPollInterval())
	assert.True(t, loaded.MQTT.Enabled)
}

func TestLoadUpgradesSingleAccountLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	old := `username: erkki@example.fi
password: hunter2
vat: 24.0
contract_type: Fixed
delivery_site_id: "641449"
default_unit_price: 7.9
`
	require.NoError(t, os.WriteFile(path, []byte(old), 0600))

	cfg, upgraded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, upgraded)
	assert.Equal(t, SchemaVersion, cfg.Version)

	require.Len(t, cfg.Accounts, 1)
	acct := cfg.Accounts[0]
	assert.NotEmpty(t, acct.ID)
	assert.Equal(t, "erkki@example.fi", acct.Username)
	assert.Equal(t, "hunter2", acct.Password)
	assert.Equal(t, 24.0, acct.VAT)
	assert.Equal(t, ContractFixed, acct.ContractType)
	assert.Equal(t, "641449", acct.DeliverySiteID)
	require.NotNil(t, acct.UnitPrice)
	assert.Equal(t, 7.9, *acct.UnitPrice)
	assert.False(t, acct.IncludeTransferCosts)

	// Legacy fields cleared so a save does not duplicate them
	assert.Empty(t, cfg.LegacyUsername)
	assert.Empty(t, cfg.LegacyPassword)
}

func TestLoadAssignsMissingAccountIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	raw := `version: 2
accounts:
  - username: a@example.fi
    password: pw
  - id: keep-me
    username: b@example.fi
    password: pw
    contract_type: market
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0600))

	cfg, upgraded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, upgraded)

	require.Len(t, cfg.Accounts, 2)
	assert.NotEmpty(t, cfg.Accounts[0].ID)
	assert.Equal(t, ContractAutomatic, cfg.Accounts[0].ContractType)
	assert.Equal(t, "keep-me", cfg.Accounts[1].ID)
	assert.Equal(t, ContractMarket, cfg.Accounts[1].ContractType)
}

func TestFindAccount(t *testing.T) {
	cfg := &Config{Accounts: []Account{
		{ID: "a1", Username: "first@example.fi"},
		{ID: "a2", Username: "second@example.fi"},
	}}

	assert.Equal(t, "a2", cfg.FindAccount("a2").ID)
	assert.Equal(t, "a1", cfg.FindAccount("first@example.fi").ID)
	assert.Nil(t, cfg.FindAccount("nobody"))

	assert.Equal(t, 1, cfg.AccountIndex("a2"))
	assert.Equal(t, -1, cfg.AccountIndex("missing"))
}

func TestHasAccount(t *testing.T) {
	cfg := &Config{Accounts: []Account{
		{Username: "Erkki@Example.fi", DeliverySiteID: "641449"},
	}}

	assert.True(t, cfg.HasAccount("erkki@example.fi", "641449"))
	assert.False(t, cfg.HasAccount("erkki@example.fi", "641450"))
	assert.False(t, cfg.HasAccount("other@example.fi", "641449"))
}

func TestAccountDefaults(t *testing.T) {
	acct := Account{}
	assert.Equal(t, 25.5, acct.GetVAT())
	assert.Equal(t, ContractAutomatic, acct.GetContractType())

	acct = Account{VAT: 24.0, ContractType: "MARKET"}
	assert.Equal(t, 24.0, acct.GetVAT())
	assert.Equal(t, ContractMarket, acct.GetContractType())
}

func TestAccountTitle(t *testing.T) {
	acct := Account{Username: "erkki@example.fi", DeliverySiteID: "641449"}
	assert.Equal(t, "Helen Energy (641449)", acct.Title())

	acct.DeliverySiteID = ""
	assert.Equal(t, "Helen Energy (erkki@example.fi)", acct.Title())
}

func TestAccountValidate(t *testing.T) {
	good := Account{Username: "erkki@example.fi", Password: "pw", ContractType: ContractFixed}
	assert.NoError(t, good.Validate())

	bad := good
	bad.Username = ""
	assert.Error(t, bad.Validate())

	bad = good
	bad.Password = ""
	assert.Error(t, bad.Validate())

	bad = good
	bad.VAT = 150
	assert.Error(t, bad.Validate())

	bad = good
	bad.ContractType = "prepaid"
	assert.Error(t, bad.Validate())

	zero := 0.0
	bad = good
	bad.UnitPrice = &zero
	assert.Error(t, bad.Validate())
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "3h", cfg.GetPollInterval())
	assert.Equal(t, "Europe/Helsinki", cfg.GetTimezone())

	mqtt := MQTTConfig{}
	assert.Equal(t, "helen2mqtt", mqtt.GetClientID())
	assert.Equal(t, "homeassistant", mqtt.GetDiscoveryPrefix())
	assert.Equal(t, "helen2mqtt", mqtt.GetTopicPrefix())
}
