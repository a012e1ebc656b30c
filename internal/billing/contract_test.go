package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtkorhonen/helen2mqtt/internal/config"
)

func TestDetectConfiguredTypeWins(t *testing.T) {
	kind, err := Detect(config.ContractFixed, "PÖRSSISÄHKÖ")
	require.NoError(t, err)
	assert.Equal(t, KindFixed, kind)

	kind, err = Detect(config.ContractMarket, "")
	require.NoError(t, err)
	assert.Equal(t, KindMarket, kind)

	kind, err = Detect(config.ContractExchange, "PERUSSÄHKÖ")
	require.NoError(t, err)
	assert.Equal(t, KindExchange, kind)
}

func TestDetectFromProductName(t *testing.T) {
	cases := []struct {
		name string
		want Kind
	}{
		{"PERUSSÄHKÖ", KindFixed},
		{"Perussähkö", KindFixed},
		{"KÄYTTÖSÄHKÖ", KindFixed},
		{"MARKKINASÄHKÖ", KindMarket},
		{"Markkinasähkö jatkuva", KindMarket},
		{"PÖRSSISÄHKÖ", KindExchange},
		{"Pörssisähkö", KindExchange},
		{"VALTTISÄHKÖ", KindSmartGuarantee},
		{"Valttisähkö takuu", KindSmartGuarantee},
	}

	for _, tc := range cases {
		kind, err := Detect(config.ContractAutomatic, tc.name)
		require.NoError(t, err, "detecting %q", tc.name)
		assert.Equal(t, tc.want, kind, "detecting %q", tc.name)
	}
}

func TestDetectUnsupported(t *testing.T) {
	_, err := Detect(config.ContractAutomatic, "KAUKOLÄMPÖ")
	require.Error(t, err)

	var unsupported *UnsupportedContractError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "KAUKOLÄMPÖ", unsupported.ContractType)

	// The message tells the user how to fix the config
	assert.Contains(t, err.Error(), "contract_type")
	assert.Contains(t, err.Error(), "fixed, market or exchange")
}
