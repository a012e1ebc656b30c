package billing

import (
	"fmt"
	"strings"

	"github.com/mtkorhonen/helen2mqtt/internal/config"
)

// Kind identifies the billing model of an electricity contract
type Kind string

const (
	KindFixed          Kind = "fixed"
	KindMarket         Kind = "market"
	KindExchange       Kind = "exchange"
	KindSmartGuarantee Kind = "smart_guarantee"
)

// UnsupportedContractError is returned when neither the configuration nor
// the contract name from the API maps to a known billing model
type UnsupportedContractError struct {
	ContractType string
}

func (e *UnsupportedContractError) Error() string {
	return fmt.Sprintf("unsupported contract type %q: set contract_type to fixed, market or exchange in the config", e.ContractType)
}

// Detect resolves the billing model for an account. An explicit contract
// type in the configuration wins; otherwise the product name reported by
// the API decides. Helen product names carry the contract family as a
// Finnish word fragment (PERUSSÄHKÖ, MARKKINASÄHKÖ, PÖRSSISÄHKÖ, VALTTI).
func Detect(configured, apiType string) (Kind, error) {
	switch configured {
	case config.ContractFixed:
		return KindFixed, nil
	case config.ContractMarket:
		return KindMarket, nil
	case config.ContractExchange:
		return KindExchange, nil
	}

	name := strings.ToUpper(apiType)
	switch {
	case strings.Contains(name, "PERUS"), strings.Contains(name, "KAYTTO"), strings.Contains(name, "KÄYTTÖ"):
		return KindFixed, nil
	case strings.Contains(name, "MARK"):
		return KindMarket, nil
	case strings.Contains(name, "PORS"), strings.Contains(name, "PÖRS"):
		return KindExchange, nil
	case strings.Contains(name, "VALTTI"):
		return KindSmartGuarantee, nil
	}

	return "", &UnsupportedContractError{ContractType: apiType}
}
