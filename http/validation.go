package http

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xeipuuv/gojsonschema"
)

// settlementRequestSchema validates the shape of settlement and payment
// request bodies before any field is parsed. Addresses are 20-byte hex,
// amounts are decimal strings so uint256 values survive JSON intact.
const settlementRequestSchema = `{
  "type": "object",
  "required": ["payer", "instructions"],
  "properties": {
    "payer": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
    "instructions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["token", "receivers", "amounts"],
        "properties": {
          "token": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
          "receivers": {
            "type": "array",
            "items": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"}
          },
          "amounts": {
            "type": "array",
            "items": {"type": "string", "pattern": "^[0-9]+$"}
          }
        }
      }
    },
    "swap": {
      "type": "object",
      "required": ["origin", "totalAmountIn"],
      "properties": {
        "origin": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
        "totalAmountIn": {"type": "string", "pattern": "^[0-9]+$"},
        "deadline": {"type": "integer", "minimum": 0},
        "v2Legs": {"type": "array"},
        "v3Legs": {"type": "array"}
      }
    }
  }
}`

var settlementSchema = gojsonschema.NewStringLoader(settlementRequestSchema)

// ValidateSettlementRequest checks the raw request body against the
// settlement schema and returns a single descriptive error listing every
// violation.
func ValidateSettlementRequest(body []byte) error {
	result, err := gojsonschema.Validate(settlementSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	if result.Valid() {
		return nil
	}
	reasons := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		reasons = append(reasons, desc.String())
	}
	return fmt.Errorf("invalid request body: %s", strings.Join(reasons, "; "))
}

// parseAddress parses a 0x-prefixed 20-byte hex address.
func parseAddress(s, field string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid field %s: %q is not a hex address", field, s)
	}
	return common.HexToAddress(s), nil
}

// parseAddresses parses a slice of hex addresses.
func parseAddresses(in []string, field string) ([]common.Address, error) {
	out := make([]common.Address, len(in))
	for i, s := range in {
		addr, err := parseAddress(s, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

// parseAmount parses a non-negative decimal integer string. The empty
// string means zero.
func parseAmount(s, field string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid field %s: %q is not a non-negative decimal integer", field, s)
	}
	return v, nil
}

// parseAmounts parses a slice of decimal integer strings.
func parseAmounts(in []string, field string) ([]*big.Int, error) {
	out := make([]*big.Int, len(in))
	for i, s := range in {
		v, err := parseAmount(s, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
