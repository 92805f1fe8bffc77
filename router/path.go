package router

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// V3 packed-path layout: token (20 bytes), then pool fee (3 bytes, big
// endian) and next token (20 bytes) per hop. Exact-output paths are encoded
// output token first.
const (
	addrSize    = common.AddressLength
	feeSize     = 3
	hopSize     = addrSize + feeSize
	maxPoolFee  = 1<<24 - 1
	minPathLen  = addrSize + hopSize
)

// EncodePath packs tokens and per-hop pool fees into the V3 path format.
// len(fees) must be len(tokens)-1 and every fee must fit in 24 bits.
func EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) < 2 {
		return nil, fmt.Errorf("path needs at least two tokens, got %d", len(tokens))
	}
	if len(fees) != len(tokens)-1 {
		return nil, fmt.Errorf("path with %d tokens needs %d fees, got %d", len(tokens), len(tokens)-1, len(fees))
	}
	path := make([]byte, 0, addrSize+hopSize*len(fees))
	path = append(path, tokens[0].Bytes()...)
	for i, fee := range fees {
		if fee > maxPoolFee {
			return nil, fmt.Errorf("pool fee %d exceeds uint24", fee)
		}
		path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
		path = append(path, tokens[i+1].Bytes()...)
	}
	return path, nil
}

// DecodePath unpacks a V3 path into its tokens and pool fees.
func DecodePath(path []byte) ([]common.Address, []uint32, error) {
	if len(path) < minPathLen || (len(path)-addrSize)%hopSize != 0 {
		return nil, nil, fmt.Errorf("malformed path of %d bytes", len(path))
	}
	hops := (len(path) - addrSize) / hopSize
	tokens := make([]common.Address, 0, hops+1)
	fees := make([]uint32, 0, hops)

	tokens = append(tokens, common.BytesToAddress(path[:addrSize]))
	offset := addrSize
	for i := 0; i < hops; i++ {
		fee := uint32(path[offset])<<16 | uint32(path[offset+1])<<8 | uint32(path[offset+2])
		fees = append(fees, fee)
		offset += feeSize
		tokens = append(tokens, common.BytesToAddress(path[offset:offset+addrSize]))
		offset += addrSize
	}
	return tokens, fees, nil
}
