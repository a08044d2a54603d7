package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress returns the canonical stored form of a hex address or
// public key: no 0x prefix, lowercase.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) >= 2 && addr[0] == '0' && (addr[1] == 'x' || addr[1] == 'X') {
		addr = addr[2:]
	}
	return strings.ToLower(addr)
}

// PrefixedAddress is the inverse of NormalizeAddress for outbound Ethereum calls.
func PrefixedAddress(addr string) string {
	return "0x" + NormalizeAddress(addr)
}

func IsEthAddress(addr string) bool {
	return common.IsHexAddress(PrefixedAddress(addr))
}

func EthAddress(addr string) common.Address {
	return common.HexToAddress(PrefixedAddress(addr))
}

func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}
