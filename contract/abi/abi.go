package abi

//nolint:golint
import (
	_ "embed"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

//go:embed wiron.json
var wIronJSONABI string

//go:embed test_usdc.json
var testUSDCJSONABI string

var (
	WIronABI    = MustReadABI(wIronJSONABI)
	TestUSDCABI = MustReadABI(testUSDCJSONABI)
)

const (
	Transfer             = "event Transfer(address indexed from, address indexed to, uint256 value)"
	TransferWithMetadata = "event TransferWithMetadata(address indexed from, address indexed to, uint256 value, bytes metadata)"
)

var TransferWithMetadataEventSignature = crypto.Keccak256Hash([]byte("TransferWithMetadata(address,address,uint256,bytes)"))

func MustReadABI(rawJSON string) abi.ABI {
	res, err := abi.JSON(strings.NewReader(rawJSON))
	if err != nil {
		panic(err)
	}
	return res
}

// AllEvents lists the human readable signatures of every event in contractABI.
func AllEvents(contractABI abi.ABI) map[string]bool {
	events := make(map[string]bool, len(contractABI.Events))
	for _, event := range contractABI.Events {
		events[event.String()] = true
	}
	return events
}
