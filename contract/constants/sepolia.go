// Package constants holds the public Sepolia deployment of the bridge.
package constants

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	SepoliaChainID     = "11155111"
	SepoliaExplorerURL = "https://sepolia.etherscan.io"
	SepoliaBlockTime   = 15 * time.Second

	IronAssetID             = "51f33a2f14f92735e562dc658a5639279ddca3d5079a6d1242b2a588a9cbf44c"
	IronfishTestUSDCAssetID = "3723c40e1c8a07f269facfae53453545600a02a1431cd1e03935d1e0256a003a"
)

var (
	WIronContractAddress    = common.HexToAddress("0x3de166740d64d522abfda77d9d878dfedfdeeede")
	TestUSDCContractAddress = common.HexToAddress("0xe6794acc5830b34ae0e86c1801603a17e3ca7c11")
)

// SepoliaContracts maps an Iron Fish asset id to its Sepolia token contract.
var SepoliaContracts = map[string]common.Address{
	IronAssetID:             WIronContractAddress,
	IronfishTestUSDCAssetID: TestUSDCContractAddress,
}
