package monitor

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iron-fish/ironfish-bridge/config"
	"github.com/iron-fish/ironfish-bridge/contract"
	"github.com/iron-fish/ironfish-bridge/contract/abi"
	"github.com/iron-fish/ironfish-bridge/ethclient"
	"github.com/iron-fish/ironfish-bridge/logging"
	"github.com/iron-fish/ironfish-bridge/utils"
)

// Contracts maps an Iron Fish asset id to the token contract bridging it.
type Contracts map[string]*contract.TokenContract

// NewContracts binds every configured asset. Assets without a private key
// are read-only: the poller can ingest their deposits but submissions fail
// with contract.ErrNoSigner.
func NewContracts(logger logging.Logger, client ethclient.Client, cfg *config.Config) (Contracts, error) {
	res := make(Contracts, len(cfg.Assets))
	for _, name := range cfg.AssetNames() {
		asset := cfg.Asset(name)
		tokenABI := abi.TestUSDCABI
		if asset.DepositPath == config.DepositPathBurn {
			tokenABI = abi.WIronABI
		}
		var token *contract.TokenContract
		if asset.PrivateKey == "" {
			logger.WithField("asset", name).Warn("asset has no private key, transactions are disabled")
			token = contract.NewTokenContract(client, asset.Contract, tokenABI, nil)
		} else {
			key, from, err := utils.ParsePrivateKey(asset.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("asset %s: %w", name, err)
			}
			logger.WithFields(logrus.Fields{
				"asset":    name,
				"contract": asset.Contract,
				"sender":   from,
			}).Info("bound token contract")
			token = contract.NewTokenContract(client, asset.Contract, tokenABI, key)
		}
		res[asset.AssetID] = token
	}
	return res, nil
}

func (c Contracts) ForAsset(assetID string) (*contract.TokenContract, error) {
	token, ok := c[strings.ToLower(assetID)]
	if !ok {
		return nil, fmt.Errorf("no token contract for asset %s", assetID)
	}
	return token, nil
}
