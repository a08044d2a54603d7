package utils

import (
	"fmt"
	"strings"
)

var txLinkFormats = map[string]string{
	"1":        "https://etherscan.io/tx/%s",
	"5":        "https://goerli.etherscan.io/tx/%s",
	"11155111": "https://sepolia.etherscan.io/tx/%s",
}

// TxLink prefers explorerURL when set, then the known explorer for chainID.
func TxLink(explorerURL, chainID, txHash string) string {
	if explorerURL != "" {
		return fmt.Sprintf("%s/tx/%s", strings.TrimSuffix(explorerURL, "/"), txHash)
	}
	if format, ok := txLinkFormats[chainID]; ok {
		return fmt.Sprintf(format, txHash)
	}
	return txHash
}
