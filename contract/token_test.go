package contract_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/iron-fish/ironfish-bridge/contract"
	bridgeabi "github.com/iron-fish/ironfish-bridge/contract/abi"
	"github.com/iron-fish/ironfish-bridge/ethclient/ethclienttest"
)

var (
	tokenAddr   = common.HexToAddress("0x3de166740d64d522abfda77d9d878dfedfdeeede")
	depositAddr = common.HexToAddress("0x6637ef23a4378b2c9df51477004c2e2994a2cf4b")
	senderAddr  = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

func TestTokenContract_Mint(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	client := ethclienttest.NewFake(11155111)
	token := contract.NewTokenContract(client, tokenAddr, bridgeabi.WIronABI, key)

	tx, err := token.Mint(context.Background(), depositAddr, big.NewInt(42))
	require.NoError(t, err)
	require.Len(t, client.SentTransactions(), 1)
	require.Equal(t, tokenAddr, *tx.To())

	sender, err := types.LatestSignerForChainID(big.NewInt(11155111)).Sender(tx)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)

	args, err := bridgeabi.WIronABI.Methods["mint"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Equal(t, depositAddr, args[0])
	require.Equal(t, big.NewInt(42), args[1])

	tx2, err := token.Burn(context.Background(), big.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, tx.Nonce()+1, tx2.Nonce())
}

func TestTokenContract_TransactWithoutSigner(t *testing.T) {
	t.Parallel()

	client := ethclienttest.NewFake(11155111)
	token := contract.NewTokenContract(client, tokenAddr, bridgeabi.TestUSDCABI, nil)

	_, err := token.Transfer(context.Background(), depositAddr, big.NewInt(1))
	require.ErrorIs(t, err, contract.ErrNoSigner)
	require.Empty(t, client.SentTransactions())
}

func TestTokenContract_ParseTransferWithMetadata(t *testing.T) {
	t.Parallel()

	client := ethclienttest.NewFake(11155111)
	token := contract.NewTokenContract(client, tokenAddr, bridgeabi.WIronABI, nil)
	txHash := common.HexToHash("0xabc")
	log := ethclienttest.TransferWithMetadataLog(tokenAddr, senderAddr, depositAddr, big.NewInt(1000), []byte{0xde, 0xad}, 12, txHash)

	transfer, err := token.ParseTransferWithMetadata(&log)
	require.NoError(t, err)
	require.Equal(t, senderAddr, transfer.From)
	require.Equal(t, depositAddr, transfer.To)
	require.Equal(t, big.NewInt(1000), transfer.Value)
	require.Equal(t, []byte{0xde, 0xad}, transfer.Metadata)
	require.Equal(t, txHash, transfer.TxHash)
	require.EqualValues(t, 12, transfer.BlockNumber)
}

func TestTokenContract_DepositsQuery(t *testing.T) {
	t.Parallel()

	client := ethclienttest.NewFake(11155111)
	token := contract.NewTokenContract(client, tokenAddr, bridgeabi.WIronABI, nil)
	match := ethclienttest.TransferWithMetadataLog(tokenAddr, senderAddr, depositAddr, big.NewInt(1), nil, 10, common.HexToHash("0x01"))
	other := ethclienttest.TransferWithMetadataLog(tokenAddr, senderAddr, senderAddr, big.NewInt(1), nil, 10, common.HexToHash("0x02"))
	client.Logs = []types.Log{match, other}

	logs, err := client.FilterLogs(context.Background(), token.DepositsQuery(depositAddr, 5, 20))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, match.TxHash, logs[0].TxHash)
}
