package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iron-fish/ironfish-bridge/entity"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		From, To entity.BridgeRequestStatus
		Allowed  bool
	}{
		{entity.StatusCreated, entity.StatusPendingDestinationMintTransactionCreation, true},
		{entity.StatusCreated, entity.StatusConfirmed, false},
		{entity.StatusPendingSourceBurnTransactionCreation, entity.StatusPendingSourceBurnTransactionConfirmation, true},
		{entity.StatusPendingDestinationMintTransactionCreation, entity.StatusPendingOnDestinationChain, true},
		{entity.StatusPendingOnDestinationChain, entity.StatusConfirmed, true},
		{entity.StatusPendingDestinationMintTransactionConfirmation, entity.StatusFailed, true},
		{entity.StatusConfirmed, entity.StatusFailed, false},
		{entity.StatusFailed, entity.StatusCreated, false},
	}
	for _, test := range tests {
		require.Equal(t, test.Allowed, CanTransition(test.From, test.To), "%s -> %s", test.From, test.To)
	}
}

func TestPredecessors(t *testing.T) {
	t.Parallel()

	require.ElementsMatch(t, []entity.BridgeRequestStatus{
		entity.StatusPendingDestinationMintTransactionConfirmation,
		entity.StatusPendingDestinationReleaseTransactionConfirmation,
		entity.StatusPendingOnDestinationChain,
	}, Predecessors(entity.StatusConfirmed))

	require.Len(t, Predecessors(entity.StatusFailed), 9)
	require.Empty(t, Predecessors(entity.StatusCreated))
}
