package bridge

import (
	"github.com/iron-fish/ironfish-bridge/entity"
)

var transitions = map[entity.BridgeRequestStatus][]entity.BridgeRequestStatus{
	entity.StatusCreated: {
		entity.StatusPendingPretransfer,
		entity.StatusPendingDestinationMintTransactionCreation,
	},
	entity.StatusPendingPretransfer: {
		entity.StatusPendingDestinationMintTransactionCreation,
	},
	entity.StatusPendingSourceBurnTransactionCreation: {
		entity.StatusPendingSourceBurnTransactionConfirmation,
	},
	entity.StatusPendingSourceBurnTransactionConfirmation: {
		entity.StatusPendingDestinationReleaseTransactionCreation,
	},
	entity.StatusPendingDestinationMintTransactionCreation: {
		entity.StatusPendingDestinationMintTransactionConfirmation,
		entity.StatusPendingOnDestinationChain,
	},
	entity.StatusPendingDestinationMintTransactionConfirmation: {
		entity.StatusConfirmed,
	},
	entity.StatusPendingDestinationReleaseTransactionCreation: {
		entity.StatusPendingDestinationReleaseTransactionConfirmation,
		entity.StatusPendingOnDestinationChain,
	},
	entity.StatusPendingDestinationReleaseTransactionConfirmation: {
		entity.StatusConfirmed,
	},
	entity.StatusPendingOnDestinationChain: {
		entity.StatusConfirmed,
	},
}

// CanTransition reports whether the lifecycle allows moving from -> to.
// Every non-terminal status may fail; terminal statuses never move.
func CanTransition(from, to entity.BridgeRequestStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == entity.StatusFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Predecessors lists the statuses a request may be in to move to `to`.
func Predecessors(to entity.BridgeRequestStatus) []entity.BridgeRequestStatus {
	res := make([]entity.BridgeRequestStatus, 0, 4)
	for _, from := range entity.AllStatuses {
		if CanTransition(from, to) {
			res = append(res, from)
		}
	}
	return res
}

func nonTerminalStatuses() []entity.BridgeRequestStatus {
	res := make([]entity.BridgeRequestStatus, 0, len(entity.AllStatuses))
	for _, s := range entity.AllStatuses {
		if !s.IsTerminal() {
			res = append(res, s)
		}
	}
	return res
}
