package wallet

import (
	"context"

	"github.com/poolboard/poolboard/internal/types"
)

// Connection is the wallet's connection state. Address is empty when
// Connected is false.
type Connection struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

// Wallet is the boundary to the user's wallet. SignAndSubmit returns an error
// wrapping types.ErrWalletRejected when the user declines to sign.
type Wallet interface {
	Connection() Connection
	SignAndSubmit(ctx context.Context, payload types.TxPayload) (types.TxReceipt, error)
}
