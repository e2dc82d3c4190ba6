package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer is the wallet surface the swap pipeline needs: transaction signing
// for approvals and router calls, and EIP-712 typed-data signing for Permit2.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
	SignTypedData(typed apitypes.TypedData) ([]byte, error)
}
