package escrow

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// FungibleAsset is the capability surface the engine requires from the asset
// it holds in custody. Any conforming implementation may be substituted
// without engine changes; the engine interprets nothing beyond success or
// failure of a transfer.
type FungibleAsset interface {
	// TransferFrom pulls amount from owner into recipient. Implementations
	// that model approvals check the owner's allowance for the recipient.
	TransferFrom(owner, recipient [20]byte, amount *big.Int) error
	// Transfer moves amount from sender to recipient.
	Transfer(sender, recipient [20]byte, amount *big.Int) error
	// BalanceOf reports the amount held by the account.
	BalanceOf(account [20]byte) *big.Int
	// Decimals reports the asset's display precision.
	Decimals() uint8
}

var vaultDomain = []byte("escrow/order-vault")

// OrderVaultAddress derives the deterministic custody address for an order.
// Funds pulled in by fund sit at this address on the asset ledger until a
// terminal transition pays them out, so custody is externally auditable via
// BalanceOf.
func OrderVaultAddress(id [32]byte) [20]byte {
	digest := ethcrypto.Keccak256Hash(vaultDomain, id[:])
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}
