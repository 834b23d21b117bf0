package types

import "math/big"

// Account holds the native-currency balance tracked for a participant (or the
// module escrow vault). The ledger supports a single unit of value.
type Account struct {
	Nonce   uint64
	Balance *big.Int
}

// Copy returns a deep copy so callers can mutate the result freely.
func (a *Account) Copy() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
