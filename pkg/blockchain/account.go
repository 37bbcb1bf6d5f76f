package blockchain

import (
	"fmt"
	"math/big"

	"github.com/paprikadb/paprika/pkg/rlp"
)

// Account is the value stored at an account's trie leaf: the same four
// fields the reference state machine keeps per account. StorageRoot
// and CodeHash are Keccak-256 outputs, always encoded at their full
// 32 bytes; Nonce and Balance are RLP integers, encoded at their
// minimal big-endian width.
type Account struct {
	Nonce       uint64
	Balance     *big.Int
	StorageRoot [32]byte
	CodeHash    [32]byte
}

// EncodeRLP returns acc's canonical encoding: a 4-item RLP list of
// [nonce, balance, storageRoot, codeHash].
func (acc Account) EncodeRLP() []byte {
	balance := acc.Balance
	if balance == nil {
		balance = new(big.Int)
	}
	return rlp.EncodeList([][]byte{
		rlp.EncodeBytes(new(big.Int).SetUint64(acc.Nonce).Bytes()),
		rlp.EncodeBytes(balance.Bytes()),
		rlp.EncodeBytes(acc.StorageRoot[:]),
		rlp.EncodeBytes(acc.CodeHash[:]),
	})
}

// DecodeAccountRLP parses an Account previously produced by
// Account.EncodeRLP.
func DecodeAccountRLP(b []byte) (Account, error) {
	items, _, err := rlp.DecodeList(b)
	if err != nil {
		return Account{}, fmt.Errorf("blockchain: decode account: %w", err)
	}
	if len(items) != 4 {
		return Account{}, fmt.Errorf("blockchain: decode account: expected 4 fields, got %d", len(items))
	}
	if len(items[0]) > 8 {
		return Account{}, fmt.Errorf("blockchain: decode account: nonce field overflows uint64")
	}
	if len(items[2]) > 32 || len(items[3]) > 32 {
		return Account{}, fmt.Errorf("blockchain: decode account: hash field longer than 32 bytes")
	}

	acc := Account{
		Nonce:   new(big.Int).SetBytes(items[0]).Uint64(),
		Balance: new(big.Int).SetBytes(items[1]),
	}
	copy(acc.StorageRoot[32-len(items[2]):], items[2])
	copy(acc.CodeHash[32-len(items[3]):], items[3])
	return acc, nil
}

// mustDecodeAccount decodes bytes this package itself wrote through
// Account.EncodeRLP; a failure here means the stored encoding was
// corrupted, not a recoverable lookup outcome.
func mustDecodeAccount(raw []byte) Account {
	acc, err := DecodeAccountRLP(raw)
	if err != nil {
		panic(fmt.Sprintf("blockchain: corrupt account encoding: %v", err))
	}
	return acc
}
