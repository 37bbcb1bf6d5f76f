package blockchain

import (
	"math/big"
	"testing"
)

func TestAccountRLPRoundTrip(t *testing.T) {
	var storageRoot, codeHash [32]byte
	storageRoot[0] = 0xAB
	codeHash[31] = 0xCD

	want := Account{
		Nonce:       7,
		Balance:     big.NewInt(1_000_000),
		StorageRoot: storageRoot,
		CodeHash:    codeHash,
	}

	got, err := DecodeAccountRLP(want.EncodeRLP())
	if err != nil {
		t.Fatalf("DecodeAccountRLP() failed: %v", err)
	}
	if got.Nonce != want.Nonce {
		t.Errorf("Nonce = %d, want %d", got.Nonce, want.Nonce)
	}
	if got.Balance.Cmp(want.Balance) != 0 {
		t.Errorf("Balance = %s, want %s", got.Balance, want.Balance)
	}
	if got.StorageRoot != want.StorageRoot {
		t.Errorf("StorageRoot = %x, want %x", got.StorageRoot, want.StorageRoot)
	}
	if got.CodeHash != want.CodeHash {
		t.Errorf("CodeHash = %x, want %x", got.CodeHash, want.CodeHash)
	}
}

func TestAccountRLPZeroValueRoundTrips(t *testing.T) {
	// The empty account (nonce 0, nil balance, zero hashes) is what a
	// freshly created account looks like before any write.
	var zero Account
	got, err := DecodeAccountRLP(zero.EncodeRLP())
	if err != nil {
		t.Fatalf("DecodeAccountRLP() failed: %v", err)
	}
	if got.Nonce != 0 {
		t.Errorf("Nonce = %d, want 0", got.Nonce)
	}
	if got.Balance.Sign() != 0 {
		t.Errorf("Balance = %s, want 0", got.Balance)
	}
	if got.StorageRoot != ([32]byte{}) {
		t.Errorf("StorageRoot = %x, want zero", got.StorageRoot)
	}
	if got.CodeHash != ([32]byte{}) {
		t.Errorf("CodeHash = %x, want zero", got.CodeHash)
	}
}

func TestDecodeAccountRLPRejectsWrongFieldCount(t *testing.T) {
	if _, err := DecodeAccountRLP([]byte{0xC0}); err == nil {
		t.Error("DecodeAccountRLP(empty list) should fail: wrong field count")
	}
}
