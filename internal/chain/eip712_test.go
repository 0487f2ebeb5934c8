package chain

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

func sampleTx() *Transaction712 {
	return &Transaction712{
		Nonce:                big.NewInt(7),
		MaxPriorityFeePerGas: big.NewInt(0),
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		GasLimit:             big.NewInt(500_000),
		To:                   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Value:                big.NewInt(0),
		Data:                 []byte{0xd0, 0x9d, 0xe0, 0x8a},
		ChainID:              big.NewInt(300),
		From:                 common.HexToAddress("0x1111111111111111111111111111111111111111"),
		GasPerPubdata:        big.NewInt(50_000),
		Paymaster:            common.HexToAddress("0x4444444444444444444444444444444444444444"),
		PaymasterInput:       []byte{0x8c, 0x5a, 0x34, 0x45},
	}
}

func TestSigningHashDeterministic(t *testing.T) {
	tx := sampleTx()
	h1, err := tx.SigningHash()
	if err != nil {
		t.Fatalf("SigningHash: %v", err)
	}
	h2, err := tx.SigningHash()
	if err != nil {
		t.Fatalf("SigningHash: %v", err)
	}
	if h1 != h2 {
		t.Fatal("signing hash is not deterministic")
	}
}

func TestSigningHashCoversPaymaster(t *testing.T) {
	tx := sampleTx()
	base, _ := tx.SigningHash()

	tx.Paymaster = common.HexToAddress("0x5555555555555555555555555555555555555555")
	changed, _ := tx.SigningHash()
	if base == changed {
		t.Fatal("paymaster address not covered by the signing hash")
	}

	tx = sampleTx()
	tx.PaymasterInput = append(tx.PaymasterInput, 0x01)
	changed, _ = tx.SigningHash()
	if base == changed {
		t.Fatal("paymaster input not covered by the signing hash")
	}
}

func TestSigningHashRecoverable(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	tx := sampleTx()
	hash, err := tx.SigningHash()
	if err != nil {
		t.Fatal(err)
	}
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		t.Fatal(err)
	}

	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := crypto.PubkeyToAddress(*pub), crypto.PubkeyToAddress(key.PublicKey); got != want {
		t.Errorf("recovered %s, want %s", got.Hex(), want.Hex())
	}
}

func TestEncodeEnvelope(t *testing.T) {
	tx := sampleTx()
	sig := bytes.Repeat([]byte{0x01}, 64)
	sig = append(sig, 27)

	raw, err := tx.Encode(sig)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if raw[0] != eip712TxType {
		t.Fatalf("type byte: got 0x%02x, want 0x71", raw[0])
	}

	var env tx712Envelope
	if err := rlp.DecodeBytes(raw[1:], &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}

	if env.Nonce.Cmp(tx.Nonce) != 0 {
		t.Errorf("nonce: got %s", env.Nonce)
	}
	if env.To != tx.To || env.From != tx.From {
		t.Error("to/from mismatch")
	}
	if env.ChainID1.Cmp(tx.ChainID) != 0 || env.ChainID2.Cmp(tx.ChainID) != 0 {
		t.Error("chain id mismatch")
	}
	if len(env.Empty1) != 0 || len(env.Empty2) != 0 {
		t.Error("legacy slots must be empty")
	}
	if !bytes.Equal(env.Signature, sig) {
		t.Error("signature mismatch")
	}
	if env.Paymaster.Paymaster != tx.Paymaster {
		t.Error("paymaster address mismatch")
	}
	if !bytes.Equal(env.Paymaster.Input, tx.PaymasterInput) {
		t.Error("paymaster input mismatch")
	}
}

func TestEncodeRejectsBadSignature(t *testing.T) {
	if _, err := sampleTx().Encode([]byte{0x01}); err == nil {
		t.Fatal("expected error for short signature")
	}
}

func TestEncodeDeterministic(t *testing.T) {
	sig := bytes.Repeat([]byte{0x02}, 65)
	a, err := sampleTx().Encode(sig)
	if err != nil {
		t.Fatal(err)
	}
	b, err := sampleTx().Encode(sig)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("encoding is not deterministic")
	}
}
