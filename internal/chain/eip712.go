package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// eip712TxType is the zkSync typed-transaction marker (0x71). A transaction
// of this type carries an EIP-712 signature over the struct below and, when
// sponsored, the paymaster params in its envelope.
const eip712TxType = 0x71

// Transaction712 is a zkSync EIP-712 transaction with paymaster params.
type Transaction712 struct {
	Nonce                *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	GasLimit             *big.Int
	To                   common.Address
	Value                *big.Int
	Data                 []byte
	ChainID              *big.Int
	From                 common.Address
	GasPerPubdata        *big.Int
	FactoryDeps          [][]byte
	Paymaster            common.Address
	PaymasterInput       []byte
}

var transaction712Types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"Transaction": {
		{Name: "txType", Type: "uint256"},
		{Name: "from", Type: "uint256"},
		{Name: "to", Type: "uint256"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "gasPerPubdataByteLimit", Type: "uint256"},
		{Name: "maxFeePerGas", Type: "uint256"},
		{Name: "maxPriorityFeePerGas", Type: "uint256"},
		{Name: "paymaster", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "factoryDeps", Type: "bytes32[]"},
		{Name: "paymasterInput", Type: "bytes"},
	},
}

// TypedData builds the EIP-712 payload signed by the sender. The domain is
// the protocol-defined {"zkSync", "2", chainID}.
func (tx *Transaction712) TypedData() apitypes.TypedData {
	deps := make([]interface{}, len(tx.FactoryDeps))
	for i, dep := range tx.FactoryDeps {
		deps[i] = hexutil.Encode(crypto.Keccak256(dep))
	}
	return apitypes.TypedData{
		Types:       transaction712Types,
		PrimaryType: "Transaction",
		Domain: apitypes.TypedDataDomain{
			Name:    "zkSync",
			Version: "2",
			ChainId: math.NewHexOrDecimal256(tx.ChainID.Int64()),
		},
		Message: apitypes.TypedDataMessage{
			"txType":                 big.NewInt(eip712TxType).String(),
			"from":                   addressToUint(tx.From),
			"to":                     addressToUint(tx.To),
			"gasLimit":               tx.GasLimit.String(),
			"gasPerPubdataByteLimit": tx.GasPerPubdata.String(),
			"maxFeePerGas":           tx.MaxFeePerGas.String(),
			"maxPriorityFeePerGas":   tx.MaxPriorityFeePerGas.String(),
			"paymaster":              addressToUint(tx.Paymaster),
			"nonce":                  tx.Nonce.String(),
			"value":                  tx.Value.String(),
			"data":                   hexutil.Encode(tx.Data),
			"factoryDeps":            deps,
			"paymasterInput":         hexutil.Encode(tx.PaymasterInput),
		},
	}
}

// SigningHash returns keccak256(0x1901 || domainSeparator || structHash).
func (tx *Transaction712) SigningHash() (common.Hash, error) {
	typed := tx.TypedData()
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return common.Hash{}, fmt.Errorf("typed data hash: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// paymasterParams is the trailing [paymaster, input] pair of the envelope.
type paymasterParams struct {
	Paymaster common.Address
	Input     []byte
}

// tx712Envelope is the RLP layout of a signed type-0x71 transaction. Field
// order is fixed by the protocol; the two empty slots hold the legacy v/r
// positions unused by this type.
type tx712Envelope struct {
	Nonce                *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	GasLimit             *big.Int
	To                   common.Address
	Value                *big.Int
	Data                 []byte
	ChainID1             *big.Int
	Empty1               []byte
	Empty2               []byte
	ChainID2             *big.Int
	From                 common.Address
	GasPerPubdata        *big.Int
	FactoryDeps          [][]byte
	Signature            []byte
	Paymaster            paymasterParams
}

// Encode serializes the signed transaction: 0x71 || rlp(envelope).
// signature is the 65-byte secp256k1 signature with V in {27, 28}.
func (tx *Transaction712) Encode(signature []byte) ([]byte, error) {
	if len(signature) != 65 {
		return nil, fmt.Errorf("invalid signature length %d", len(signature))
	}
	deps := tx.FactoryDeps
	if deps == nil {
		deps = [][]byte{}
	}
	payload, err := rlp.EncodeToBytes(&tx712Envelope{
		Nonce:                tx.Nonce,
		MaxPriorityFeePerGas: tx.MaxPriorityFeePerGas,
		MaxFeePerGas:         tx.MaxFeePerGas,
		GasLimit:             tx.GasLimit,
		To:                   tx.To,
		Value:                tx.Value,
		Data:                 tx.Data,
		ChainID1:             tx.ChainID,
		Empty1:               []byte{},
		Empty2:               []byte{},
		ChainID2:             tx.ChainID,
		From:                 tx.From,
		GasPerPubdata:        tx.GasPerPubdata,
		FactoryDeps:          deps,
		Signature:            signature,
		Paymaster: paymasterParams{
			Paymaster: tx.Paymaster,
			Input:     tx.PaymasterInput,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rlp encode: %w", err)
	}
	return append([]byte{eip712TxType}, payload...), nil
}

func addressToUint(addr common.Address) string {
	return new(big.Int).SetBytes(addr.Bytes()).String()
}
