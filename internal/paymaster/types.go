package paymaster

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// PaymasterRequest is a pending user intent to call a contract under
// sponsorship. Immutable once held by a session; a new Open replaces it.
type PaymasterRequest struct {
	Name  string
	From  common.Address // zero value: defaults to the session wallet
	To    common.Address
	Data  []byte
	Value *big.Int // nil means zero
}

// Sender resolves the effective sender for a session wallet.
func (r PaymasterRequest) Sender(wallet common.Address) common.Address {
	if r.From != (common.Address{}) {
		return r.From
	}
	return wallet
}

// TxValue returns the transfer amount, defaulting to zero.
func (r PaymasterRequest) TxValue() *big.Int {
	if r.Value == nil {
		return new(big.Int)
	}
	return r.Value
}

// ParseRequest validates raw request fields and builds a PaymasterRequest.
// to must be a well-formed 20-byte hex address and data well-formed hex;
// anything else fails with ErrInvalidRequest before any chain interaction.
func ParseRequest(name, from, to, data string, value *big.Int) (PaymasterRequest, error) {
	if strings.TrimSpace(name) == "" {
		return PaymasterRequest{}, fmt.Errorf("%w: empty request name", ErrInvalidRequest)
	}
	if !common.IsHexAddress(to) {
		return PaymasterRequest{}, fmt.Errorf("%w: malformed target address %q", ErrInvalidRequest, to)
	}
	payload, err := decodeHex(data)
	if err != nil {
		return PaymasterRequest{}, fmt.Errorf("%w: malformed call data: %v", ErrInvalidRequest, err)
	}
	req := PaymasterRequest{
		Name: name,
		To:   common.HexToAddress(to),
		Data: payload,
	}
	if from != "" {
		if !common.IsHexAddress(from) {
			return PaymasterRequest{}, fmt.Errorf("%w: malformed sender address %q", ErrInvalidRequest, from)
		}
		req.From = common.HexToAddress(from)
	}
	if value != nil {
		if value.Sign() < 0 {
			return PaymasterRequest{}, fmt.Errorf("%w: negative value", ErrInvalidRequest)
		}
		req.Value = new(big.Int).Set(value)
	}
	return req, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return []byte{}, nil
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	return hex.DecodeString(s)
}

// StrategyKind tags the two sponsorship variants.
type StrategyKind string

const (
	// KindGeneral is flat sponsorship gated by daily count, NFT ownership
	// and ban status.
	KindGeneral StrategyKind = "general"
	// KindApprovalBased pays the fee in a selected ERC-20 token, converted
	// from the ETH-denominated cost by the on-chain price oracle.
	KindApprovalBased StrategyKind = "approval"
)

// ERC20Token describes a fee token accepted by the approval-based paymaster.
type ERC20Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
}

// Strategy is the tagged union of the two sponsorship variants. Token is
// meaningful only for KindApprovalBased.
type Strategy struct {
	Kind  StrategyKind
	Token *ERC20Token
}

// General returns the flat-sponsorship strategy.
func General() Strategy { return Strategy{Kind: KindGeneral} }

// ApprovalBased returns the token-fee strategy. A nil token means "no fee
// token selected yet"; confirm is not permitted until one is set.
func ApprovalBased(token *ERC20Token) Strategy {
	return Strategy{Kind: KindApprovalBased, Token: token}
}

// FeeEstimate holds the chain's prediction for a not-yet-submitted call.
// All amounts are integers in base units (wei).
type FeeEstimate struct {
	GasPrice             *big.Int
	GasLimit             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Cost is maxFeePerGas * gasLimit.
func (f *FeeEstimate) Cost() *big.Int {
	if f == nil || f.GasLimit == nil || f.MaxFeePerGas == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(f.MaxFeePerGas, f.GasLimit)
}

// TxStatus is the ledger-confirmed outcome of a submitted transaction.
// The empty string denotes "not yet known".
type TxStatus string

const (
	StatusUnknown  TxStatus = ""
	StatusSuccess  TxStatus = "success"
	StatusReverted TxStatus = "reverted"
)

// TxOutcome records the submitted transaction and its terminal status.
type TxOutcome struct {
	TxHash common.Hash
	Status TxStatus
}

// DailyLimitState mirrors the paymaster contract's checkDailyLimit view.
type DailyLimitState struct {
	Reset   bool
	Reached bool
	Count   *big.Int
}
