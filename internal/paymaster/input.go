package paymaster

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// IPaymasterFlow — the paymaster input selectors defined by the zkSync
// system contracts: general(bytes) and approvalBased(address,uint256,bytes).
const paymasterFlowABI = `[
	{"type":"function","name":"general","inputs":[
		{"name":"input","type":"bytes"}
	],"stateMutability":"nonpayable"},
	{"type":"function","name":"approvalBased","inputs":[
		{"name":"_token","type":"address"},
		{"name":"_minAllowance","type":"uint256"},
		{"name":"_innerInput","type":"bytes"}
	],"stateMutability":"nonpayable"}
]`

var flowABI = mustParseABI(paymasterFlowABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("parse paymaster flow ABI: %v", err))
	}
	return parsed
}

// GeneralInput encodes the flat-sponsorship paymaster payload.
func GeneralInput() []byte {
	input, err := flowABI.Pack("general", []byte{})
	if err != nil {
		panic(fmt.Sprintf("pack general paymaster input: %v", err))
	}
	return input
}

// ApprovalInput encodes the token-fee paymaster payload. minAllowance is the
// token amount the paymaster may pull: the current balance during estimation,
// the oracle-converted cost at submission.
func ApprovalInput(token common.Address, minAllowance *big.Int) []byte {
	if minAllowance == nil {
		minAllowance = new(big.Int)
	}
	input, err := flowABI.Pack("approvalBased", token, minAllowance, []byte{})
	if err != nil {
		panic(fmt.Sprintf("pack approval paymaster input: %v", err))
	}
	return input
}
