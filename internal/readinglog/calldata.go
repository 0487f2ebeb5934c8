// Package readinglog builds the calldata for the Libro contracts so that
// sponsored requests can be assembled server-side.
package readinglog

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/librolabs/libro-paymaster/internal/paymaster"
)

const readingLogABI = `[
	{"inputs":[
		{"name":"title","type":"string"},
		{"name":"author","type":"string"},
		{"name":"isbn","type":"string"},
		{"name":"tokenURI","type":"string"}
	],"name":"createReadingLog","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const counterABI = `[
	{"inputs":[],"name":"increment","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"count","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const libroNFTABI = `[
	{"inputs":[],"name":"mint","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var (
	logABI = mustABI(readingLogABI)
	cntABI = mustABI(counterABI)
	nftABI = mustABI(libroNFTABI)
)

func mustABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("readinglog: bad ABI: %v", err))
	}
	return parsed
}

// CreateReadingLogRequest assembles the sponsored request for a new log
// entry. tokenURI is the IPFS hash of the pinned metadata document.
func CreateReadingLogRequest(wallet, contract common.Address, title, author, isbn, tokenURI string) (paymaster.PaymasterRequest, error) {
	if title == "" || author == "" {
		return paymaster.PaymasterRequest{}, fmt.Errorf("title and author are required")
	}
	data, err := logABI.Pack("createReadingLog", title, author, isbn, tokenURI)
	if err != nil {
		return paymaster.PaymasterRequest{}, fmt.Errorf("pack createReadingLog: %w", err)
	}
	return paymaster.PaymasterRequest{
		Name: "Create Reading Log",
		From: wallet,
		To:   contract,
		Data: data,
	}, nil
}

// IncrementCounterRequest assembles the sponsored request for the demo
// counter contract.
func IncrementCounterRequest(wallet, contract common.Address) (paymaster.PaymasterRequest, error) {
	data, err := cntABI.Pack("increment")
	if err != nil {
		return paymaster.PaymasterRequest{}, fmt.Errorf("pack increment: %w", err)
	}
	return paymaster.PaymasterRequest{
		Name: "Increment Counter",
		From: wallet,
		To:   contract,
		Data: data,
	}, nil
}

// MintCalldata packs the membership NFT mint call. Minting is not
// sponsored; the caller pays its own gas.
func MintCalldata() ([]byte, error) {
	data, err := nftABI.Pack("mint")
	if err != nil {
		return nil, fmt.Errorf("pack mint: %w", err)
	}
	return data, nil
}
