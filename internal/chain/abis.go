package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract view surfaces the gateway reads. Kept as raw ABI JSON and parsed
// once at init, the same way the deploy tooling packs constructor calldata.

const libroPaymasterABI = `[
	{"type":"function","name":"dailyLimit","inputs":[],"outputs":[
		{"name":"","type":"uint256"}
	],"stateMutability":"view"},
	{"type":"function","name":"checkDailyLimit","inputs":[
		{"name":"account","type":"address"}
	],"outputs":[
		{"name":"reset","type":"bool"},
		{"name":"reached","type":"bool"},
		{"name":"count","type":"uint256"}
	],"stateMutability":"view"},
	{"type":"function","name":"isBanned","inputs":[
		{"name":"account","type":"address"}
	],"outputs":[
		{"name":"","type":"bool"}
	],"stateMutability":"view"}
]`

const erc20PaymasterABI = `[
	{"type":"function","name":"getEthPriceInToken","inputs":[
		{"name":"tokenAddress","type":"address"},
		{"name":"ethAmount","type":"uint256"}
	],"outputs":[
		{"name":"tokenAmount","type":"uint256"},
		{"name":"decimals","type":"uint8"}
	],"stateMutability":"view"}
]`

const erc20ABI = `[
	{"type":"function","name":"balanceOf","inputs":[
		{"name":"account","type":"address"}
	],"outputs":[
		{"name":"","type":"uint256"}
	],"stateMutability":"view"},
	{"type":"function","name":"decimals","inputs":[],"outputs":[
		{"name":"","type":"uint8"}
	],"stateMutability":"view"},
	{"type":"function","name":"symbol","inputs":[],"outputs":[
		{"name":"","type":"string"}
	],"stateMutability":"view"}
]`

const erc721ABI = `[
	{"type":"function","name":"balanceOf","inputs":[
		{"name":"owner","type":"address"}
	],"outputs":[
		{"name":"","type":"uint256"}
	],"stateMutability":"view"}
]`

var (
	paymasterABI = mustABI("LibroPaymaster", libroPaymasterABI)
	tokenPayABI  = mustABI("LibroERC20Paymaster", erc20PaymasterABI)
	tokenABI     = mustABI("IERC20", erc20ABI)
	nftABI       = mustABI("IERC721", erc721ABI)
)

func mustABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse %s ABI: %v", name, err))
	}
	return parsed
}
