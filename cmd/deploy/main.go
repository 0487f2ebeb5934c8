// cmd/deploy/main.go — deploys the Libro contract suite and funds the
// paymasters.
//
// Deploy order:
//  1. LibroNFT(tokenURI)
//  2. LibroPaymaster(nft, dailyLimit) + funding
//  3. Counter
//  4. ReadingLog(nft, gateway)
//  5. MockUSDC + USDCPriceConverter(usdc, priceFeed)
//  6. LibroERC20Paymaster(nft) + setTokenPriceConverter + funding
//
// Usage:
//
//	go run ./cmd/deploy/ --rpc <url> --key <hex> --chain-id <id> [--fund <wei>]
package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/librolabs/libro-paymaster/internal/readinglog"
)

const defaultTokenURI = "https://green-main-hoverfly-930.mypinata.cloud/ipfs/QmXeQG8Kd3KT6rWaDKD9Eg2MrmRR7GG2jijgFDpcWK1Dyk"

// Constructor-only ABI fragments; runtime interaction goes through the
// gateway's own bindings.
const (
	libroNFTCtorABI   = `[{"inputs":[{"name":"tokenURI_","type":"string"}],"stateMutability":"nonpayable","type":"constructor"}]`
	paymasterCtorABI  = `[{"inputs":[{"name":"nft","type":"address"},{"name":"dailyLimit","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"}]`
	emptyCtorABI      = `[{"inputs":[],"stateMutability":"nonpayable","type":"constructor"}]`
	readingLogCtorABI = `[{"inputs":[{"name":"nft","type":"address"},{"name":"gateway","type":"string"}],"stateMutability":"nonpayable","type":"constructor"}]`
	converterCtorABI  = `[{"inputs":[{"name":"asset","type":"address"},{"name":"priceFeed","type":"address"}],"stateMutability":"nonpayable","type":"constructor"}]`
	erc20PayCtorABI   = `[{"inputs":[{"name":"nft","type":"address"}],"stateMutability":"nonpayable","type":"constructor"},{"inputs":[{"name":"token","type":"address"},{"name":"converter","type":"address"}],"name":"setTokenPriceConverter","outputs":[],"stateMutability":"nonpayable","type":"function"}]`
)

func main() {
	rpcURL := flag.String("rpc", "http://localhost:8545", "EVM RPC endpoint")
	keyHex := flag.String("key", "", "deployer private key (hex, with or without 0x)")
	chainID := flag.Int64("chain-id", 300, "chain ID")
	tokenURI := flag.String("token-uri", defaultTokenURI, "LibroNFT token URI")
	gateway := flag.String("gateway", "https://green-main-hoverfly-930.mypinata.cloud/ipfs/", "IPFS gateway for ReadingLog")
	dailyLimit := flag.Int64("daily-limit", 3, "sponsored transactions per wallet per day")
	priceFeed := flag.String("price-feed", "", "ETH/USD price feed address")
	fund := flag.String("fund", "200000000000000000", "ETH sent to each paymaster (wei)")
	artifactDir := flag.String("artifacts", "contracts/artifacts", "directory with compiled contract artifacts")
	flag.Parse()

	if *keyHex == "" {
		fmt.Fprintln(os.Stderr, "error: --key is required")
		os.Exit(1)
	}
	if *priceFeed == "" {
		fmt.Fprintln(os.Stderr, "error: --price-feed is required")
		os.Exit(1)
	}

	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse key: %v\n", err)
		os.Exit(1)
	}
	deployer := crypto.PubkeyToAddress(privKey.PublicKey)
	fmt.Printf("Deployer : %s\n", deployer.Hex())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := ethclient.DialContext(ctx, *rpcURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial rpc: %v\n", err)
		os.Exit(1)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privKey, big.NewInt(*chainID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "transactor: %v\n", err)
		os.Exit(1)
	}
	auth.Context = ctx

	fundWei := new(big.Int)
	if _, ok := fundWei.SetString(*fund, 10); !ok {
		fmt.Fprintf(os.Stderr, "invalid fund value: %s\n", *fund)
		os.Exit(1)
	}

	d := &deployRun{ctx: ctx, client: client, auth: auth, artifactDir: *artifactDir}

	// ── [1/6] LibroNFT ────────────────────────────────────────────────────────
	fmt.Printf("\n[1/6] Deploying LibroNFT...\n")
	nftAddr := d.deploy("LibroNFT", libroNFTCtorABI, *tokenURI)

	// The gateway relays sponsored calls from the deployer key, so the
	// deployer needs a membership NFT to pass the paymaster gate.
	mintData, err := readinglog.MintCalldata()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint calldata: %v\n", err)
		os.Exit(1)
	}
	d.sendTx(privKey, big.NewInt(*chainID), nftAddr, new(big.Int), mintData, 300000, "mint")
	fmt.Printf("  Minted membership NFT to %s\n", deployer.Hex())

	// ── [2/6] LibroPaymaster ──────────────────────────────────────────────────
	fmt.Printf("\n[2/6] Deploying LibroPaymaster(nft=%s, dailyLimit=%d)...\n", nftAddr.Hex(), *dailyLimit)
	paymasterAddr := d.deploy("LibroPaymaster", paymasterCtorABI, nftAddr, big.NewInt(*dailyLimit))
	d.fundAccount(privKey, big.NewInt(*chainID), paymasterAddr, fundWei)

	// ── [3/6] Counter ─────────────────────────────────────────────────────────
	fmt.Printf("\n[3/6] Deploying Counter...\n")
	counterAddr := d.deploy("Counter", emptyCtorABI)

	// ── [4/6] ReadingLog ──────────────────────────────────────────────────────
	fmt.Printf("\n[4/6] Deploying ReadingLog(nft=%s)...\n", nftAddr.Hex())
	readingLogAddr := d.deploy("ReadingLog", readingLogCtorABI, nftAddr, *gateway)

	// ── [5/6] MockUSDC + USDCPriceConverter ───────────────────────────────────
	fmt.Printf("\n[5/6] Deploying MockUSDC and USDCPriceConverter...\n")
	usdcAddr := d.deploy("MockUSDC", emptyCtorABI)
	converterAddr := d.deploy("USDCPriceConverter", converterCtorABI, usdcAddr, common.HexToAddress(*priceFeed))

	// ── [6/6] LibroERC20Paymaster ─────────────────────────────────────────────
	fmt.Printf("\n[6/6] Deploying LibroERC20Paymaster(nft=%s)...\n", nftAddr.Hex())
	erc20PayAddr := d.deployWithContract("LibroERC20Paymaster", erc20PayCtorABI, func(contract *bind.BoundContract) {
		tx, err := contract.Transact(auth, "setTokenPriceConverter", usdcAddr, converterAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "setTokenPriceConverter: %v\n", err)
			os.Exit(1)
		}
		d.waitMined(tx, "setTokenPriceConverter")
	}, nftAddr)
	d.fundAccount(privKey, big.NewInt(*chainID), erc20PayAddr, fundWei)

	fmt.Printf("\nDone.\n")
	fmt.Printf("  LibroNFT            : %s\n", nftAddr.Hex())
	fmt.Printf("  LibroPaymaster      : %s\n", paymasterAddr.Hex())
	fmt.Printf("  Counter             : %s\n", counterAddr.Hex())
	fmt.Printf("  ReadingLog          : %s\n", readingLogAddr.Hex())
	fmt.Printf("  MockUSDC            : %s\n", usdcAddr.Hex())
	fmt.Printf("  USDCPriceConverter  : %s\n", converterAddr.Hex())
	fmt.Printf("  LibroERC20Paymaster : %s\n", erc20PayAddr.Hex())
}

type deployRun struct {
	ctx         context.Context
	client      *ethclient.Client
	auth        *bind.TransactOpts
	artifactDir string
}

func (d *deployRun) deploy(name, ctorABI string, args ...interface{}) common.Address {
	addr := d.deployWithContract(name, ctorABI, nil, args...)
	return addr
}

func (d *deployRun) deployWithContract(name, ctorABI string, after func(*bind.BoundContract), args ...interface{}) common.Address {
	parsed, err := abi.JSON(strings.NewReader(ctorABI))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse %s ABI: %v\n", name, err)
		os.Exit(1)
	}

	addr, tx, contract, err := bind.DeployContract(d.auth, parsed, d.loadBytecode(name), d.client, args...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "deploy %s: %v\n", name, err)
		os.Exit(1)
	}
	fmt.Printf("  Tx hash : %s\n", tx.Hash().Hex())
	d.waitMined(tx, name)
	fmt.Printf("  Address : %s\n", addr.Hex())

	if after != nil {
		after(contract)
	}
	return addr
}

func (d *deployRun) waitMined(tx *types.Transaction, label string) {
	receipt, err := bind.WaitMined(d.ctx, d.client, tx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wait mined (%s): %v\n", label, err)
		os.Exit(1)
	}
	if receipt.Status == 0 {
		fmt.Fprintf(os.Stderr, "%s tx reverted\n", label)
		os.Exit(1)
	}
}

// loadBytecode reads the creation bytecode from a Hardhat-style artifact.
func (d *deployRun) loadBytecode(name string) []byte {
	path := fmt.Sprintf("%s/%s.json", d.artifactDir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read artifact %s: %v\n", path, err)
		os.Exit(1)
	}
	var artifact struct {
		Bytecode string `json:"bytecode"`
	}
	if err := json.Unmarshal(raw, &artifact); err != nil {
		fmt.Fprintf(os.Stderr, "parse artifact %s: %v\n", path, err)
		os.Exit(1)
	}
	b, err := hex.DecodeString(strings.TrimPrefix(artifact.Bytecode, "0x"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode bytecode %s: %v\n", path, err)
		os.Exit(1)
	}
	return b
}

// fundAccount sends wei to a freshly deployed paymaster.
func (d *deployRun) fundAccount(privKey *ecdsa.PrivateKey, chainID *big.Int, to common.Address, amount *big.Int) {
	d.sendTx(privKey, chainID, to, amount, nil, 21000, "funding")
	fmt.Printf("  Funded %s with %s wei\n", to.Hex(), amount.String())
}

func (d *deployRun) sendTx(privKey *ecdsa.PrivateKey, chainID *big.Int, to common.Address, amount *big.Int, data []byte, gasLimit uint64, label string) {
	nonce, err := d.client.PendingNonceAt(d.ctx, crypto.PubkeyToAddress(privKey.PublicKey))
	if err != nil {
		fmt.Fprintf(os.Stderr, "pending nonce: %v\n", err)
		os.Exit(1)
	}
	gasPrice, err := d.client.SuggestGasPrice(d.ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "suggest gas price: %v\n", err)
		os.Exit(1)
	}

	tx := types.NewTransaction(nonce, to, amount, gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), privKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign %s tx: %v\n", label, err)
		os.Exit(1)
	}
	if err := d.client.SendTransaction(d.ctx, signed); err != nil {
		fmt.Fprintf(os.Stderr, "send %s tx: %v\n", label, err)
		os.Exit(1)
	}
	d.waitMined(signed, label)
}
