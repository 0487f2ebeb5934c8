// cmd/checkbal/main.go — prints paymaster balances and a wallet's
// sponsorship eligibility.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/librolabs/libro-paymaster/internal/chain"
	"github.com/librolabs/libro-paymaster/internal/config"
	"github.com/librolabs/libro-paymaster/internal/paymaster"
)

func main() {
	rpcURL := flag.String("rpc", "https://sepolia.era.zksync.dev", "RPC endpoint")
	chainID := flag.Int64("chain-id", 300, "chain ID")
	keyHex := flag.String("key", "", "signer private key (hex)")
	generalAddr := flag.String("paymaster", "", "LibroPaymaster address")
	erc20Addr := flag.String("erc20-paymaster", "", "LibroERC20Paymaster address")
	nftAddr := flag.String("nft", "", "LibroNFT address")
	walletHex := flag.String("wallet", "", "wallet to check eligibility for")
	flag.Parse()

	if *keyHex == "" || *generalAddr == "" || *nftAddr == "" {
		fmt.Fprintln(os.Stderr, "error: --key, --paymaster and --nft are required")
		os.Exit(1)
	}

	cfg := &config.Config{}
	cfg.Chain.RPCURL = *rpcURL
	cfg.Chain.ChainID = *chainID
	cfg.Chain.SignerKey = *keyHex
	cfg.Chain.GasPerPubdata = 50_000
	cfg.Paymaster.GeneralAddress = *generalAddr
	cfg.Paymaster.ERC20Address = *erc20Addr
	cfg.Paymaster.NFTAddress = *nftAddr

	client, err := chain.NewClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chain client: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	balance, err := client.EthBalance(ctx, client.GeneralPaymaster())
	if err != nil {
		fmt.Fprintf(os.Stderr, "paymaster balance: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("LibroPaymaster      : %s (%s ETH)\n",
		client.GeneralPaymaster().Hex(), paymaster.FormatWei(balance))

	if *erc20Addr != "" {
		erc20Bal, err := client.EthBalance(ctx, client.ERC20Paymaster())
		if err != nil {
			fmt.Fprintf(os.Stderr, "erc20 paymaster balance: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("LibroERC20Paymaster : %s (%s ETH)\n",
			client.ERC20Paymaster().Hex(), paymaster.FormatWei(erc20Bal))
	}

	if *walletHex == "" {
		return
	}
	wallet := common.HexToAddress(*walletHex)
	fmt.Printf("\nWallet %s\n", wallet.Hex())

	banned, err := client.BanStatus(ctx, wallet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ban status: %v\n", err)
		os.Exit(1)
	}
	isOwner, err := client.NftOwnership(ctx, wallet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nft ownership: %v\n", err)
		os.Exit(1)
	}
	limit, err := client.DailyLimit(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daily limit: %v\n", err)
		os.Exit(1)
	}
	state, err := client.DailyLimitState(ctx, wallet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daily limit state: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("  banned        : %v\n", banned)
	fmt.Printf("  nft owner     : %v\n", isOwner)
	fmt.Printf("  daily tx count: %s / %s\n", state.Count, limit)

	snap := paymaster.EligibilitySnapshot{
		IsBanned:             banned,
		IsNftOwner:           isOwner,
		DailyTxCount:         state.Count,
		DailyLimit:           limit,
		HasReachedDailyLimit: state.Count != nil && limit != nil && state.Count.Cmp(limit) >= 0,
	}
	decision := paymaster.Evaluate(paymaster.General(), snap)
	if decision.Available {
		fmt.Println("  eligible      : yes")
	} else {
		fmt.Printf("  eligible      : no (%s)\n", decision.Reason)
	}
}
