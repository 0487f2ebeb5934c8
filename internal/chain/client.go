package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/librolabs/libro-paymaster/internal/config"
	"github.com/librolabs/libro-paymaster/internal/paymaster"
)

const receiptPollInterval = 3 * time.Second

// Client is the ledger gateway: read-only eligibility and fee views for the
// session poller, plus signed type-0x71 submission for Confirm. It
// implements paymaster.ChainReader and paymaster.TxSubmitter.
type Client struct {
	eth *ethclient.Client
	rpc *rpc.Client

	chainID    *big.Int
	signerKey  *ecdsa.PrivateKey
	signerAddr common.Address

	generalPaymaster common.Address
	erc20Paymaster   common.Address
	nft              common.Address
	gasPerPubdata    *big.Int
}

func NewClient(cfg *config.Config) (*Client, error) {
	rpcClient, err := rpc.Dial(cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	signerKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Chain.SignerKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}

	return &Client{
		eth:              ethclient.NewClient(rpcClient),
		rpc:              rpcClient,
		chainID:          big.NewInt(cfg.Chain.ChainID),
		signerKey:        signerKey,
		signerAddr:       crypto.PubkeyToAddress(signerKey.PublicKey),
		generalPaymaster: common.HexToAddress(cfg.Paymaster.GeneralAddress),
		erc20Paymaster:   common.HexToAddress(cfg.Paymaster.ERC20Address),
		nft:              common.HexToAddress(cfg.Paymaster.NFTAddress),
		gasPerPubdata:    big.NewInt(cfg.Chain.GasPerPubdata),
	}, nil
}

// ChainID returns the configured chain ID.
func (c *Client) ChainID() *big.Int { return c.chainID }

// SignerAddress is the gateway wallet that signs sponsored transactions.
func (c *Client) SignerAddress() common.Address { return c.signerAddr }

// GeneralPaymaster returns the flat-sponsorship paymaster address.
func (c *Client) GeneralPaymaster() common.Address { return c.generalPaymaster }

// ERC20Paymaster returns the token-fee paymaster address.
func (c *Client) ERC20Paymaster() common.Address { return c.erc20Paymaster }

// EthBalance reads the native balance of an account.
func (c *Client) EthBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, paymaster.ErrChainUnavailable
	}
	return c.eth.BalanceAt(ctx, account, nil)
}

// ── Reads (paymaster.ChainReader) ──────────────────────────────────────────

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, paymaster.ErrChainUnavailable
	}
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %v", paymaster.ErrChainUnavailable, err)
	}
	return price, nil
}

func (c *Client) DailyLimit(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := c.view(ctx, c.generalPaymaster, paymasterABI, "dailyLimit", &out); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) DailyLimitState(ctx context.Context, account common.Address) (paymaster.DailyLimitState, error) {
	var out []interface{}
	if err := c.view(ctx, c.generalPaymaster, paymasterABI, "checkDailyLimit", &out, account); err != nil {
		return paymaster.DailyLimitState{}, err
	}
	return paymaster.DailyLimitState{
		Reset:   out[0].(bool),
		Reached: out[1].(bool),
		Count:   out[2].(*big.Int),
	}, nil
}

func (c *Client) BanStatus(ctx context.Context, account common.Address) (bool, error) {
	var out []interface{}
	if err := c.view(ctx, c.generalPaymaster, paymasterABI, "isBanned", &out, account); err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (c *Client) NftOwnership(ctx context.Context, account common.Address) (bool, error) {
	var out []interface{}
	if err := c.view(ctx, c.nft, nftABI, "balanceOf", &out, account); err != nil {
		return false, err
	}
	return out[0].(*big.Int).Sign() > 0, nil
}

func (c *Client) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := c.view(ctx, token, tokenABI, "balanceOf", &out, account); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) EthPriceInToken(ctx context.Context, token common.Address, ethAmount *big.Int) (*big.Int, uint8, error) {
	var out []interface{}
	if err := c.view(ctx, c.erc20Paymaster, tokenPayABI, "getEthPriceInToken", &out, token, ethAmount); err != nil {
		return nil, 0, err
	}
	return out[0].(*big.Int), out[1].(uint8), nil
}

// view performs a read-only contract call. Failures are folded into
// ErrChainUnavailable: the poller treats them as "no data yet".
func (c *Client) view(ctx context.Context, addr common.Address, contractABI abi.ABI, method string, out *[]interface{}, args ...interface{}) error {
	if c == nil || c.eth == nil {
		return paymaster.ErrChainUnavailable
	}
	bound := bind.NewBoundContract(addr, contractABI, c.eth, c.eth, c.eth)
	if err := bound.Call(&bind.CallOpts{Context: ctx}, out, method, args...); err != nil {
		return fmt.Errorf("%w: %s: %v", paymaster.ErrChainUnavailable, method, err)
	}
	return nil
}

// ── Fee estimation ─────────────────────────────────────────────────────────

// zksFeeResult mirrors the zks_estimateFee response.
type zksFeeResult struct {
	GasLimit             *hexutil.Big `json:"gas_limit"`
	GasPerPubdataLimit   *hexutil.Big `json:"gas_per_pubdata_limit"`
	MaxFeePerGas         *hexutil.Big `json:"max_fee_per_gas"`
	MaxPriorityFeePerGas *hexutil.Big `json:"max_priority_fee_per_gas"`
}

// EstimateFee simulates the request under the chosen sponsorship strategy
// via zks_estimateFee. A revert surfaces as ErrEstimationFailed. The
// simulated sender is the gateway signer, which is also the account the
// submission later relays from. For approval-based sponsorship the estimate
// carries the signer's full token balance as the provisional allowance,
// matching how the submission later narrows it to the oracle-converted cost.
func (c *Client) EstimateFee(ctx context.Context, req paymaster.PaymasterRequest, strategy paymaster.Strategy) (*paymaster.FeeEstimate, error) {
	if c == nil || c.rpc == nil {
		return nil, paymaster.ErrChainUnavailable
	}

	pm, input, err := c.sponsorship(ctx, strategy)
	if err != nil {
		return nil, err
	}

	call := map[string]interface{}{
		"from":  c.signerAddr,
		"to":    req.To,
		"data":  hexutil.Bytes(req.Data),
		"value": (*hexutil.Big)(req.TxValue()),
		"eip712Meta": map[string]interface{}{
			"gasPerPubdata": (*hexutil.Big)(c.gasPerPubdata),
			"paymasterParams": map[string]interface{}{
				"paymaster":      pm,
				"paymasterInput": hexutil.Bytes(input),
			},
		},
	}

	var fee zksFeeResult
	if err := c.rpc.CallContext(ctx, &fee, "zks_estimateFee", call); err != nil {
		return nil, fmt.Errorf("%w: %v", paymaster.ErrEstimationFailed, err)
	}

	est := &paymaster.FeeEstimate{
		GasPrice:             (*big.Int)(fee.MaxFeePerGas),
		GasLimit:             (*big.Int)(fee.GasLimit),
		MaxFeePerGas:         (*big.Int)(fee.MaxFeePerGas),
		MaxPriorityFeePerGas: (*big.Int)(fee.MaxPriorityFeePerGas),
	}
	if est.MaxPriorityFeePerGas == nil {
		est.MaxPriorityFeePerGas = new(big.Int)
	}
	return est, nil
}

// sponsorship resolves the paymaster address and input for a strategy at
// estimation time.
func (c *Client) sponsorship(ctx context.Context, strategy paymaster.Strategy) (common.Address, []byte, error) {
	if strategy.Kind != paymaster.KindApprovalBased {
		return c.generalPaymaster, paymaster.GeneralInput(), nil
	}
	if strategy.Token == nil {
		return common.Address{}, nil, fmt.Errorf("%w: no fee token selected", paymaster.ErrEstimationFailed)
	}
	balance, err := c.TokenBalance(ctx, strategy.Token.Address, c.signerAddr)
	if err != nil {
		return common.Address{}, nil, err
	}
	return c.erc20Paymaster, paymaster.ApprovalInput(strategy.Token.Address, balance), nil
}

// ── Submission (paymaster.TxSubmitter) ─────────────────────────────────────

// SubmitSponsored signs a type-0x71 transaction carrying the paymaster
// params and broadcasts it. The gateway relays on its own account: the
// transaction sender is always the configured signer, regardless of which
// wallet opened the session. Eligibility for that wallet is enforced by
// the session before this call.
func (c *Client) SubmitSponsored(ctx context.Context, req paymaster.PaymasterRequest, strategy paymaster.Strategy, input []byte, fee *paymaster.FeeEstimate) (common.Hash, error) {
	if c == nil || c.rpc == nil {
		return common.Hash{}, paymaster.ErrChainUnavailable
	}
	if fee == nil {
		return common.Hash{}, fmt.Errorf("missing fee estimate")
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.signerAddr)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}

	pm := c.generalPaymaster
	if strategy.Kind == paymaster.KindApprovalBased {
		pm = c.erc20Paymaster
	}

	tx := &Transaction712{
		Nonce:                new(big.Int).SetUint64(nonce),
		MaxPriorityFeePerGas: fee.MaxPriorityFeePerGas,
		MaxFeePerGas:         fee.MaxFeePerGas,
		GasLimit:             fee.GasLimit,
		To:                   req.To,
		Value:                req.TxValue(),
		Data:                 req.Data,
		ChainID:              c.chainID,
		From:                 c.signerAddr,
		GasPerPubdata:        c.gasPerPubdata,
		Paymaster:            pm,
		PaymasterInput:       input,
	}

	hash, err := tx.SigningHash()
	if err != nil {
		return common.Hash{}, err
	}
	sig, err := crypto.Sign(hash.Bytes(), c.signerKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	sig[64] += 27

	raw, err := tx.Encode(sig)
	if err != nil {
		return common.Hash{}, err
	}

	var txHash common.Hash
	if err := c.rpc.CallContext(ctx, &txHash, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return common.Hash{}, fmt.Errorf("send raw transaction: %w", err)
	}
	return txHash, nil
}

// WaitReceipt polls until the transaction reaches a terminal status or ctx
// is cancelled. There is no deadline of its own: receipt tracking stops
// only when the session closes.
func (c *Client) WaitReceipt(ctx context.Context, hash common.Hash) (*paymaster.TxOutcome, error) {
	if c == nil || c.eth == nil {
		return nil, paymaster.ErrChainUnavailable
	}

	var receipt *types.Receipt
	err := retry.Do(
		func() error {
			r, err := c.eth.TransactionReceipt(ctx, hash)
			if err != nil {
				return err
			}
			receipt = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(receiptPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("wait receipt: %w", err)
	}

	status := paymaster.StatusReverted
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = paymaster.StatusSuccess
	}
	return &paymaster.TxOutcome{TxHash: hash, Status: status}, nil
}
