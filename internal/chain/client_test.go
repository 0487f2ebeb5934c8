package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/librolabs/libro-paymaster/internal/config"
	"github.com/librolabs/libro-paymaster/internal/paymaster"
)

const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// rpcStub is a minimal JSON-RPC endpoint recording the calls the client
// makes against it.
type rpcStub struct {
	mu       sync.Mutex
	rawTx    string
	feeCalls []json.RawMessage
}

func (s *rpcStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result any
		switch req.Method {
		case "eth_getTransactionCount":
			result = "0x5"
		case "eth_sendRawTransaction":
			var raw string
			if err := json.Unmarshal(req.Params[0], &raw); err == nil {
				s.mu.Lock()
				s.rawTx = raw
				s.mu.Unlock()
			}
			result = "0x" + strings.Repeat("ab", 32)
		case "zks_estimateFee":
			s.mu.Lock()
			s.feeCalls = append(s.feeCalls, req.Params[0])
			s.mu.Unlock()
			result = map[string]string{
				"gas_limit":                "0x7a120",
				"gas_per_pubdata_limit":    "0xc350",
				"max_fee_per_gas":          "0x77359400",
				"max_priority_fee_per_gas": "0x0",
			}
		default:
			http.Error(w, "unexpected method "+req.Method, http.StatusBadRequest)
			return
		}

		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	cfg := &config.Config{}
	cfg.Chain.RPCURL = url
	cfg.Chain.ChainID = 300
	cfg.Chain.SignerKey = testSignerKey
	cfg.Chain.GasPerPubdata = 50_000
	cfg.Paymaster.GeneralAddress = "0x4444444444444444444444444444444444444444"
	cfg.Paymaster.ERC20Address = "0x5555555555555555555555555555555555555555"
	cfg.Paymaster.NFTAddress = "0x6666666666666666666666666666666666666666"

	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// The gateway relays on its own account: the broadcast transaction must
// carry the signer as its sender even when the session request was opened
// for another wallet.
func TestSubmitSponsoredRelaysFromSigner(t *testing.T) {
	stub := &rpcStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	userWallet := common.HexToAddress("0x1111111111111111111111111111111111111111")
	req := paymaster.PaymasterRequest{
		Name: "Increment Counter",
		From: userWallet,
		To:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Data: []byte{0xd0, 0x9d, 0xe0, 0x8a},
	}
	fee := &paymaster.FeeEstimate{
		GasPrice:             big.NewInt(2_000_000_000),
		GasLimit:             big.NewInt(500_000),
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(0),
	}

	hash, err := c.SubmitSponsored(context.Background(), req, paymaster.General(), paymaster.GeneralInput(), fee)
	if err != nil {
		t.Fatalf("SubmitSponsored: %v", err)
	}
	if hash == (common.Hash{}) {
		t.Fatal("empty tx hash")
	}

	stub.mu.Lock()
	rawTx := stub.rawTx
	stub.mu.Unlock()
	if rawTx == "" {
		t.Fatal("no raw transaction broadcast")
	}
	raw, err := hexutil.Decode(rawTx)
	if err != nil {
		t.Fatalf("decode raw tx: %v", err)
	}
	if raw[0] != eip712TxType {
		t.Fatalf("type byte: got 0x%02x, want 0x71", raw[0])
	}

	var env tx712Envelope
	if err := rlp.DecodeBytes(raw[1:], &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.From != c.SignerAddress() {
		t.Errorf("tx sender: got %s, want signer %s", env.From.Hex(), c.SignerAddress().Hex())
	}
	if env.From == userWallet {
		t.Error("tx sender must be the relay signer, not the session wallet")
	}
	if env.Nonce.Int64() != 5 {
		t.Errorf("nonce: got %s, want 5", env.Nonce)
	}
	if env.Paymaster.Paymaster != c.GeneralPaymaster() {
		t.Errorf("paymaster: got %s", env.Paymaster.Paymaster.Hex())
	}

	// The signature must verify against the relayed envelope.
	signed := &Transaction712{
		Nonce:                env.Nonce,
		MaxPriorityFeePerGas: env.MaxPriorityFeePerGas,
		MaxFeePerGas:         env.MaxFeePerGas,
		GasLimit:             env.GasLimit,
		To:                   env.To,
		Value:                env.Value,
		Data:                 env.Data,
		ChainID:              env.ChainID1,
		From:                 env.From,
		GasPerPubdata:        env.GasPerPubdata,
		FactoryDeps:          env.FactoryDeps,
		Paymaster:            env.Paymaster.Paymaster,
		PaymasterInput:       env.Paymaster.Input,
	}
	signingHash, err := signed.SigningHash()
	if err != nil {
		t.Fatal(err)
	}
	sig := append([]byte{}, env.Signature...)
	sig[64] -= 27
	pub, err := crypto.SigToPub(signingHash.Bytes(), sig)
	if err != nil {
		t.Fatal(err)
	}
	if got := crypto.PubkeyToAddress(*pub); got != c.SignerAddress() {
		t.Errorf("signature recovers %s, want %s", got.Hex(), c.SignerAddress().Hex())
	}
}

func TestEstimateFeeSimulatesAsSigner(t *testing.T) {
	stub := &rpcStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	req := paymaster.PaymasterRequest{
		Name: "Increment Counter",
		From: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		To:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Data: []byte{0xd0, 0x9d, 0xe0, 0x8a},
	}

	est, err := c.EstimateFee(context.Background(), req, paymaster.General())
	if err != nil {
		t.Fatalf("EstimateFee: %v", err)
	}
	if est.GasLimit.Int64() != 500_000 {
		t.Errorf("gas limit: got %s", est.GasLimit)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.feeCalls) != 1 {
		t.Fatalf("expected 1 fee call, got %d", len(stub.feeCalls))
	}
	var call struct {
		From common.Address `json:"from"`
	}
	if err := json.Unmarshal(stub.feeCalls[0], &call); err != nil {
		t.Fatal(err)
	}
	if call.From != c.SignerAddress() {
		t.Errorf("estimate from: got %s, want signer %s", call.From.Hex(), c.SignerAddress().Hex())
	}
}
