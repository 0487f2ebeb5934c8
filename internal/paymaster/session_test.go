package paymaster

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	testWallet = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testTarget = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func testRequest() PaymasterRequest {
	return PaymasterRequest{
		Name: "Increment Counter",
		From: testWallet,
		To:   testTarget,
		Data: []byte{0xd0, 0x9d, 0xe0, 0x8a},
	}
}

// ── Stubs ───────────────────────────────────────────────────────────────

type stubReader struct {
	banned   bool
	nftOwner bool
	limit    int64
	count    int64
	balance  *big.Int
	failAll  bool
}

func (r *stubReader) GasPrice(context.Context) (*big.Int, error) {
	if r.failAll {
		return nil, ErrChainUnavailable
	}
	return big.NewInt(2_000_000_000), nil
}

func (r *stubReader) EstimateFee(context.Context, PaymasterRequest, Strategy) (*FeeEstimate, error) {
	if r.failAll {
		return nil, ErrChainUnavailable
	}
	return &FeeEstimate{
		GasPrice:             big.NewInt(2_000_000_000),
		GasLimit:             big.NewInt(500_000),
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(0),
	}, nil
}

func (r *stubReader) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	if r.failAll {
		return nil, ErrChainUnavailable
	}
	return r.balance, nil
}

func (r *stubReader) DailyLimit(context.Context) (*big.Int, error) {
	if r.failAll {
		return nil, ErrChainUnavailable
	}
	return big.NewInt(r.limit), nil
}

func (r *stubReader) DailyLimitState(context.Context, common.Address) (DailyLimitState, error) {
	if r.failAll {
		return DailyLimitState{}, ErrChainUnavailable
	}
	return DailyLimitState{Count: big.NewInt(r.count)}, nil
}

func (r *stubReader) BanStatus(context.Context, common.Address) (bool, error) {
	if r.failAll {
		return false, ErrChainUnavailable
	}
	return r.banned, nil
}

func (r *stubReader) NftOwnership(context.Context, common.Address) (bool, error) {
	if r.failAll {
		return false, ErrChainUnavailable
	}
	return r.nftOwner, nil
}

func (r *stubReader) EthPriceInToken(_ context.Context, _ common.Address, ethAmount *big.Int) (*big.Int, uint8, error) {
	if r.failAll {
		return nil, 0, ErrChainUnavailable
	}
	// 1 ETH = 1e6 token base units.
	return new(big.Int).Div(ethAmount, big.NewInt(1_000_000_000_000)), 6, nil
}

func eligibleReader() *stubReader {
	return &stubReader{nftOwner: true, limit: 3, balance: big.NewInt(50_000_000)}
}

type stubSubmitter struct {
	mu        sync.Mutex
	submits   int
	lastInput []byte
	hash      common.Hash
	status    TxStatus
	submitErr error
	waitErr   error
	delay     time.Duration
}

func (s *stubSubmitter) SubmitSponsored(_ context.Context, _ PaymasterRequest, _ Strategy, input []byte, _ *FeeEstimate) (common.Hash, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	s.lastInput = input
	if s.submitErr != nil {
		return common.Hash{}, s.submitErr
	}
	return s.hash, nil
}

func (s *stubSubmitter) WaitReceipt(_ context.Context, hash common.Hash) (*TxOutcome, error) {
	if s.waitErr != nil {
		return nil, s.waitErr
	}
	return &TxOutcome{TxHash: hash, Status: s.status}, nil
}

func (s *stubSubmitter) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits
}

func openReadySession(t *testing.T, reader ChainReader, submitter TxSubmitter) *Session {
	t.Helper()
	s := NewSession(testWallet, reader, submitter, zap.NewNop())
	require.NoError(t, s.Open(testRequest(), nil))
	s.pollOnce(context.Background())
	require.Equal(t, StateReady, s.State())
	return s
}

// ── Lifecycle ───────────────────────────────────────────────────────────

func TestOpenRejectsInvalidRequest(t *testing.T) {
	s := NewSession(testWallet, eligibleReader(), &stubSubmitter{}, zap.NewNop())

	err := s.Open(PaymasterRequest{To: testTarget}, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	err = s.Open(PaymasterRequest{Name: "x"}, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestOpenReplacesPreviousRequest(t *testing.T) {
	s := openReadySession(t, eligibleReader(), &stubSubmitter{})

	var fired bool
	next := testRequest()
	next.Name = "Create Reading Log"
	require.NoError(t, s.Open(next, func(TxOutcome) { fired = true }))

	assert.Equal(t, StateEstimating, s.State())
	assert.Equal(t, KindGeneral, s.Strategy().Kind)
	assert.False(t, fired)
}

func TestConfirmWhileClosed(t *testing.T) {
	s := NewSession(testWallet, eligibleReader(), &stubSubmitter{}, zap.NewNop())
	assert.ErrorIs(t, s.Confirm(context.Background()), ErrRequestMissing)
}

func TestConfirmBeforeReady(t *testing.T) {
	s := NewSession(testWallet, &stubReader{failAll: true}, &stubSubmitter{}, zap.NewNop())
	require.NoError(t, s.Open(testRequest(), nil))
	s.pollOnce(context.Background())

	assert.Equal(t, StateEstimating, s.State())
	err := s.Confirm(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRequestMissing)
}

func TestConfirmNotEligible(t *testing.T) {
	reader := eligibleReader()
	reader.banned = true
	s := openReadySession(t, reader, &stubSubmitter{})

	err := s.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrNotEligible)
	assert.Contains(t, err.Error(), ReasonBanned)
}

func TestConfirmSettlesSuccessfully(t *testing.T) {
	submitter := &stubSubmitter{hash: common.HexToHash("0xbeef"), status: StatusSuccess}
	s := openReadySession(t, eligibleReader(), submitter)

	require.NoError(t, s.Confirm(context.Background()))

	assert.Equal(t, StateSettled, s.State())
	assert.Equal(t, submitter.hash, s.Outcome().TxHash)
	assert.Equal(t, StatusSuccess, s.Outcome().Status)
	assert.Equal(t, GeneralInput(), submitter.lastInput)
}

func TestConfirmRevertedReceipt(t *testing.T) {
	submitter := &stubSubmitter{hash: common.HexToHash("0xdead"), status: StatusReverted}
	s := openReadySession(t, eligibleReader(), submitter)

	require.NoError(t, s.Confirm(context.Background()))
	assert.Equal(t, StateSettled, s.State())
	assert.Equal(t, StatusReverted, s.Outcome().Status)
}

func TestConfirmSubmitFailureIsRetryable(t *testing.T) {
	submitter := &stubSubmitter{submitErr: errors.New("nonce too low")}
	s := openReadySession(t, eligibleReader(), submitter)

	err := s.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Equal(t, StateReady, s.State())
	assert.Contains(t, s.LastError(), "nonce too low")

	// The session recovers; a second confirm goes through.
	submitter.mu.Lock()
	submitter.submitErr = nil
	submitter.hash = common.HexToHash("0x01")
	submitter.status = StatusSuccess
	submitter.mu.Unlock()

	require.NoError(t, s.Confirm(context.Background()))
	assert.Equal(t, StateSettled, s.State())
}

func TestConfirmExactlyOneSubmission(t *testing.T) {
	submitter := &stubSubmitter{
		hash:   common.HexToHash("0x02"),
		status: StatusSuccess,
		delay:  50 * time.Millisecond,
	}
	s := openReadySession(t, eligibleReader(), submitter)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Confirm(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, submitter.submitCount())
	if results[0] == nil {
		assert.Error(t, results[1])
	} else {
		assert.NoError(t, results[1])
	}
}

func TestApprovalConfirmUsesConvertedAllowance(t *testing.T) {
	submitter := &stubSubmitter{hash: common.HexToHash("0x03"), status: StatusSuccess}
	s := openReadySession(t, eligibleReader(), submitter)

	token := usdc()
	require.NoError(t, s.SelectStrategy(ApprovalBased(token)))
	s.pollOnce(context.Background())
	require.Equal(t, StateReady, s.State())

	require.NoError(t, s.Confirm(context.Background()))

	// cost = 2 gwei * 500k gas = 1e15 wei → 1000 token base units.
	want := ApprovalInput(token.Address, big.NewInt(1000))
	assert.Equal(t, want, submitter.lastInput)
}

// ── Strategy selection ──────────────────────────────────────────────────

func TestSelectStrategyResetsEstimate(t *testing.T) {
	s := openReadySession(t, eligibleReader(), &stubSubmitter{})

	require.NoError(t, s.SelectStrategy(ApprovalBased(usdc())))
	assert.Equal(t, StateEstimating, s.State())
	assert.Nil(t, s.agg.Estimate())
}

func TestSelectStrategyWhileClosed(t *testing.T) {
	s := NewSession(testWallet, eligibleReader(), &stubSubmitter{}, zap.NewNop())
	assert.ErrorIs(t, s.SelectStrategy(General()), ErrRequestMissing)
}

func TestSelectStrategyLockedAfterSettle(t *testing.T) {
	submitter := &stubSubmitter{hash: common.HexToHash("0x04"), status: StatusSuccess}
	s := openReadySession(t, eligibleReader(), submitter)
	require.NoError(t, s.Confirm(context.Background()))

	err := s.SelectStrategy(ApprovalBased(usdc()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settled")
}

// ── Close ───────────────────────────────────────────────────────────────

func TestCloseAfterSuccessFiresCallbackOnce(t *testing.T) {
	submitter := &stubSubmitter{hash: common.HexToHash("0x05"), status: StatusSuccess}
	s := NewSession(testWallet, eligibleReader(), submitter, zap.NewNop())

	var calls []TxOutcome
	require.NoError(t, s.Open(testRequest(), func(out TxOutcome) { calls = append(calls, out) }))
	s.pollOnce(context.Background())
	require.NoError(t, s.Confirm(context.Background()))

	out := s.Close()
	require.Len(t, calls, 1)
	assert.Equal(t, out, calls[0])
	assert.Equal(t, StatusSuccess, calls[0].Status)
	assert.Equal(t, StateClosed, s.State())

	// A second close is a no-op for the callback.
	s.Close()
	assert.Len(t, calls, 1)
}

func TestCloseWithoutConfirmNeverFiresCallback(t *testing.T) {
	s := NewSession(testWallet, eligibleReader(), &stubSubmitter{}, zap.NewNop())

	var fired bool
	require.NoError(t, s.Open(testRequest(), func(TxOutcome) { fired = true }))
	s.pollOnce(context.Background())

	out := s.Close()
	assert.False(t, fired)
	assert.Equal(t, TxOutcome{}, out)
}

func TestCloseAfterRevertNeverFiresCallback(t *testing.T) {
	submitter := &stubSubmitter{hash: common.HexToHash("0x06"), status: StatusReverted}
	s := NewSession(testWallet, eligibleReader(), submitter, zap.NewNop())

	var fired bool
	require.NoError(t, s.Open(testRequest(), func(TxOutcome) { fired = true }))
	s.pollOnce(context.Background())
	require.NoError(t, s.Confirm(context.Background()))

	s.Close()
	assert.False(t, fired)
}
