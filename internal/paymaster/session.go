package paymaster

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State of a paymaster request session.
type State string

const (
	StateClosed     State = "closed"
	StateEstimating State = "estimating"
	StateReady      State = "ready"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateSettled    State = "settled"
)

// ChainReader is the read-only ledger access the session polls while open.
// All reads are idempotent and side-effect-free. A missing wallet or RPC
// connection surfaces as ErrChainUnavailable, which pollers treat as
// "no data yet" rather than a user-facing failure.
type ChainReader interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateFee(ctx context.Context, req PaymasterRequest, strategy Strategy) (*FeeEstimate, error)
	TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error)
	DailyLimit(ctx context.Context) (*big.Int, error)
	DailyLimitState(ctx context.Context, account common.Address) (DailyLimitState, error)
	BanStatus(ctx context.Context, account common.Address) (bool, error)
	NftOwnership(ctx context.Context, account common.Address) (bool, error)
	EthPriceInToken(ctx context.Context, token common.Address, ethAmount *big.Int) (*big.Int, uint8, error)
}

// TxSubmitter sends the sponsored transaction and tracks its receipt. The
// submitter relays from its own account; the session wallet only gates
// eligibility and never signs.
type TxSubmitter interface {
	SubmitSponsored(ctx context.Context, req PaymasterRequest, strategy Strategy, input []byte, fee *FeeEstimate) (common.Hash, error)
	WaitReceipt(ctx context.Context, hash common.Hash) (*TxOutcome, error)
}

// SuccessFunc is invoked by Close exactly once when the session settled
// with a successful receipt.
type SuccessFunc func(TxOutcome)

// Session exclusively owns one PaymasterRequest, the active sponsorship
// strategy, and the transaction outcome for an open-to-closed cycle.
// Only Confirm sends a ledger-mutating call; everything else is read-only.
type Session struct {
	mu sync.Mutex

	id        string
	wallet    common.Address
	state     State
	request   *PaymasterRequest
	strategy  Strategy
	agg       *Aggregator
	outcome   TxOutcome
	onSuccess SuccessFunc
	lastErr   string

	reader    ChainReader
	submitter TxSubmitter
	log       *zap.Logger
}

func NewSession(wallet common.Address, reader ChainReader, submitter TxSubmitter, log *zap.Logger) *Session {
	return &Session{
		id:        uuid.NewString(),
		wallet:    wallet,
		state:     StateClosed,
		strategy:  General(),
		agg:       NewAggregator(),
		reader:    reader,
		submitter: submitter,
		log:       log,
	}
}

func (s *Session) ID() string             { return s.id }
func (s *Session) Wallet() common.Address { return s.wallet }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Strategy() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

func (s *Session) Outcome() TxOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Open stores the request and success callback and moves to estimating.
// An already-open session is replaced wholesale (last-writer-wins); the
// previous callback is dropped without firing.
func (s *Session) Open(req PaymasterRequest, onSuccess SuccessFunc) error {
	if req.Name == "" || req.To == (common.Address{}) {
		return fmt.Errorf("%w: missing name or target", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.request = &req
	s.onSuccess = onSuccess
	s.strategy = General()
	s.agg = NewAggregator()
	s.outcome = TxOutcome{}
	s.lastErr = ""
	s.state = StateEstimating
	return nil
}

// SelectStrategy switches the sponsorship variant. Allowed only before a
// submission starts; the fee estimate tied to the previous strategy is
// invalidated and the session returns to estimating.
func (s *Session) SelectStrategy(strategy Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateEstimating, StateReady:
	case StateClosed:
		return ErrRequestMissing
	default:
		return fmt.Errorf("strategy locked while %s", s.state)
	}

	s.strategy = strategy
	if strategy.Kind == KindApprovalBased {
		s.agg.SetToken(strategy.Token)
	} else {
		s.agg.SetToken(nil)
	}
	s.agg.ResetEstimate()
	s.state = StateEstimating
	return nil
}

// Snapshot returns the current derived eligibility view.
func (s *Session) Snapshot() EligibilitySnapshot {
	return s.agg.Snapshot()
}

// Decision evaluates sponsorship availability for the active strategy.
func (s *Session) Decision() Decision {
	s.mu.Lock()
	strategy := s.strategy
	s.mu.Unlock()
	return Evaluate(strategy, s.agg.Snapshot())
}

// maybeReady promotes estimating → ready once the estimate and the
// strategy's eligibility reads have all resolved.
func (s *Session) maybeReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEstimating && s.agg.Resolved(s.strategy.Kind) {
		s.state = StateReady
	}
}

// Confirm submits the sponsored transaction and polls for its receipt.
// Allowed only in ready state with a positive eligibility decision. The
// state guard makes re-entrant calls fail before a second send: exactly one
// submission can be in flight per session. Submission failures are
// recoverable; the session returns to ready for retry.
func (s *Session) Confirm(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed || s.request == nil {
		s.mu.Unlock()
		return ErrRequestMissing
	}
	if s.state != StateReady {
		s.mu.Unlock()
		return fmt.Errorf("confirm not allowed while %s", s.state)
	}
	decision := Evaluate(s.strategy, s.agg.Snapshot())
	if !decision.Available {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotEligible, decision.Reason)
	}
	req := *s.request
	strategy := s.strategy
	fee := s.agg.Estimate()
	s.state = StateSubmitting
	s.mu.Unlock()

	hash, err := s.submit(ctx, req, strategy, fee)
	if err != nil {
		s.recordFailure(err)
		return fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	s.mu.Lock()
	s.outcome = TxOutcome{TxHash: hash}
	s.state = StatePolling
	s.mu.Unlock()
	s.log.Info("sponsored transaction submitted",
		zap.String("session", s.id),
		zap.String("tx", hash.Hex()),
		zap.String("strategy", string(strategy.Kind)),
	)

	out, err := s.submitter.WaitReceipt(ctx, hash)
	if err != nil {
		// The transaction is already on-chain; closing the session stops
		// tracking but cannot cancel it.
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("%w: wait receipt: %v", ErrSubmissionFailed, err)
	}

	s.mu.Lock()
	if s.state == StatePolling {
		s.outcome = *out
		s.state = StateSettled
	}
	s.mu.Unlock()
	s.log.Info("sponsored transaction settled",
		zap.String("session", s.id),
		zap.String("tx", out.TxHash.Hex()),
		zap.String("status", string(out.Status)),
	)
	return nil
}

// submit resolves the paymaster payload for the strategy and sends the
// transaction. For approval-based sponsorship the minimum allowance is the
// estimated cost converted into the fee token by the on-chain oracle.
func (s *Session) submit(ctx context.Context, req PaymasterRequest, strategy Strategy, fee *FeeEstimate) (common.Hash, error) {
	var input []byte
	switch strategy.Kind {
	case KindApprovalBased:
		if strategy.Token == nil {
			return common.Hash{}, fmt.Errorf("no fee token selected")
		}
		tokenAmount, _, err := s.reader.EthPriceInToken(ctx, strategy.Token.Address, fee.Cost())
		if err != nil {
			return common.Hash{}, fmt.Errorf("convert cost to token: %w", err)
		}
		input = ApprovalInput(strategy.Token.Address, tokenAmount)
	default:
		input = GeneralInput()
	}
	return s.submitter.SubmitSponsored(ctx, req, strategy, input, fee)
}

func (s *Session) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
	if s.state == StateSubmitting {
		s.state = StateReady
	}
	s.log.Warn("submission failed", zap.String("session", s.id), zap.Error(err))
}

// Close resets the session from any state and returns the last outcome.
// The stored callback fires exactly once, and only when the settled status
// is success; a close without a prior successful confirm never invokes it.
func (s *Session) Close() TxOutcome {
	s.mu.Lock()
	cb := s.onSuccess
	out := s.outcome
	s.request = nil
	s.onSuccess = nil
	s.strategy = General()
	s.agg = NewAggregator()
	s.outcome = TxOutcome{}
	s.lastErr = ""
	s.state = StateClosed
	s.mu.Unlock()

	if out.Status == StatusSuccess && cb != nil {
		cb(out)
	}
	return out
}
