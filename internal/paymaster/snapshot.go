package paymaster

import (
	"math/big"
	"sync"
)

// Aggregator accepts partial per-field updates from independently resolving
// chain reads and recomputes the derived EligibilitySnapshot deterministically
// from whatever subset has resolved so far. Polls may land in any order; each
// field keeps its latest resolved value. Staleness between fields is bounded
// by the poll interval.
type Aggregator struct {
	mu sync.Mutex

	gasPrice *big.Int
	estimate *FeeEstimate

	dailyLimit *big.Int
	limitState *DailyLimitState
	banned     *bool
	nftOwner   *bool

	token         *ERC20Token
	tokenBalance  *big.Int
	tokenCost     *big.Int
	ethPrice      *big.Int
	tokenDecimals uint8
}

func NewAggregator() *Aggregator { return &Aggregator{} }

func (a *Aggregator) ApplyGasPrice(p *big.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gasPrice = p
}

func (a *Aggregator) ApplyEstimate(est *FeeEstimate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.estimate = est
}

func (a *Aggregator) ApplyDailyLimit(limit *big.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dailyLimit = limit
}

func (a *Aggregator) ApplyDailyLimitState(st DailyLimitState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limitState = &st
}

func (a *Aggregator) ApplyBanStatus(banned bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.banned = &banned
}

func (a *Aggregator) ApplyNftOwnership(owner bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nftOwner = &owner
}

func (a *Aggregator) ApplyTokenBalance(balance *big.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokenBalance = balance
}

// ApplyTokenCost records the estimated cost converted into the fee token,
// as returned by the on-chain price oracle, with the token's decimals.
func (a *Aggregator) ApplyTokenCost(cost *big.Int, decimals uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokenCost = cost
	a.ethPrice = cost
	a.tokenDecimals = decimals
}

// SetToken records the selected fee token and drops token-scoped reads that
// belonged to the previous selection.
func (a *Aggregator) SetToken(token *ERC20Token) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
	a.tokenBalance = nil
	a.tokenCost = nil
	a.ethPrice = nil
	a.tokenDecimals = 0
}

// ResetEstimate invalidates the fee estimate tied to the previous strategy.
func (a *Aggregator) ResetEstimate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.estimate = nil
}

// GasPrice returns the latest resolved gas price, or nil.
func (a *Aggregator) GasPrice() *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gasPrice
}

// Estimate returns the latest resolved fee estimate, or nil.
func (a *Aggregator) Estimate() *FeeEstimate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.estimate
}

// Snapshot derives the eligibility view from the resolved fields.
// HasReachedDailyLimit is recomputed from count and limit rather than
// trusted from the contract flag, so the invariant
// HasReachedDailyLimit == (DailyTxCount >= DailyLimit) always holds.
func (a *Aggregator) Snapshot() EligibilitySnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := EligibilitySnapshot{
		SelectedToken:   a.token,
		TokenBalance:    a.tokenBalance,
		TokenCost:       a.tokenCost,
		EthPriceInToken: a.ethPrice,
		TokenDecimals:   a.tokenDecimals,
	}
	if a.banned != nil {
		snap.IsBanned = *a.banned
	}
	if a.nftOwner != nil {
		snap.IsNftOwner = *a.nftOwner
	}
	if a.dailyLimit != nil {
		snap.DailyLimit = new(big.Int).Set(a.dailyLimit)
	}
	if a.limitState != nil {
		snap.CanResetDailyCount = a.limitState.Reset
		if a.limitState.Count != nil {
			snap.DailyTxCount = new(big.Int).Set(a.limitState.Count)
		}
	}
	if snap.DailyTxCount != nil && snap.DailyLimit != nil {
		snap.HasReachedDailyLimit = snap.DailyTxCount.Cmp(snap.DailyLimit) >= 0
	}
	return snap
}

// Resolved reports whether enough reads have landed for the given strategy
// to move the session from estimating to ready.
func (a *Aggregator) Resolved(kind StrategyKind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.estimate == nil {
		return false
	}
	if kind == KindApprovalBased {
		return a.token == nil || a.tokenCost != nil
	}
	return a.banned != nil && a.nftOwner != nil && a.limitState != nil && a.dailyLimit != nil
}
