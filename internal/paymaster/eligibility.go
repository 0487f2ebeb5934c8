package paymaster

import "math/big"

// Rejection reasons surfaced to the UI layer.
const (
	ReasonBanned              = "banned accounts are not allowed"
	ReasonNotNftOwner         = "only LibroNFT holders are allowed"
	ReasonDailyLimitReached   = "daily limit reached"
	ReasonNoTokenSelected     = "no fee token selected"
	ReasonInsufficientBalance = "insufficient fee token balance"
)

// EligibilitySnapshot is the derived, read-only view of on-chain state for
// the active account. General fields gate the flat-sponsorship strategy;
// token fields apply to the approval-based one. Fields reflect the latest
// resolved poll per field and carry no cross-field consistency guarantee.
type EligibilitySnapshot struct {
	IsBanned             bool
	IsNftOwner           bool
	DailyTxCount         *big.Int
	DailyLimit           *big.Int
	CanResetDailyCount   bool
	HasReachedDailyLimit bool

	SelectedToken   *ERC20Token
	TokenBalance    *big.Int
	TokenCost       *big.Int // estimated cost converted into the fee token
	EthPriceInToken *big.Int
	TokenDecimals   uint8
}

// Decision is the single sponsorship verdict derived from a snapshot.
type Decision struct {
	Available bool
	Reason    string
}

// Evaluate combines a snapshot and the active strategy into one decision.
// Pure function; first matching rejection wins.
//
// General precedence: banned > not-NFT-owner > daily-limit-reached.
// Approval-based sponsorship is paid, not waived, so eligibility only
// requires a selected token with enough balance to cover the converted cost.
func Evaluate(strategy Strategy, snap EligibilitySnapshot) Decision {
	switch strategy.Kind {
	case KindApprovalBased:
		if strategy.Token == nil {
			return Decision{Reason: ReasonNoTokenSelected}
		}
		if snap.TokenBalance != nil && snap.TokenCost != nil && snap.TokenBalance.Cmp(snap.TokenCost) < 0 {
			return Decision{Reason: ReasonInsufficientBalance}
		}
		return Decision{Available: true}

	default: // KindGeneral
		if snap.IsBanned {
			return Decision{Reason: ReasonBanned}
		}
		if !snap.IsNftOwner {
			return Decision{Reason: ReasonNotNftOwner}
		}
		if snap.HasReachedDailyLimit {
			return Decision{Reason: ReasonDailyLimitReached}
		}
		return Decision{Available: true}
	}
}
