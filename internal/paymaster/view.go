package paymaster

import "github.com/ethereum/go-ethereum/common"

// SessionView is the JSON-ready projection rendered to the UI layer:
// current state, formatted fee figures, and the sponsorship decision.
type SessionView struct {
	SessionID   string       `json:"session_id"`
	State       State        `json:"state"`
	RequestName string       `json:"request_name"`
	Strategy    StrategyKind `json:"strategy"`

	GasPrice string `json:"gas_price"`
	Fee      string `json:"fee"`
	Cost     string `json:"cost"`

	Available    bool   `json:"available"`
	Reason       string `json:"reason,omitempty"`
	IsBanned     bool   `json:"is_banned"`
	IsNftOwner   bool   `json:"is_nft_owner"`
	DailyLimit   string `json:"daily_limit"`
	DailyTxCount string `json:"daily_tx_count"`
	CanReset     bool   `json:"can_reset_daily_count"`
	LimitReached bool   `json:"has_reached_daily_limit"`

	SelectedToken   *ERC20Token `json:"selected_token,omitempty"`
	TokenBalance    string      `json:"token_balance,omitempty"`
	EthPriceInToken string      `json:"eth_price_in_token,omitempty"`

	TxHash    string   `json:"tx_hash,omitempty"`
	TxStatus  TxStatus `json:"tx_status"`
	LastError string   `json:"last_error,omitempty"`
}

// View renders the session for the UI. Unresolved amounts format as "0",
// matching the "no data yet" treatment of a missing chain connection.
func (s *Session) View() SessionView {
	s.mu.Lock()
	state := s.state
	strategy := s.strategy
	outcome := s.outcome
	lastErr := s.lastErr
	name := ""
	if s.request != nil {
		name = s.request.Name
	}
	agg := s.agg
	s.mu.Unlock()

	snap := agg.Snapshot()
	decision := Evaluate(strategy, snap)
	est := agg.Estimate()

	view := SessionView{
		SessionID:    s.id,
		State:        state,
		RequestName:  name,
		Strategy:     strategy.Kind,
		GasPrice:     FormatWei(agg.GasPrice()),
		Available:    decision.Available,
		Reason:       decision.Reason,
		IsBanned:     snap.IsBanned,
		IsNftOwner:   snap.IsNftOwner,
		CanReset:     snap.CanResetDailyCount,
		LimitReached: snap.HasReachedDailyLimit,
		TxStatus:     outcome.Status,
		LastError:    lastErr,
	}
	if est != nil {
		view.Fee = FormatWei(est.MaxFeePerGas)
		view.Cost = FormatWei(est.Cost())
	} else {
		view.Fee = "0"
		view.Cost = "0"
	}
	if snap.DailyLimit != nil {
		view.DailyLimit = snap.DailyLimit.String()
	} else {
		view.DailyLimit = "0"
	}
	if snap.DailyTxCount != nil {
		view.DailyTxCount = snap.DailyTxCount.String()
	} else {
		view.DailyTxCount = "0"
	}
	if snap.SelectedToken != nil {
		view.SelectedToken = snap.SelectedToken
		view.TokenBalance = FormatUnits(snap.TokenBalance, int(snap.SelectedToken.Decimals), DefaultPrecision)
		view.EthPriceInToken = FormatUnits(snap.EthPriceInToken, int(snap.TokenDecimals), DefaultPrecision)
	}
	if outcome.TxHash != (common.Hash{}) {
		view.TxHash = outcome.TxHash.Hex()
	}
	return view
}
