package paymaster

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval matches the refetch cadence of the original dApp.
const DefaultPollInterval = 3 * time.Second

// RunPoller refreshes chain state for the session until ctx is cancelled.
// Each tick issues the reads for the active strategy as independent
// requests; they may resolve in any order and the aggregator keeps the
// latest value per field. ErrChainUnavailable means "no data yet" and is
// never surfaced to the user.
func (s *Session) RunPoller(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Session) pollOnce(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateClosed || s.request == nil {
		s.mu.Unlock()
		return
	}
	req := *s.request
	strategy := s.strategy
	sender := req.Sender(s.wallet)
	agg := s.agg
	s.mu.Unlock()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				s.logPollError(name, err)
			}
		}()
	}

	run("gas_price", func(ctx context.Context) error {
		price, err := s.reader.GasPrice(ctx)
		if err != nil {
			return err
		}
		agg.ApplyGasPrice(price)
		return nil
	})

	// Estimation needs a fee token under approval-based sponsorship; until
	// one is selected the session simply stays in estimating.
	canEstimate := strategy.Kind != KindApprovalBased || strategy.Token != nil

	run("estimate_fee", func(ctx context.Context) error {
		if !canEstimate {
			return nil
		}
		est, err := s.reader.EstimateFee(ctx, req, strategy)
		if err != nil {
			return err
		}
		agg.ApplyEstimate(est)

		// The converted token cost depends on the fresh estimate, so it is
		// read in the same chain of resolution.
		if strategy.Kind == KindApprovalBased && strategy.Token != nil {
			amount, decimals, err := s.reader.EthPriceInToken(ctx, strategy.Token.Address, est.Cost())
			if err != nil {
				return err
			}
			agg.ApplyTokenCost(amount, decimals)
		}
		return nil
	})

	run("nft_ownership", func(ctx context.Context) error {
		owner, err := s.reader.NftOwnership(ctx, sender)
		if err != nil {
			return err
		}
		agg.ApplyNftOwnership(owner)
		return nil
	})

	if strategy.Kind == KindGeneral {
		run("daily_limit", func(ctx context.Context) error {
			limit, err := s.reader.DailyLimit(ctx)
			if err != nil {
				return err
			}
			agg.ApplyDailyLimit(limit)
			return nil
		})
		run("daily_limit_state", func(ctx context.Context) error {
			st, err := s.reader.DailyLimitState(ctx, sender)
			if err != nil {
				return err
			}
			agg.ApplyDailyLimitState(st)
			return nil
		})
		run("ban_status", func(ctx context.Context) error {
			banned, err := s.reader.BanStatus(ctx, sender)
			if err != nil {
				return err
			}
			agg.ApplyBanStatus(banned)
			return nil
		})
	}

	if strategy.Kind == KindApprovalBased && strategy.Token != nil {
		token := strategy.Token.Address
		run("token_balance", func(ctx context.Context) error {
			balance, err := s.reader.TokenBalance(ctx, token, sender)
			if err != nil {
				return err
			}
			agg.ApplyTokenBalance(balance)
			return nil
		})
	}

	wg.Wait()
	s.maybeReady()
}

func (s *Session) logPollError(name string, err error) {
	if errors.Is(err, ErrChainUnavailable) || errors.Is(err, context.Canceled) {
		s.log.Debug("poll skipped", zap.String("read", name), zap.Error(err))
		return
	}
	s.log.Warn("poll failed", zap.String("read", name), zap.Error(err))
}
