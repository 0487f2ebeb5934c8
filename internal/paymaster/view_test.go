package paymaster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestViewDefaultsBeforeAnyPoll(t *testing.T) {
	s := NewSession(testWallet, &stubReader{failAll: true}, &stubSubmitter{}, zap.NewNop())
	require.NoError(t, s.Open(testRequest(), nil))

	view := s.View()
	assert.Equal(t, StateEstimating, view.State)
	assert.Equal(t, "Increment Counter", view.RequestName)
	assert.Equal(t, KindGeneral, view.Strategy)
	assert.Equal(t, "0", view.GasPrice)
	assert.Equal(t, "0", view.Fee)
	assert.Equal(t, "0", view.Cost)
	assert.Equal(t, "0", view.DailyLimit)
	assert.Equal(t, "0", view.DailyTxCount)
	assert.Empty(t, view.TxHash)
	assert.Nil(t, view.SelectedToken)
}

func TestViewFormattedFees(t *testing.T) {
	s := openReadySession(t, eligibleReader(), &stubSubmitter{})

	view := s.View()
	assert.Equal(t, StateReady, view.State)
	assert.True(t, view.Available)
	assert.Empty(t, view.Reason)
	assert.Equal(t, "0.000000002000", view.GasPrice)
	assert.Equal(t, "0.000000002000", view.Fee)
	// 2 gwei * 500k gas
	assert.Equal(t, "0.001000000000", view.Cost)
	assert.Equal(t, "3", view.DailyLimit)
	assert.Equal(t, "0", view.DailyTxCount)
}

func TestViewApprovalTokenFigures(t *testing.T) {
	s := openReadySession(t, eligibleReader(), &stubSubmitter{})
	require.NoError(t, s.SelectStrategy(ApprovalBased(usdc())))
	s.pollOnce(context.Background())

	view := s.View()
	require.NotNil(t, view.SelectedToken)
	assert.Equal(t, "USDC", view.SelectedToken.Symbol)
	// 50 USDC balance in 6-decimal base units.
	assert.Equal(t, "50.000000000000", view.TokenBalance)
	// 1e15 wei cost converts to 1000 base units = 0.001 USDC.
	assert.Equal(t, "0.001000000000", view.EthPriceInToken)
}

func TestViewRejectionReason(t *testing.T) {
	reader := eligibleReader()
	reader.nftOwner = false
	s := openReadySession(t, reader, &stubSubmitter{})

	view := s.View()
	assert.False(t, view.Available)
	assert.Equal(t, ReasonNotNftOwner, view.Reason)
	assert.False(t, view.IsNftOwner)
}
