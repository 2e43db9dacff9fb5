package metrics

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liquidator/pkg/errors"
	"liquidator/pkg/logger"
)

type fakeWallet struct {
	wei *big.Int
	err error
}

func (f fakeWallet) Balance(context.Context) (*big.Int, error) { return f.wei, f.err }

type fakeLoans map[string]int

func (f fakeLoans) CountByStatus(context.Context) (map[string]int, error) { return f, nil }

func TestStateCollector_LoansByStatus(t *testing.T) {
	c := NewStateCollector(logger.New(zap.NewNop()), fakeLoans{"active": 12, "repaid": 40}, nil)

	expected := `
# HELP liquidator_loans Loans in the off-chain store by status
# TYPE liquidator_loans gauge
liquidator_loans{status="active"} 12
liquidator_loans{status="repaid"} 40
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "liquidator_loans"))
}

func TestStateCollector_WalletBalance(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	c := NewStateCollector(logger.New(zap.NewNop()), nil, fakeWallet{wei: wei})

	expected := `
# HELP liquidator_wallet_balance_eth Native balance of the liquidator wallet
# TYPE liquidator_wallet_balance_eth gauge
liquidator_wallet_balance_eth 1.5
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "liquidator_wallet_balance_eth"))
}

func TestStateCollector_WalletError(t *testing.T) {
	c := NewStateCollector(logger.New(zap.NewNop()), nil, fakeWallet{err: errors.ErrUnavailable})
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}

func TestRecordLiquidation(t *testing.T) {
	before := testutil.ToFloat64(Liquidations.WithLabelValues("race_condition", "false"))
	RecordLiquidation("race_condition", 1, false)
	assert.Equal(t, before+1, testutil.ToFloat64(Liquidations.WithLabelValues("race_condition", "false")))
}
