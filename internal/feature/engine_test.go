package feature

import (
	"testing"

	"github.com/ibflow/ingestd/internal/indicator"
	"github.com/ibflow/ingestd/internal/models"
	"github.com/stretchr/testify/assert"
)

func ticks() []models.TickL1 {
	return []models.TickL1{
		{Price: 100.0, Volume: 10},
		{Price: 101.5, Volume: 20},
		{Price: 99.5, Volume: 5},
		{Price: 100.5, Volume: 15},
	}
}

func TestComputeSingleMinuteHappyPath(t *testing.T) {
	e := NewEngine(indicator.NewKernel())
	l2 := []models.DepthEntry{
		{Position: 0, Price: 100, Volume: 30, Side: models.DepthBuy, Status: models.DepthInserted},
		{Position: 1, Price: 101, Volume: 40, Side: models.DepthSell, Status: models.DepthInserted},
	}
	rec := e.Compute("SPY", ticks(), l2, 100.5, 50)

	assert.InDelta(t, 100.7, rec.WeightedAvgPrice, 1e-9)
	assert.InDelta(t, 0.75, rec.BuySellRatio, 1e-9)
	assert.InDelta(t, -10.0, rec.DepthChange, 1e-9)
	assert.Equal(t, 50.0, rec.RSI) // first observation for this symbol
}

func TestComputeEmptyL2YieldsZeroDerivedFeatures(t *testing.T) {
	e := NewEngine(indicator.NewKernel())
	rec := e.Compute("SPY", ticks(), nil, 100.5, 50)

	assert.Equal(t, 0.0, rec.BuySellRatio)
	assert.Equal(t, 0.0, rec.DepthChange)
	assert.Equal(t, 0.0, rec.ImpliedLiquidity)
}

func TestComputeVWAPFallsBackToCloseWhenNoVolume(t *testing.T) {
	e := NewEngine(indicator.NewKernel())
	rec := e.Compute("SPY", nil, nil, 100.5, 0)
	assert.Equal(t, 100.5, rec.VWAP)
}

func TestComputePriceMomentumNeedsTwoSamples(t *testing.T) {
	k := indicator.NewKernel()
	e := NewEngine(k)
	rec := e.Compute("SPY", nil, nil, 100, 10)
	assert.Equal(t, 0.0, rec.PriceMomentum)

	k.SMA("SPY", 100, indicator.DefaultSMAPeriod)
	k.PushClose("SPY", 110)
	rec = e.Compute("SPY", nil, nil, 110, 10)
	assert.Equal(t, 10.0, rec.PriceMomentum)
}

func TestImpliedLiquidityZeroWhenSpreadNonPositive(t *testing.T) {
	e := NewEngine(indicator.NewKernel())
	l2 := []models.DepthEntry{
		{Price: 101, Volume: 10, Side: models.DepthBuy},
		{Price: 100, Volume: 10, Side: models.DepthSell},
	}
	rec := e.Compute("SPY", nil, l2, 100, 10)
	assert.Equal(t, 0.0, rec.ImpliedLiquidity)
}
