package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMA_PartialWindowReturnsClose(t *testing.T) {
	k := NewKernel()
	assert.Equal(t, 10.0, k.SMA("AAPL", 10, 5))
	assert.Equal(t, 11.0, k.SMA("AAPL", 11, 5))
}

func TestSMA_FullWindowIsArithmeticMean(t *testing.T) {
	k := NewKernel()
	closes := []float64{10, 11, 12, 13, 14}
	var got float64
	for _, c := range closes {
		got = k.SMA("AAPL", c, 5)
	}
	assert.Equal(t, 12.0, got)

	got = k.SMA("AAPL", 20, 5)
	assert.Equal(t, 14.0, got)
}

func TestSMA_DefaultsWhenPeriodNotPositive(t *testing.T) {
	k := NewKernel()
	got := k.SMA("AAPL", 5, 0)
	assert.Equal(t, 5.0, got)
}

func TestEMA_SeedsFromFirstCloseThenTracksPartialAsSMA(t *testing.T) {
	k := NewKernel()
	assert.Equal(t, 10.0, k.EMA("AAPL", 10, 3))
	assert.Equal(t, 12.0, k.EMA("AAPL", 12, 3))
}

func TestEMA_SegregatesStateByPeriod(t *testing.T) {
	k := NewKernel()
	short := k.EMA("AAPL", 10, 3)
	long := k.EMA("AAPL", 10, 5)
	assert.Equal(t, short, long)

	short = k.EMA("AAPL", 20, 3)
	long = k.EMA("AAPL", 20, 5)
	assert.NotEqual(t, short, long)
}

func TestRSI_FirstObservationReturnsFifty(t *testing.T) {
	k := NewKernel()
	assert.Equal(t, 50.0, k.RSI("AAPL", 100, 14))
}

func TestRSI_AllGainsReachesHundred(t *testing.T) {
	k := NewKernel()
	k.RSI("AAPL", 100, 3)
	k.RSI("AAPL", 101, 3)
	k.RSI("AAPL", 102, 3)
	got := k.RSI("AAPL", 103, 3)
	assert.Equal(t, 100.0, got)
}

func TestMACD_UsesIndependentShortAndLongEMA(t *testing.T) {
	k := NewKernel()
	for i := 0; i < 30; i++ {
		k.MACD("AAPL", float64(100+i))
	}
	shortEMA := k.EMA("AAPL", 129, MACDShortPeriod)
	longEMA := k.EMA("AAPL", 129, MACDLongPeriod)
	assert.NotEqual(t, shortEMA, longEMA)
}

func TestVWAP_ZeroVolumeReturnsClose(t *testing.T) {
	k := NewKernel()
	assert.Equal(t, 50.0, k.VWAP("AAPL", 0, 50))
}

func TestVWAP_AccumulatesAcrossCalls(t *testing.T) {
	k := NewKernel()
	k.VWAP("AAPL", 10, 100)
	got := k.VWAP("AAPL", 10, 200)
	assert.Equal(t, 150.0, got)
}

func TestMomentum_BelowWindowReturnsZero(t *testing.T) {
	k := NewKernel()
	k.SMA("AAPL", 10, 5)
	got := k.Momentum("AAPL", 10, 5)
	assert.Equal(t, 0.0, got)
}

func TestMomentum_FullWindowIsDeltaFromOldest(t *testing.T) {
	k := NewKernel()
	for _, c := range []float64{10, 11, 12} {
		k.SMA("AAPL", c, 3)
	}
	got := k.Momentum("AAPL", 15, 3)
	assert.Equal(t, 5.0, got)
}

func TestPushVolumeAndHistoricalAccessorsReturnCopies(t *testing.T) {
	k := NewKernel()
	k.PushVolume("AAPL", 100)
	k.PushVolume("AAPL", 200)

	vols := k.HistoricalVolumes("AAPL")
	assert.Equal(t, []float64{100, 200}, vols)

	vols[0] = 999
	assert.Equal(t, []float64{100, 200}, k.HistoricalVolumes("AAPL"))
}

func TestSeedPreloadsClosesCappedToMaxPeriod(t *testing.T) {
	k := NewKernel()
	seed := make([]float64, MaxPeriod+10)
	for i := range seed {
		seed[i] = float64(i)
	}
	k.Seed("AAPL", seed)

	closes := k.HistoricalCloses("AAPL")
	assert.Len(t, closes, MaxPeriod)
	assert.Equal(t, seed[len(seed)-MaxPeriod], closes[0])
}

func TestHistoricalClosesIsolatedPerSymbol(t *testing.T) {
	k := NewKernel()
	k.SMA("AAPL", 1, 2)
	k.SMA("MSFT", 2, 2)
	k.SMA("MSFT", 3, 2)

	assert.Len(t, k.HistoricalCloses("AAPL"), 1)
	assert.Len(t, k.HistoricalCloses("MSFT"), 2)
}
