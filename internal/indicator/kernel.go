// Package indicator implements the stateful per-symbol rolling technical
// indicators (C1): SMA, EMA, RSI, MACD, VWAP and momentum over a bounded
// history. State is owned by a Kernel instance — there is no process-wide
// singleton, mirroring the per-symbol map pattern in the teacher's Enigma
// calculator but keyed for indicator math instead of ATH/ATL tracking.
package indicator

import "sync"

const (
	// DefaultSMAPeriod is the default window for sma().
	DefaultSMAPeriod = 20
	// DefaultRSIPeriod is the default window for rsi().
	DefaultRSIPeriod = 14
	// DefaultMomentumPeriod is the default window for momentum().
	DefaultMomentumPeriod = 10
	// MACDShortPeriod and MACDLongPeriod are the two EMA windows MACD subtracts.
	MACDShortPeriod = 12
	MACDLongPeriod  = 26
	// MaxPeriod is the largest window any indicator needs (the long MACD
	// EMA), and the size the historical close/volume rings are capped to.
	MaxPeriod = MACDLongPeriod
)

// emaState is the running value for one (symbol, period) EMA. Keying by
// period segregates the short and long EMAs MACD subtracts — the source
// implementation shared a single per-symbol EMA state between the two
// calls, which spec.md flags as a bug; keying by period here is this
// repo's chosen fix (see SPEC_FULL.md §9).
type emaState struct {
	value float64
	seen  int
}

// symbolState is the full bundle of indicator state kept for one symbol.
type symbolState struct {
	closes  []float64 // ring, cap MaxPeriod, oldest first
	volumes []float64 // ring, cap MaxPeriod, oldest first

	emas map[int]*emaState // keyed by EMA period

	gains  []float64 // ring, cap rsiPeriod
	losses []float64 // ring, cap rsiPeriod
	hasLastClose bool
	lastClose    float64

	cumPriceVolume float64
	cumVolume      float64
}

func newSymbolState() *symbolState {
	return &symbolState{
		emas: make(map[int]*emaState),
	}
}

// Kernel holds indicator state for every symbol it has seen.
type Kernel struct {
	mu    sync.Mutex
	state map[string]*symbolState
}

// NewKernel creates an empty Kernel.
func NewKernel() *Kernel {
	return &Kernel{state: make(map[string]*symbolState)}
}

func (k *Kernel) get(symbol string) *symbolState {
	s, ok := k.state[symbol]
	if !ok {
		s = newSymbolState()
		k.state[symbol] = s
	}
	return s
}

func pushRing(ring []float64, v float64, cap int) []float64 {
	ring = append(ring, v)
	if len(ring) > cap {
		ring = ring[len(ring)-cap:]
	}
	return ring
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// SMA appends close to the per-symbol closing-price ring (capped to
// MaxPeriod) and returns the simple moving average over the most recent
// `period` samples. Until `period` samples have accumulated it returns
// close unchanged, not a partial mean.
func (k *Kernel) SMA(symbol string, close float64, period int) float64 {
	if period <= 0 {
		period = DefaultSMAPeriod
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.get(symbol)
	s.closes = pushRing(s.closes, close, MaxPeriod)

	if len(s.closes) < period {
		return close
	}
	window := s.closes[len(s.closes)-period:]
	return mean(window)
}

// EMA maintains a running exponential moving average, independently keyed
// per (symbol, period). While fewer than `period` samples have been seen
// it returns SMA(symbol, close, period) while still advancing the EMA.
func (k *Kernel) EMA(symbol string, close float64, period int) float64 {
	if period <= 0 {
		period = DefaultSMAPeriod
	}
	multiplier := 2.0 / float64(period+1)

	k.mu.Lock()
	s := k.get(symbol)
	e, ok := s.emas[period]
	if !ok {
		e = &emaState{}
		s.emas[period] = e
	}
	if e.seen == 0 {
		e.value = close
	} else {
		e.value += (close - e.value) * multiplier
	}
	e.seen++
	seen := e.seen
	value := e.value
	k.mu.Unlock()

	if seen < period {
		return k.SMA(symbol, close, period)
	}
	return value
}

// RSI computes the relative strength index over `period` gain/loss samples.
// The first observation for a symbol seeds last-close and returns 50.
func (k *Kernel) RSI(symbol string, close float64, period int) float64 {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.get(symbol)

	if !s.hasLastClose {
		s.hasLastClose = true
		s.lastClose = close
		return 50
	}

	change := close - s.lastClose
	s.lastClose = close

	gain := change
	if gain < 0 {
		gain = 0
	}
	loss := -change
	if loss < 0 {
		loss = 0
	}
	s.gains = pushRing(s.gains, gain, period)
	s.losses = pushRing(s.losses, loss, period)

	if len(s.gains) < period {
		return 50
	}

	avgGain := mean(s.gains)
	avgLoss := mean(s.losses)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD returns the difference of the short and long EMAs, each maintained
// in independent per-period state (see emaState doc comment).
func (k *Kernel) MACD(symbol string, close float64) float64 {
	short := k.EMA(symbol, close, MACDShortPeriod)
	long := k.EMA(symbol, close, MACDLongPeriod)
	return short - long
}

// VWAP accumulates price*volume and volume from process start and returns
// their ratio. Returns close unchanged if cumulative volume is zero.
func (k *Kernel) VWAP(symbol string, volume, close float64) float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.get(symbol)
	s.cumPriceVolume += close * volume
	s.cumVolume += volume
	if s.cumVolume == 0 {
		return close
	}
	return s.cumPriceVolume / s.cumVolume
}

// Momentum returns close minus the oldest closing price within the last
// `period` samples of the closing-price ring. Returns 0 with fewer than
// `period` samples.
func (k *Kernel) Momentum(symbol string, close float64, period int) float64 {
	if period <= 0 {
		period = DefaultMomentumPeriod
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.get(symbol)
	if len(s.closes) < period {
		return 0
	}
	window := s.closes[len(s.closes)-period:]
	return close - window[0]
}

// PushClose records a minute's finalized close into the bounded
// closing-price ring, independent of any particular SMA/EMA period —
// this is the ring the realtime aggregator's rollover step advances at
// step 2, before running the feature engine, and that price_momentum
// and sma/ema/momentum all read or extend.
func (k *Kernel) PushClose(symbol string, close float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.get(symbol)
	s.closes = pushRing(s.closes, close, MaxPeriod)
}

// PushVolume records a minute's summed volume into the bounded volume
// ring, used by the feature engine's trade_density calculation. Called by
// the realtime aggregator's rollover step, mirroring the closes ring that
// SMA/Momentum already maintain as a side effect of being called.
func (k *Kernel) PushVolume(symbol string, volume float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.get(symbol)
	s.volumes = pushRing(s.volumes, volume, MaxPeriod)
}

// HistoricalCloses returns a snapshot copy of the bounded closing-price
// ring for a symbol (oldest first), used by the feature engine.
func (k *Kernel) HistoricalCloses(symbol string) []float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.get(symbol)
	out := make([]float64, len(s.closes))
	copy(out, s.closes)
	return out
}

// HistoricalVolumes returns a snapshot copy of the bounded volume ring.
func (k *Kernel) HistoricalVolumes(symbol string) []float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.get(symbol)
	out := make([]float64, len(s.volumes))
	copy(out, s.volumes)
	return out
}

// Seed preloads a symbol's closing-price ring from the most recent N
// persisted daily rows (oldest first) so a process restart does not begin
// the SMA/EMA/momentum windows cold. It does not touch RSI or VWAP state,
// which spec.md leaves process-lifetime/observation-driven.
func (k *Kernel) Seed(symbol string, closes []float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.get(symbol)
	if len(closes) > MaxPeriod {
		closes = closes[len(closes)-MaxPeriod:]
	}
	s.closes = append([]float64(nil), closes...)
}
