// Package feature implements the feature engine (C2): nine pure
// functions mapping a minute's frozen L1/L2 buffers and the indicator
// kernel's state onto a feature record. All nine run concurrently —
// four read only the frozen buffers; price_momentum and trade_density
// read copies of the kernel's close/volume rings taken before any of
// the nine start; the three that update kernel state (rsi, macd, vwap)
// serialize through the kernel's own lock, which is the single mutator
// spec.md requires for C1.
package feature

import (
	"sync"

	"github.com/ibflow/ingestd/internal/indicator"
	"github.com/ibflow/ingestd/internal/models"
)

// Engine computes FeatureRecords against a shared indicator kernel.
type Engine struct {
	kernel *indicator.Kernel
}

// NewEngine wraps an indicator kernel.
func NewEngine(kernel *indicator.Kernel) *Engine {
	return &Engine{kernel: kernel}
}

// Compute builds the feature record for one symbol's minute. l1 is the
// frozen tick buffer, l2 is the frozen depth-book snapshot from
// depth.Book.Rollover, close/volume are the finalized L1 bar's close
// and summed volume.
func (e *Engine) Compute(symbol string, l1 []models.TickL1, l2 []models.DepthEntry, close, volume float64) models.FeatureRecord {
	var rec models.FeatureRecord
	var wg sync.WaitGroup
	closes := e.kernel.HistoricalCloses(symbol)
	volumes := e.kernel.HistoricalVolumes(symbol)
	wg.Add(9)

	go func() { defer wg.Done(); rec.WeightedAvgPrice = weightedAvgPrice(l1) }()
	go func() { defer wg.Done(); rec.BuySellRatio = buySellRatio(l2) }()
	go func() { defer wg.Done(); rec.DepthChange = depthChange(l2) }()
	go func() { defer wg.Done(); rec.ImpliedLiquidity = impliedLiquidity(l2) }()
	go func() { defer wg.Done(); rec.PriceMomentum = priceMomentum(closes) }()
	go func() { defer wg.Done(); rec.TradeDensity = tradeDensity(volumes) }()
	go func() { defer wg.Done(); rec.RSI = e.kernel.RSI(symbol, close, indicator.DefaultRSIPeriod) }()
	go func() { defer wg.Done(); rec.MACD = e.kernel.MACD(symbol, close) }()
	go func() { defer wg.Done(); rec.VWAP = e.kernel.VWAP(symbol, volume, close) }()

	wg.Wait()
	return rec
}

// weightedAvgPrice is Σ(price·volume)/Σ(volume) over the minute's ticks;
// 0 if the minute had no volume.
func weightedAvgPrice(l1 []models.TickL1) float64 {
	var sumPV, sumV float64
	for _, t := range l1 {
		sumPV += t.Price * t.Volume
		sumV += t.Volume
	}
	if sumV == 0 {
		return 0
	}
	return sumPV / sumV
}

// sideVolumes sums volume by side over a frozen depth buffer, including
// entries whose final status is Deleted — a deleted position still held
// volume for part of the minute and contributes to the bar, per the
// depth book's Delete contract.
func sideVolumes(l2 []models.DepthEntry) (buy, sell float64, buyN, sellN int) {
	for _, e := range l2 {
		if e.Side == models.DepthBuy {
			buy += e.Volume
			buyN++
		} else {
			sell += e.Volume
			sellN++
		}
	}
	return
}

// buySellRatio is Σbuy_volume/Σsell_volume over the minute's L2 entries;
// 0 if there was no sell volume.
func buySellRatio(l2 []models.DepthEntry) float64 {
	buy, sell, _, _ := sideVolumes(l2)
	if sell == 0 {
		return 0
	}
	return buy / sell
}

// depthChange is Σbuy_volume − Σsell_volume over the minute's L2 entries.
func depthChange(l2 []models.DepthEntry) float64 {
	buy, sell, _, _ := sideVolumes(l2)
	return buy - sell
}

// impliedLiquidity is (avg_buy_volume + avg_sell_volume)/spread, where
// spread is the lowest observed ask minus the highest observed bid; 0
// if spread is non-positive or either side saw no entries.
func impliedLiquidity(l2 []models.DepthEntry) float64 {
	buy, sell, buyN, sellN := sideVolumes(l2)
	if buyN == 0 || sellN == 0 {
		return 0
	}
	var highestBid, lowestAsk float64
	haveBid, haveAsk := false, false
	for _, e := range l2 {
		if e.Side == models.DepthBuy {
			if !haveBid || e.Price > highestBid {
				highestBid = e.Price
				haveBid = true
			}
		} else {
			if !haveAsk || e.Price < lowestAsk {
				lowestAsk = e.Price
				haveAsk = true
			}
		}
	}
	spread := lowestAsk - highestBid
	if spread <= 0 {
		return 0
	}
	avgBuy := buy / float64(buyN)
	avgSell := sell / float64(sellN)
	return (avgBuy + avgSell) / spread
}

// priceMomentum is last(historicalCloses) − first(historicalCloses); 0
// with fewer than two samples.
func priceMomentum(historicalCloses []float64) float64 {
	if len(historicalCloses) < 2 {
		return 0
	}
	return historicalCloses[len(historicalCloses)-1] - historicalCloses[0]
}

// tradeDensity is the arithmetic mean of the historical per-minute
// volume ring; 0 if the ring is empty.
func tradeDensity(historicalVolumes []float64) float64 {
	if len(historicalVolumes) == 0 {
		return 0
	}
	var sum float64
	for _, v := range historicalVolumes {
		sum += v
	}
	return sum / float64(len(historicalVolumes))
}
