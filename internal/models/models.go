// Package models holds the data types shared by the ingestion pipeline:
// raw tick/depth observations, the minute bars derived from them, the
// feature record computed alongside each bar, and the daily OHLCV rows
// produced by the backfill driver.
package models

import "time"

// TickL1 is a single last-trade observation. Only LAST price and
// LAST_SIZE are retained from the broker's tick callbacks; everything
// else is dropped at the adapter boundary.
type TickL1 struct {
	Price  float64
	Volume float64
}

// DepthSide identifies which side of the book a DepthEntry belongs to.
type DepthSide int

const (
	DepthBuy DepthSide = iota
	DepthSell
)

// DepthStatus tracks the lifecycle of a DepthEntry within the live book.
type DepthStatus int

const (
	DepthInserted DepthStatus = iota
	DepthUpdated
	DepthDeleted
)

// DepthOperation is the broker's wire-level mutation kind for a depth
// update, distinct from DepthStatus which is this book's derived state.
type DepthOperation int

const (
	DepthOpInsert DepthOperation = iota
	DepthOpUpdate
	DepthOpDelete
)

// DepthEntry is one slot of the L2 ladder, keyed by Position. Deleted
// entries are retained (not removed) until rollover drains them into the
// minute's frozen buffer, so they still contribute to that minute's
// aggregate.
type DepthEntry struct {
	Position int
	Price    float64
	Volume   float64
	Side     DepthSide
	Status   DepthStatus
}

// MinuteBarL1 is the OHLCV bar built from one minute of TickL1 observations.
type MinuteBarL1 struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// DepthBucket is one slot of the MinuteBarL2 histogram.
type DepthBucket struct {
	MidPrice  float64
	BuyVolume  float64
	SellVolume float64
}

// HistogramBuckets is the fixed bucket count of the L2 depth histogram (§3).
const HistogramBuckets = 20

// MinuteBarL2 is the fixed-size buy/sell volume histogram over the price
// range observed during one minute. When min == max, Min and Max hold
// that price while Interval and every bucket stay zero.
type MinuteBarL2 struct {
	Min      float64
	Max      float64
	Interval float64
	Buckets  [HistogramBuckets]DepthBucket
}

// FeatureRecord is the pure-function output of the feature engine (C2)
// for one minute, given the frozen L1/L2 buffers and the indicator
// kernel's snapshot at bar time.
type FeatureRecord struct {
	WeightedAvgPrice  float64 `json:"weighted_avg_price"`
	BuySellRatio      float64 `json:"buy_sell_ratio"`
	DepthChange       float64 `json:"depth_change"`
	ImpliedLiquidity  float64 `json:"implied_liquidity"`
	PriceMomentum     float64 `json:"price_momentum"`
	TradeDensity      float64 `json:"trade_density"`
	RSI               float64 `json:"rsi"`
	MACD              float64 `json:"macd"`
	VWAP              float64 `json:"vwap"`
}

// CombinedBar is the atomic unit of realtime persistence: one minute's
// L1 bar, L2 histogram, and derived features, timestamped in local time.
type CombinedBar struct {
	Symbol    string        `json:"symbol"`
	Datetime  time.Time     `json:"datetime"`
	L1        MinuteBarL1   `json:"l1"`
	L2        MinuteBarL2   `json:"l2"`
	Features  FeatureRecord `json:"features"`
}

// DailyBar is one day's upserted OHLCV row plus the indicators computed
// against the per-symbol kernel state at that day. Primary key is
// (Date, Symbol).
type DailyBar struct {
	Date     time.Time
	Symbol   string
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	AdjClose float64
	SMA      float64
	EMA      float64
	RSI      float64
	MACD     float64
	VWAP     float64
	Momentum float64
}
