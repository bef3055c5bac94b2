// Package backfill implements the daily backfill driver (C7): for each
// configured symbol it walks the calendar day by day, issues a single-
// day historical request per trading day, and upserts the resulting
// daily bar with indicators computed against the kernel's seeded state.
//
// Grounded in the teacher's historical loader
// (internal/services/historical_loader.go) for the checkpoint/resume
// shape and retry structure, though symbols are walked strictly in
// list order here (not the teacher's semaphore-bounded concurrent
// fan-out) because spec.md §5 requires backfill-between-symbols order
// to match list iteration order.
package backfill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibflow/ingestd/internal/broker"
	"github.com/ibflow/ingestd/internal/calendar"
	"github.com/ibflow/ingestd/internal/indicator"
	"github.com/ibflow/ingestd/internal/models"
	"github.com/ibflow/ingestd/internal/persistence"
)

// Store is the subset of the persistence boundary the driver needs to
// determine incremental resume points and seed the indicator kernel.
type Store interface {
	MaxDate(ctx context.Context, symbol string) (date time.Time, found bool, err error)
	RecentDailyCloses(ctx context.Context, symbol string, n int) ([]float64, error)
}

// historicalRequestTimeout and retry parameters match spec.md §4.7.
const (
	historicalRequestTimeout = 30 * time.Second
	maxRetries               = 3
	retryPause               = 5 * time.Second
	backfillYearsLookback    = 10
)

type dayResult struct {
	bar broker.HistoricalBar
	err error
}

// Driver is C7.
type Driver struct {
	symbols     []string
	incremental bool
	session     *broker.Session
	kernel      *indicator.Kernel
	queue       *persistence.Queue
	store       Store
	logger      *logrus.Entry

	mu      sync.Mutex
	pending map[int]chan dayResult
	lastBar map[int]broker.HistoricalBar
	reqSeq  int
}

// NewDriver wires a backfill driver around gateway for the given symbol
// list, walked strictly in order.
func NewDriver(symbols []string, incremental bool, gateway broker.Gateway, host string, port int, kernel *indicator.Kernel, queue *persistence.Queue, store Store, logger *logrus.Logger) *Driver {
	d := &Driver{
		symbols:     symbols,
		incremental: incremental,
		kernel:      kernel,
		queue:       queue,
		store:       store,
		logger:      logger.WithField("component", "backfill-driver"),
		pending:     make(map[int]chan dayResult),
		lastBar:     make(map[int]broker.HistoricalBar),
	}
	handlers := broker.Handlers{
		OnHistoricalBar: d.onHistoricalBar,
		OnHistoricalEnd: d.onHistoricalEnd,
		OnError: func(reqID, code int, msg string) {
			d.logger.WithFields(logrus.Fields{"req_id": reqID, "code": code}).Warn(msg)
		},
	}
	// client id 2, per spec.md §6 ("backfill=2").
	d.session = broker.NewSession(gateway, handlers, host, port, 2, logger)
	return d
}

// Connect establishes the backfill session.
func (d *Driver) Connect(ctx context.Context) bool {
	return d.session.Connect(ctx, 5, 2*time.Second)
}

// Disconnect tears down the backfill session.
func (d *Driver) Disconnect() error {
	return d.session.Disconnect()
}

// Run walks every configured symbol, in list order, end to end.
func (d *Driver) Run(ctx context.Context) error {
	for _, symbol := range d.symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.runSymbol(ctx, symbol); err != nil {
			d.logger.WithError(err).WithField("symbol", symbol).Error("backfill failed for symbol")
		}
	}
	return nil
}

func (d *Driver) runSymbol(ctx context.Context, symbol string) error {
	start, err := d.startDate(ctx, symbol)
	if err != nil {
		return fmt.Errorf("determine start date: %w", err)
	}
	end := time.Now()

	if err := d.seed(ctx, symbol); err != nil {
		d.logger.WithError(err).WithField("symbol", symbol).Warn("failed to seed indicator state, starting cold")
	}

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if !calendar.IsTradingDay(day) {
			continue
		}
		bar, ok := d.requestDayWithRetry(ctx, symbol, day)
		if !ok {
			d.logger.WithFields(logrus.Fields{"symbol": symbol, "day": day.Format("2006-01-02")}).Error("historical day abandoned after max retries")
			continue
		}
		d.enqueueDailyBar(symbol, day, bar)
	}
	return nil
}

// startDate determines the incremental resume point: the day after the
// symbol's latest stored date, or ten years before today if no rows
// exist (or incremental resume is disabled).
func (d *Driver) startDate(ctx context.Context, symbol string) (time.Time, error) {
	if d.incremental {
		maxDate, found, err := d.store.MaxDate(ctx, symbol)
		if err != nil {
			return time.Time{}, err
		}
		if found {
			return maxDate.AddDate(0, 0, 1), nil
		}
	}
	return time.Now().AddDate(-backfillYearsLookback, 0, 0), nil
}

// seed preloads the indicator kernel from the most recent max_period
// persisted daily rows so the rolling windows don't start cold.
func (d *Driver) seed(ctx context.Context, symbol string) error {
	closes, err := d.store.RecentDailyCloses(ctx, symbol, indicator.MaxPeriod)
	if err != nil {
		return err
	}
	d.kernel.Seed(symbol, closes)
	return nil
}

func (d *Driver) nextReqID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqSeq++
	return d.reqSeq
}

// requestDayWithRetry issues a single-day historical request, retrying
// up to maxRetries times with retryPause between attempts.
func (d *Driver) requestDayWithRetry(ctx context.Context, symbol string, day time.Time) (broker.HistoricalBar, bool) {
	var last error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		bar, err := d.requestDay(ctx, symbol, day)
		if err == nil {
			return bar, true
		}
		last = err
		if attempt > maxRetries {
			break
		}
		d.logger.WithError(err).WithFields(logrus.Fields{
			"symbol": symbol, "day": day.Format("2006-01-02"), "attempt": attempt,
		}).Warn("historical request failed, retrying")
		select {
		case <-ctx.Done():
			return broker.HistoricalBar{}, false
		case <-time.After(retryPause):
		}
	}
	_ = last
	return broker.HistoricalBar{}, false
}

func (d *Driver) requestDay(ctx context.Context, symbol string, day time.Time) (broker.HistoricalBar, error) {
	reqID := d.nextReqID()
	ch := make(chan dayResult, 1)
	d.mu.Lock()
	d.pending[reqID] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, reqID)
		d.mu.Unlock()
	}()

	if err := d.session.RequestHistoricalDay(reqID, broker.Contract{Symbol: symbol}, day); err != nil {
		return broker.HistoricalBar{}, err
	}

	select {
	case res := <-ch:
		return res.bar, res.err
	case <-time.After(historicalRequestTimeout):
		return broker.HistoricalBar{}, fmt.Errorf("historical request timed out for %s on %s", symbol, day.Format("2006-01-02"))
	case <-ctx.Done():
		return broker.HistoricalBar{}, ctx.Err()
	}
}

func (d *Driver) onHistoricalBar(reqID int, bar broker.HistoricalBar) {
	d.mu.Lock()
	d.lastBar[reqID] = bar
	d.mu.Unlock()
}

func (d *Driver) onHistoricalEnd(reqID int) {
	d.mu.Lock()
	ch, ok := d.pending[reqID]
	bar, hasBar := d.lastBar[reqID]
	delete(d.lastBar, reqID)
	d.mu.Unlock()
	if !ok {
		return
	}
	if !hasBar {
		ch <- dayResult{err: fmt.Errorf("historical data end with no bar for req %d", reqID)}
		return
	}
	ch <- dayResult{bar: bar}
}

// enqueueDailyBar computes the derived indicators against the kernel's
// current state and enqueues the resulting row for upsert.
func (d *Driver) enqueueDailyBar(symbol string, day time.Time, bar broker.HistoricalBar) {
	daily := &models.DailyBar{
		Date:     day,
		Symbol:   symbol,
		Open:     bar.Open,
		High:     bar.High,
		Low:      bar.Low,
		Close:    bar.Close,
		Volume:   bar.Volume,
		AdjClose: bar.Close,
	}
	daily.SMA = d.kernel.SMA(symbol, bar.Close, indicator.DefaultSMAPeriod)
	daily.EMA = d.kernel.EMA(symbol, bar.Close, indicator.DefaultSMAPeriod)
	daily.RSI = d.kernel.RSI(symbol, bar.Close, indicator.DefaultRSIPeriod)
	daily.MACD = d.kernel.MACD(symbol, bar.Close)
	daily.VWAP = d.kernel.VWAP(symbol, bar.Volume, bar.Close)
	daily.Momentum = d.kernel.Momentum(symbol, bar.Close, indicator.DefaultMomentumPeriod)

	d.queue.Enqueue(&persistence.Job{Kind: persistence.JobDailyBar, Symbol: symbol, DailyBar: daily})
}
