// Package aggregator implements the realtime aggregator (C6): it owns
// the L1 tick accumulator and the L2 depth book, consumes broker
// callbacks under a data lock, and runs the minute-boundary rollover
// that produces combined bars. Grounded in the teacher's OHLCV
// aggregator (internal/aggregation/ohlcv.go) for the ticker-driven
// completion-check loop and the "swap under lock, then process outside
// the lock" shape.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibflow/ingestd/internal/broker"
	"github.com/ibflow/ingestd/internal/depth"
	"github.com/ibflow/ingestd/internal/feature"
	"github.com/ibflow/ingestd/internal/indicator"
	"github.com/ibflow/ingestd/internal/models"
	"github.com/ibflow/ingestd/internal/persistence"
)

// SharedMemory is the subset of shm.Writer the aggregator needs — kept
// as an interface so Realtime is testable without a real mmap region.
type SharedMemory interface {
	Write(payload []byte) error
}

const (
	l1ReqID = 1
	l2ReqID = 2
	l2Depth = 60
)

// Realtime is C6. One instance handles exactly one symbol, per
// spec.md §3 ("the realtime path tracks exactly one symbol").
type Realtime struct {
	symbol  string
	session *broker.Session
	kernel  *indicator.Kernel
	book    *depth.Book
	feature *feature.Engine
	queue   *persistence.Queue
	shm     SharedMemory
	logger  *logrus.Entry

	dataMu sync.Mutex
	ticks  []models.TickL1
	lastPx float64

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewRealtime wires a Realtime aggregator around gateway for symbol.
func NewRealtime(symbol string, gateway broker.Gateway, host string, port int, kernel *indicator.Kernel, queue *persistence.Queue, shmWriter SharedMemory, logger *logrus.Logger) *Realtime {
	r := &Realtime{
		symbol:  symbol,
		kernel:  kernel,
		book:    depth.NewBook(),
		feature: feature.NewEngine(kernel),
		queue:   queue,
		shm:     shmWriter,
		logger:  logger.WithFields(logrus.Fields{"component": "realtime-aggregator", "symbol": symbol}),
		done:    make(chan struct{}),
	}
	handlers := broker.Handlers{
		OnTickPrice:   r.onTickPrice,
		OnTickSize:    r.onTickSize,
		OnDepthUpdate: r.onDepthUpdate,
		OnError: func(reqID, code int, msg string) {
			r.logger.WithFields(logrus.Fields{"req_id": reqID, "code": code}).Warn(msg)
		},
	}
	r.session = broker.NewSession(gateway, handlers, host, port, 0, logger)
	return r
}

// Start connects the broker session, subscribes to L1/L2, and launches
// the minute-boundary rollover task.
func (r *Realtime) Start(ctx context.Context) error {
	if r.running {
		return fmt.Errorf("realtime aggregator already running")
	}
	if ok := r.session.Connect(ctx, 5, 2*time.Second); !ok {
		return fmt.Errorf("broker session failed to connect")
	}
	contract := broker.Contract{Symbol: r.symbol}
	if err := r.session.RequestL1(l1ReqID, contract); err != nil {
		return fmt.Errorf("request l1: %w", err)
	}
	if err := r.session.RequestL2(l2ReqID, contract, l2Depth); err != nil {
		return fmt.Errorf("request l2: %w", err)
	}

	r.running = true
	r.wg.Add(1)
	go r.rolloverLoop(ctx)
	return nil
}

// Stop cooperatively ends the rollover loop and disconnects the broker
// session.
func (r *Realtime) Stop() error {
	if !r.running {
		return nil
	}
	close(r.done)
	r.wg.Wait()
	r.running = false
	return r.session.Disconnect()
}

func (r *Realtime) onTickPrice(reqID int, price float64) {
	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	r.lastPx = price
}

// onTickSize pairs the most recent LAST price with this LAST_SIZE into
// one TickL1 observation — the broker delivers price and size as
// separate callbacks for the same trade, size last.
func (r *Realtime) onTickSize(reqID int, size float64) {
	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	if r.lastPx == 0 {
		return
	}
	r.ticks = append(r.ticks, models.TickL1{Price: r.lastPx, Volume: size})
}

func (r *Realtime) onDepthUpdate(reqID int, position int, op broker.DepthOperation, side broker.DepthSide, price, size float64) {
	bookSide := models.DepthBuy
	if side == broker.DepthSideSell {
		bookSide = models.DepthSell
	}
	switch op {
	case broker.DepthOpInsert:
		r.book.Insert(position, bookSide, price, size)
	case broker.DepthOpUpdate:
		r.book.Update(position, bookSide, price, size)
	case broker.DepthOpDelete:
		r.book.Delete(position)
	}
}

func nextMinuteBoundary(t time.Time) time.Time {
	return t.Truncate(time.Minute).Add(time.Minute)
}

func (r *Realtime) rolloverLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		wait := time.Until(nextMinuteBoundary(time.Now()))
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(wait):
			r.rollover()
		}
	}
}

// rollover performs the five rollover steps (spec.md §4.6).
func (r *Realtime) rollover() {
	r.dataMu.Lock()
	ticks := r.ticks
	r.ticks = nil
	r.dataMu.Unlock()

	l2Empty := r.book.Empty()
	frozenL2 := r.book.Rollover()

	if len(ticks) == 0 || l2Empty {
		r.logger.Warn("empty minute at rollover, skipping")
		return
	}

	l1Bar := buildL1Bar(ticks)
	r.kernel.PushClose(r.symbol, l1Bar.Close)
	r.kernel.PushVolume(r.symbol, l1Bar.Volume)

	var l2Bar models.MinuteBarL2
	var rec models.FeatureRecord
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l2Bar = depth.BuildHistogram(frozenL2)
	}()
	go func() {
		defer wg.Done()
		rec = r.feature.Compute(r.symbol, ticks, frozenL2, l1Bar.Close, l1Bar.Volume)
	}()
	wg.Wait()

	bar := &models.CombinedBar{
		Symbol:   r.symbol,
		Datetime: time.Now(),
		L1:       l1Bar,
		L2:       l2Bar,
		Features: rec,
	}

	r.queue.Enqueue(&persistence.Job{Kind: persistence.JobRealtimeBar, Symbol: r.symbol, CombinedBar: bar})

	if r.shm != nil {
		payload, err := json.Marshal(bar)
		if err != nil {
			r.logger.WithError(err).Error("failed to marshal combined bar for shared memory")
			return
		}
		r.dataMu.Lock()
		err = r.shm.Write(payload)
		r.dataMu.Unlock()
		if err != nil {
			r.logger.WithError(err).Warn("shared memory write failed")
		}
	}
}

func buildL1Bar(ticks []models.TickL1) models.MinuteBarL1 {
	bar := models.MinuteBarL1{Open: ticks[0].Price, High: ticks[0].Price, Low: ticks[0].Price}
	for _, t := range ticks {
		if t.Price > bar.High {
			bar.High = t.Price
		}
		if t.Price < bar.Low {
			bar.Low = t.Price
		}
		bar.Volume += t.Volume
	}
	bar.Close = ticks[len(ticks)-1].Price
	return bar
}
