// Package broker implements the broker session lifecycle (C5): a
// connect/reader-pump/reconnect/backoff state machine wrapped around a
// capability-object Gateway. Grounded in the teacher's connection-pool
// reconnection handler (internal/exchange/pool.go) for the backoff
// shape, and in original_source's RealTimeData EWrapper subclass for
// the capability-object boundary spec.md §9 calls for — this repo's
// Gateway exposes only the handful of callbacks the aggregator and
// backfill driver actually consume instead of the ~100-method EWrapper.
package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// State is one node of the session state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateRunning
	StateDegraded
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateDegraded:
		return "degraded"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// MessageKind discriminates a Message from the Gateway.
type MessageKind int

const (
	MsgTickPrice MessageKind = iota
	MsgTickSize
	MsgDepthUpdate
	MsgHistoricalBar
	MsgHistoricalEnd
	MsgNextValidID
	MsgError
)

// TickField mirrors the broker's tick-type enum; only LAST and
// LAST_SIZE are retained anywhere downstream.
type TickField int

const (
	TickFieldLast     TickField = 4
	TickFieldLastSize TickField = 5
)

// DepthOperation mirrors the broker's update_mkt_depth operation field.
type DepthOperation int

const (
	DepthOpInsert DepthOperation = 0
	DepthOpUpdate DepthOperation = 1
	DepthOpDelete DepthOperation = 2
)

// DepthSide mirrors the broker's update_mkt_depth side field.
type DepthSide int

const (
	DepthSideBuy  DepthSide = 0
	DepthSideSell DepthSide = 1
)

// HistoricalBar is one bar from a historical-data callback.
type HistoricalBar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Message is one inbound event from the Gateway's message stream. Only
// the fields relevant to Kind are set.
type Message struct {
	Kind MessageKind
	ReqID int

	TickField TickField
	Price     float64
	Size      float64

	DepthPosition  int
	DepthOperation DepthOperation
	DepthSide      DepthSide

	Bar HistoricalBar

	NextValidID int

	ErrorCode int
	ErrorMsg  string
}

// Contract identifies the instrument a request targets. The core only
// ever needs a symbol; exchange/currency defaults are the adapter's
// concern.
type Contract struct {
	Symbol string
}

// Gateway is the capability object the broker wire protocol must
// satisfy — connect/disconnect, the three outbound request kinds the
// core issues, and a single Messages channel standing in for the
// "wait-for-signal; drain messages" reader pump. Messages must be
// closed once the gateway disconnects, so the reader task can exit
// without a separate poll. Implemented for real by ibadapter.go against
// github.com/hadrianl/ibapi; fakeable in tests.
type Gateway interface {
	Connect(ctx context.Context, host string, port int, clientID int) error
	Disconnect() error
	Connected() bool
	RequestL1(reqID int, contract Contract) error
	RequestL2(reqID int, contract Contract, depthRows int) error
	RequestHistoricalDay(reqID int, contract Contract, day time.Time) error
	CancelRequest(reqID int) error
	Messages() <-chan Message
}

// Handlers are the callbacks the owner (realtime aggregator or backfill
// driver) registers to receive dispatched Gateway messages.
type Handlers struct {
	OnTickPrice     func(reqID int, price float64)
	OnTickSize      func(reqID int, size float64)
	OnDepthUpdate   func(reqID int, position int, op DepthOperation, side DepthSide, price, size float64)
	OnHistoricalBar func(reqID int, bar HistoricalBar)
	OnHistoricalEnd func(reqID int)
	OnError         func(reqID, code int, msg string)
}

// backoffInitial and backoffMax bound the rate-limit exponential
// backoff (doubling from 1s, capped at 300s) per spec.md §4.5.
const (
	backoffInitial = 1 * time.Second
	backoffMax     = 300 * time.Second
)

// firstIDTimeout is how long Connecting waits for the broker's first
// NextValidId callback before treating an attempt as failed.
const firstIDTimeout = 30 * time.Second

// Session drives the C5 state machine around a Gateway.
type Session struct {
	gateway  Gateway
	handlers Handlers
	logger   *logrus.Entry
	host     string
	port     int
	clientID int

	mu    sync.Mutex
	state State

	nextValidID chan int

	backoff time.Duration

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSession creates a session bound to gateway, targeting host:port
// with the given client id (realtime=0, backfill=2 per spec.md §6).
func NewSession(gateway Gateway, handlers Handlers, host string, port, clientID int, logger *logrus.Logger) *Session {
	return &Session{
		gateway:     gateway,
		handlers:    handlers,
		logger:      logger.WithFields(logrus.Fields{"component": "broker-session", "client_id": clientID}),
		host:        host,
		port:        port,
		clientID:    clientID,
		state:       StateDisconnected,
		nextValidID: make(chan int, 1),
		backoff:     backoffInitial,
		done:        make(chan struct{}),
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the current state machine node.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect performs Connecting: it dials the gateway, waits (bounded at
// firstIDTimeout) for the first NextValidId callback, retrying up to
// maxRetries times with a fixed delay between attempts. On success it
// starts the reader task and transitions to Running; on exhaustion it
// transitions to Disconnected and returns false.
func (s *Session) Connect(ctx context.Context, maxRetries int, delay time.Duration) bool {
	s.setState(StateConnecting)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := s.gateway.Connect(ctx, s.host, s.port, s.clientID); err != nil {
			s.logger.WithError(err).WithField("attempt", attempt).Error("broker connect failed")
			s.waitRetry(ctx, delay)
			continue
		}
		s.setState(StateConnected)
		s.running.Store(true)
		s.wg.Add(1)
		go s.readerLoop(ctx)

		select {
		case <-s.nextValidID:
			s.setState(StateRunning)
			return true
		case <-time.After(firstIDTimeout):
			s.logger.WithField("attempt", attempt).Warn("timed out waiting for next valid id")
			s.gateway.Disconnect()
			s.wg.Wait()
			s.running.Store(false)
		case <-ctx.Done():
			s.gateway.Disconnect()
			s.wg.Wait()
			s.running.Store(false)
			s.setState(StateDisconnected)
			return false
		}
		s.waitRetry(ctx, delay)
	}

	s.setState(StateDisconnected)
	return false
}

func (s *Session) waitRetry(ctx context.Context, delay time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// RequestL1 issues a trade-tick subscription for contract under reqID.
func (s *Session) RequestL1(reqID int, contract Contract) error {
	return s.gateway.RequestL1(reqID, contract)
}

// RequestL2 issues a market-depth subscription for contract under reqID.
func (s *Session) RequestL2(reqID int, contract Contract, depthRows int) error {
	if depthRows <= 0 {
		depthRows = 60
	}
	return s.gateway.RequestL2(reqID, contract, depthRows)
}

// RequestHistoricalDay issues a single-day historical-data request.
func (s *Session) RequestHistoricalDay(reqID int, contract Contract, day time.Time) error {
	return s.gateway.RequestHistoricalDay(reqID, contract, day)
}

// readerLoop is the Running reader task: it drains the Gateway's
// message stream until stop is set or the socket disconnects,
// dispatching each message by kind and routing errors through the
// error-code taxonomy.
func (s *Session) readerLoop(ctx context.Context) {
	defer s.wg.Done()
	messages := s.gateway.Messages()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			s.dispatch(ctx, msg)
			if !s.gateway.Connected() {
				return
			}
		}
	}
}

func (s *Session) dispatch(ctx context.Context, msg Message) {
	switch msg.Kind {
	case MsgNextValidID:
		select {
		case s.nextValidID <- msg.NextValidID:
		default:
		}
	case MsgTickPrice:
		if msg.TickField == TickFieldLast && s.handlers.OnTickPrice != nil {
			s.handlers.OnTickPrice(msg.ReqID, msg.Price)
		}
	case MsgTickSize:
		if msg.TickField == TickFieldLastSize && s.handlers.OnTickSize != nil {
			s.handlers.OnTickSize(msg.ReqID, msg.Size)
		}
	case MsgDepthUpdate:
		if s.handlers.OnDepthUpdate != nil {
			s.handlers.OnDepthUpdate(msg.ReqID, msg.DepthPosition, msg.DepthOperation, msg.DepthSide, msg.Price, msg.Size)
		}
	case MsgHistoricalBar:
		if s.handlers.OnHistoricalBar != nil {
			s.handlers.OnHistoricalBar(msg.ReqID, msg.Bar)
		}
	case MsgHistoricalEnd:
		if s.handlers.OnHistoricalEnd != nil {
			s.handlers.OnHistoricalEnd(msg.ReqID)
		}
	case MsgError:
		s.handleError(ctx, msg.ReqID, msg.ErrorCode, msg.ErrorMsg)
	}
}

// handleError routes a broker error code by kind per spec.md §6/§7.
func (s *Session) handleError(ctx context.Context, reqID, code int, message string) {
	logger := s.logger.WithFields(logrus.Fields{"req_id": reqID, "code": code})
	switch code {
	case 1100, 1101:
		logger.Warn("broker connection lost")
		s.setState(StateDegraded)
		go s.reconnect(ctx)
	case 1102:
		logger.Info("broker connectivity restored")
		s.setState(StateRunning)
	case 2104, 2106:
		logger.Info(message)
	case 2105, 2107:
		logger.Warn("market data farm connection degraded")
		s.setState(StateDegraded)
	case 10090:
		logger.Error("market data subscription missing")
	case 200:
		logger.Error("bad contract")
	case 322:
		logger.Error("duplicate request id")
	case 504:
		logger.Error("not connected")
	case 509:
		logger.Warn("rate limited, backing off")
		s.backoffSleep(ctx)
	case 2152:
		logger.Error("missing market data permissions")
	default:
		logger.WithField("message", message).Warn("broker error")
	}
	if s.handlers.OnError != nil {
		s.handlers.OnError(reqID, code, message)
	}
}

// backoffSleep waits the current backoff duration then doubles it,
// capped at backoffMax, per spec.md's 1s→300s doubling schedule.
func (s *Session) backoffSleep(ctx context.Context) {
	s.mu.Lock()
	wait := s.backoff
	s.backoff *= 2
	if s.backoff > backoffMax {
		s.backoff = backoffMax
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(wait):
	case <-s.done:
	}
}

// reconnect attempts to re-establish the connection after a connection-
// loss error code, without tearing down in-memory accumulators — late
// ticks continue to buffer while reconnecting.
func (s *Session) reconnect(ctx context.Context) {
	if ok := s.Connect(ctx, 5, 2*time.Second); !ok {
		s.logger.Error("reconnect exhausted retries")
	}
}

// Disconnect performs Closing: sets the stop flag, disconnects the
// gateway, and joins the reader task.
func (s *Session) Disconnect() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.setState(StateClosing)
	close(s.done)
	err := s.gateway.Disconnect()
	s.wg.Wait()
	s.setState(StateDisconnected)
	return err
}

// Err formats a session-level error with state context, used by callers
// that need to surface a fatal condition.
func (s *Session) Err(msg string) error {
	return fmt.Errorf("broker session (%s): %s", s.State(), msg)
}
