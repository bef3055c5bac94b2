package broker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeGateway struct {
	mu        sync.Mutex
	connected bool
	failNext  bool
	messages  chan Message
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{messages: make(chan Message, 16)}
}

func (g *fakeGateway) Connect(ctx context.Context, host string, port int, clientID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failNext {
		g.failNext = false
		return errors.New("connect refused")
	}
	g.connected = true
	return nil
}

func (g *fakeGateway) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	if g.messages != nil {
		close(g.messages)
		g.messages = nil
	}
	return nil
}

func (g *fakeGateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

func (g *fakeGateway) RequestL1(reqID int, contract Contract) error              { return nil }
func (g *fakeGateway) RequestL2(reqID int, contract Contract, rows int) error    { return nil }
func (g *fakeGateway) RequestHistoricalDay(reqID int, c Contract, d time.Time) error {
	return nil
}
func (g *fakeGateway) CancelRequest(reqID int) error { return nil }

func (g *fakeGateway) Messages() <-chan Message {
	return g.messages
}

func (g *fakeGateway) push(msg Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.messages != nil {
		g.messages <- msg
	}
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestConnectSucceedsAfterNextValidID(t *testing.T) {
	gw := newFakeGateway()
	s := NewSession(gw, Handlers{}, "127.0.0.1", 7496, 0, testLogger())

	go func() {
		time.Sleep(10 * time.Millisecond)
		gw.push(Message{Kind: MsgNextValidID, NextValidID: 1})
	}()

	ok := s.Connect(context.Background(), 3, 10*time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, StateRunning, s.State())
}

func TestConnectRetriesOnGatewayFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.failNext = true
	s := NewSession(gw, Handlers{}, "127.0.0.1", 7496, 0, testLogger())

	go func() {
		time.Sleep(20 * time.Millisecond)
		gw.push(Message{Kind: MsgNextValidID, NextValidID: 1})
	}()

	ok := s.Connect(context.Background(), 3, 5*time.Millisecond)
	assert.True(t, ok)
}

func TestDispatchRoutesTickPriceOnlyForLastField(t *testing.T) {
	gw := newFakeGateway()
	var gotPrice float64
	s := NewSession(gw, Handlers{OnTickPrice: func(reqID int, price float64) { gotPrice = price }}, "h", 1, 0, testLogger())

	s.dispatch(context.Background(), Message{Kind: MsgTickPrice, TickField: TickFieldLast, Price: 100.5})
	assert.Equal(t, 100.5, gotPrice)

	gotPrice = 0
	s.dispatch(context.Background(), Message{Kind: MsgTickPrice, TickField: 99, Price: 200})
	assert.Equal(t, 0.0, gotPrice)
}

func TestHandleErrorBacksOffOnRateLimit(t *testing.T) {
	gw := newFakeGateway()
	s := NewSession(gw, Handlers{}, "h", 1, 0, testLogger())
	s.backoff = 1 * time.Millisecond

	start := time.Now()
	s.handleError(context.Background(), 1, 509, "pacing violation")
	assert.GreaterOrEqual(t, time.Since(start), time.Millisecond)
	assert.Equal(t, 2*time.Millisecond, s.backoff)
}

func TestHandleErrorMarksDegradedOnConnectionLoss(t *testing.T) {
	gw := newFakeGateway()
	gw.connected = true
	s := NewSession(gw, Handlers{}, "h", 1, 0, testLogger())
	s.setState(StateRunning)

	s.handleError(context.Background(), 0, 1100, "connection lost")
	assert.Equal(t, StateDegraded, s.State())
}
