package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hadrianl/ibapi"
)

// IBGateway binds the Gateway capability interface to the real IB TWS
// API client. It is the sole file in this repository that imports
// ibapi — the rest of the broker package, and everything above it, is
// isolated behind Gateway so the session state machine and its backoff
// logic are testable without a live TWS/Gateway process.
type IBGateway struct {
	client *ibapi.IbClient

	mu       sync.Mutex
	messages chan Message
	nextID   int
}

// NewIBGateway constructs an adapter around a fresh ibapi client. The
// wrapper registers itself as the client's callback sink, matching
// original_source's EWrapper-subclass pattern but narrowed to the
// handful of callbacks this repo consumes.
func NewIBGateway() *IBGateway {
	g := &IBGateway{messages: make(chan Message, 256)}
	wrapper := &ibWrapper{gateway: g}
	g.client = ibapi.NewIbClient(wrapper)
	return g
}

func (g *IBGateway) Connect(ctx context.Context, host string, port int, clientID int) error {
	if err := g.client.Connect(host, port, clientID); err != nil {
		return fmt.Errorf("ib connect: %w", err)
	}
	g.client.HandShake()
	go g.client.Run()
	return nil
}

func (g *IBGateway) Disconnect() error {
	g.client.Disconnect()
	g.mu.Lock()
	if g.messages != nil {
		close(g.messages)
		g.messages = nil
	}
	g.mu.Unlock()
	return nil
}

func (g *IBGateway) Connected() bool {
	return g.client.IsConnected()
}

func (g *IBGateway) contract(c Contract) *ibapi.Contract {
	ct := ibapi.NewContract()
	ct.Symbol = c.Symbol
	ct.SecType = "STK"
	ct.Exchange = "SMART"
	ct.Currency = "USD"
	return ct
}

func (g *IBGateway) RequestL1(reqID int, contract Contract) error {
	g.client.ReqMktData(int64(reqID), g.contract(contract), "", false, false, nil)
	return nil
}

func (g *IBGateway) RequestL2(reqID int, contract Contract, depthRows int) error {
	g.client.ReqMktDepth(int64(reqID), g.contract(contract), int64(depthRows), false, nil)
	return nil
}

func (g *IBGateway) RequestHistoricalDay(reqID int, contract Contract, day time.Time) error {
	end := day.Format("20060102-23:59:59")
	g.client.ReqHistoricalData(int64(reqID), g.contract(contract), end, "1 D", "1 day", "TRADES", 1, 1, false, nil)
	return nil
}

func (g *IBGateway) CancelRequest(reqID int) error {
	g.client.CancelMktData(int64(reqID))
	g.client.CancelMktDepth(int64(reqID), false)
	return nil
}

func (g *IBGateway) Messages() <-chan Message {
	return g.messages
}

func (g *IBGateway) emit(msg Message) {
	g.mu.Lock()
	ch := g.messages
	g.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

// ibWrapper implements ibapi's callback interface and forwards only the
// events Gateway callers need onto the adapter's Messages channel. Every
// other callback the library requires is a no-op, mirroring
// original_source/include/RealTimeData.h's "unused EWrapper methods,
// implement to avoid a pure virtual class" block.
type ibWrapper struct {
	ibapi.Wrapper
	gateway *IBGateway
}

func (w *ibWrapper) TickPrice(reqID int64, tick ibapi.TickType, price float64, attrib ibapi.TickAttrib) {
	if tick != ibapi.LAST {
		return
	}
	w.gateway.emit(Message{Kind: MsgTickPrice, ReqID: int(reqID), TickField: TickFieldLast, Price: price})
}

func (w *ibWrapper) TickSize(reqID int64, tick ibapi.TickType, size float64) {
	if tick != ibapi.LAST_SIZE {
		return
	}
	w.gateway.emit(Message{Kind: MsgTickSize, ReqID: int(reqID), TickField: TickFieldLastSize, Size: size})
}

func (w *ibWrapper) UpdateMktDepth(reqID int64, position int64, operation int64, side int64, price float64, size float64) {
	w.gateway.emit(Message{
		Kind:           MsgDepthUpdate,
		ReqID:          int(reqID),
		DepthPosition:  int(position),
		DepthOperation: DepthOperation(operation),
		DepthSide:      DepthSide(side),
		Price:          price,
		Size:           size,
	})
}

func (w *ibWrapper) HistoricalData(reqID int64, bar *ibapi.Bar) {
	t, _ := time.Parse("20060102", bar.Date)
	w.gateway.emit(Message{
		Kind:  MsgHistoricalBar,
		ReqID: int(reqID),
		Bar: HistoricalBar{
			Time:   t,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		},
	})
}

func (w *ibWrapper) HistoricalDataEnd(reqID int64, startDate, endDate string) {
	w.gateway.emit(Message{Kind: MsgHistoricalEnd, ReqID: int(reqID)})
}

func (w *ibWrapper) NextValidId(orderID int64) {
	w.gateway.emit(Message{Kind: MsgNextValidID, NextValidID: int(orderID)})
}

func (w *ibWrapper) Error(reqID int64, errCode int64, errString string, advancedOrderRejectJson string) {
	w.gateway.emit(Message{Kind: MsgError, ReqID: int(reqID), ErrorCode: int(errCode), ErrorMsg: errString})
}
