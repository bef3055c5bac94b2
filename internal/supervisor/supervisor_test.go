package supervisor

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeRealtime struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
}

func (f *fakeRealtime) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeRealtime) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeRealtime) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

type fakeBackfill struct {
	runs int32
}

func (f *fakeBackfill) Connect(ctx context.Context) bool { return true }
func (f *fakeBackfill) Disconnect() error                { return nil }
func (f *fakeBackfill) Run(ctx context.Context) error {
	atomic.AddInt32(&f.runs, 1)
	return nil
}

func TestStopIsIdempotentAndWakesWaiters(t *testing.T) {
	s := New(nil, nil, testLogger())
	done := make(chan struct{})
	go func() {
		assert.False(t, s.waitFor(context.Background(), func() bool { return false }))
		close(done)
	}()

	s.Stop()
	s.Stop() // must not panic or block on double-close

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitFor did not wake on Stop")
	}
}

func TestWaitForReturnsTrueWhenConditionAlreadyTrue(t *testing.T) {
	s := New(nil, nil, testLogger())
	assert.True(t, s.waitFor(context.Background(), func() bool { return true }))
}

func TestWaitForReturnsFalseWhenContextDone(t *testing.T) {
	s := New(nil, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, s.waitFor(ctx, func() bool { return false }))
}

func TestRunStartsBackfillPassWhenMarketClosed(t *testing.T) {
	bf := &fakeBackfill{}
	s := New(nil, bf, testLogger())
	s.isMarketHours = func() bool { return false }
	s.idleSleep = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(runDone)
	}()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&bf.runs) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRealtimeTaskStartsOnOpenAndStopsOnClose(t *testing.T) {
	rt := &fakeRealtime{}
	s := New(rt, nil, testLogger())
	s.pollInterval = 10 * time.Millisecond

	var open atomic.Bool
	open.Store(false)
	s.isMarketHours = open.Load

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(runDone)
	}()

	time.Sleep(20 * time.Millisecond)
	starts, _ := rt.counts()
	assert.Equal(t, 0, starts)

	open.Store(true)
	assert.Eventually(t, func() bool {
		starts, _ := rt.counts()
		return starts == 1
	}, 2*time.Second, 10*time.Millisecond)

	open.Store(false)
	assert.Eventually(t, func() bool {
		_, stops := rt.counts()
		return stops == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestStopBeforeRunPreventsAnyWork(t *testing.T) {
	rt := &fakeRealtime{}
	bf := &fakeBackfill{}
	s := New(rt, bf, testLogger())
	s.Stop()

	ctx := context.Background()
	runDone := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(runDone)
	}()

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run did not return immediately when already stopped")
	}

	starts, stops := rt.counts()
	assert.Equal(t, 0, starts)
	assert.Equal(t, 0, stops)
	assert.Equal(t, int32(0), atomic.LoadInt32(&bf.runs))
}
