package aggregator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ever_greater/internal/aggregator"
	"ever_greater/internal/domain"
	"ever_greater/internal/ledger"
	"ever_greater/internal/push"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []push.Frame
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if frame, ok := v.(push.Frame); ok {
		f.frames = append(f.frames, frame)
	}
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) recorded() []push.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]push.Frame, len(f.frames))
	copy(out, f.frames)
	return out
}

func TestTick_PushesToBoundConnections(t *testing.T) {
	// A connection bound to a producing user receives the new count and
	// exactly one user_update carrying the post-tick fields.
	led := ledger.NewMemoryLedger()
	led.Put(domain.User{ID: 7, Autoprinters: 2, PrinterSupplies: 10})
	reg := push.NewRegistry()
	disp := push.NewDispatcher(reg)
	conn := &fakeConn{}
	require.True(t, reg.Bind(reg.Add(conn), 7))

	agg := aggregator.New(led, disp, reg, nil, time.Second)
	agg.Tick(context.Background())

	frames := conn.recorded()
	require.Len(t, frames, 2)
	require.NotNil(t, frames[0].Count)
	assert.Equal(t, int64(2), *frames[0].Count)
	require.NotNil(t, frames[1].UserUpdate)
	assert.Equal(t, int64(8), *frames[1].UserUpdate.Supplies)
	assert.Equal(t, int64(2), *frames[1].UserUpdate.Money)
	assert.Equal(t, int64(2), *frames[1].UserUpdate.TicketsContributed)
}

func TestTick_UnboundConnectionGetsCountOnly(t *testing.T) {
	led := ledger.NewMemoryLedger()
	led.Put(domain.User{ID: 7, Autoprinters: 1, PrinterSupplies: 1})
	reg := push.NewRegistry()
	disp := push.NewDispatcher(reg)
	conn := &fakeConn{}
	reg.Add(conn) // never authenticates

	agg := aggregator.New(led, disp, reg, nil, time.Second)
	agg.Tick(context.Background())

	frames := conn.recorded()
	require.Len(t, frames, 1)
	assert.NotNil(t, frames[0].Count)
}

func TestTick_NothingProducedPushesNothing(t *testing.T) {
	led := ledger.NewMemoryLedger()
	led.Put(domain.User{ID: 7, PrinterSupplies: 100}) // no autoprinters
	reg := push.NewRegistry()
	disp := push.NewDispatcher(reg)
	conn := &fakeConn{}
	require.True(t, reg.Bind(reg.Add(conn), 7))

	agg := aggregator.New(led, disp, reg, nil, time.Second)
	agg.Tick(context.Background())

	assert.Empty(t, conn.recorded())
}

// failingLedger simulates a backend outage during the tick itself.
type failingLedger struct {
	*ledger.MemoryLedger
}

func (f *failingLedger) RunAggregationTick(ctx context.Context) (*ledger.TickResult, error) {
	return nil, errors.New("backend unavailable")
}

func TestTick_ErrorIsLoggedAndSkipped(t *testing.T) {
	led := &failingLedger{ledger.NewMemoryLedger()}
	reg := push.NewRegistry()
	disp := push.NewDispatcher(reg)
	conn := &fakeConn{}
	reg.Add(conn)

	agg := aggregator.New(led, disp, reg, nil, time.Second)
	// A failed firing pushes nothing and must not panic the schedule
	agg.Tick(context.Background())
	agg.Tick(context.Background())

	assert.Empty(t, conn.recorded())
}

func TestRun_StopsOnCancel(t *testing.T) {
	led := ledger.NewMemoryLedger()
	reg := push.NewRegistry()
	agg := aggregator.New(led, push.NewDispatcher(reg), reg, nil, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("aggregator did not stop after cancel")
	}
}
