package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	name string
	log  *[]string
	evs  []Event
}

func (c *collector) HandleEvent(_ context.Context, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, ev)
	*c.log = append(*c.log, c.name)
}

func TestDispatcherDeliversInOrderToEveryHandler(t *testing.T) {
	var order []string
	a := &collector{name: "a", log: &order}
	b := &collector{name: "b", log: &order}

	d := NewDispatcher(4, zerolog.Nop())
	d.Register(a)
	d.Register(b)

	go d.Run(context.Background())

	for i := int64(1); i <= 3; i++ {
		d.Emit(Event{Kind: EventJobCompleted, CorrelationID: i})
	}
	d.Close()
	<-d.Done()

	require.Len(t, a.evs, 3)
	require.Len(t, b.evs, 3)
	for i, ev := range a.evs {
		assert.Equal(t, int64(i+1), ev.CorrelationID)
		assert.False(t, ev.At.IsZero())
	}
	assert.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, order)
}

func TestDispatcherDropsAfterClose(t *testing.T) {
	var order []string
	c := &collector{name: "c", log: &order}
	d := NewDispatcher(1, zerolog.Nop())
	d.Register(c)

	d.Close()
	d.Close()
	d.Emit(Event{Kind: EventJobFailed})

	go d.Run(context.Background())
	<-d.Done()
	assert.Empty(t, c.evs)
}

func TestDispatcherDrainsOnContextCancel(t *testing.T) {
	var order []string
	c := &collector{name: "c", log: &order}
	d := NewDispatcher(8, zerolog.Nop())
	d.Register(c)

	for i := 0; i < 5; i++ {
		d.Emit(Event{Kind: EventPrinterStatusChanged, Device: "P"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	assert.Len(t, c.evs, 5)
}

func TestDispatcherCloseUnblocksFullEmit(t *testing.T) {
	d := NewDispatcher(1, zerolog.Nop())
	d.Emit(Event{Kind: EventJobCompleted})

	emitted := make(chan struct{})
	go func() {
		d.Emit(Event{Kind: EventJobCompleted})
		close(emitted)
	}()

	time.Sleep(10 * time.Millisecond)
	d.Close()
	select {
	case <-emitted:
	case <-time.After(2 * time.Second):
		t.Fatal("emit stayed blocked after close")
	}
}

func TestHandlerFunc(t *testing.T) {
	var got Event
	h := HandlerFunc(func(_ context.Context, ev Event) { got = ev })
	h.HandleEvent(context.Background(), Event{Device: "P"})
	assert.Equal(t, "P", got.Device)
}
