package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/expenseflow/approval-engine/internal/domain/event"
)

func newObservedDispatcher(opts ...Option) (Dispatcher, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return NewDispatcher(append([]Option{WithLogger(zap.New(core))}, opts...)...), logs
}

func approved(claimID int64) *event.Event {
	return event.NewEvent(event.TypeClaimApproved, claimID, 1, nil)
}

func TestSubscribe_RunsInRegistrationOrder(t *testing.T) {
	d := NewDispatcher()
	var order []int

	d.Subscribe(event.TypeClaimApproved, func(ctx context.Context, evt *event.Event) error {
		order = append(order, 1)
		return nil
	})
	d.Subscribe(event.TypeClaimApproved, func(ctx context.Context, evt *event.Event) error {
		order = append(order, 2)
		return nil
	})
	d.Subscribe(event.TypeClaimRejected, func(ctx context.Context, evt *event.Event) error {
		order = append(order, 3)
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), approved(1)))
	assert.Equal(t, []int{1, 2}, order)

	handlers := d.ListHandlers(event.TypeClaimApproved)
	require.Len(t, handlers, 2)
	assert.NotEqual(t, handlers[0].Name, handlers[1].Name)
	assert.Nil(t, handlers[0].Handler)
}

func TestSubscribeNamed_ReplacesSameName(t *testing.T) {
	d, logs := newObservedDispatcher()
	var calls []string

	d.SubscribeNamed(event.TypeClaimRouted, "notify", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "old")
		return nil
	})
	d.SubscribeNamed(event.TypeClaimRouted, "notify", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "new")
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeClaimRouted, 1, 1, nil)))
	assert.Equal(t, []string{"new"}, calls)
	assert.Len(t, d.ListHandlers(event.TypeClaimRouted), 1)
	assert.Equal(t, 2, logs.FilterMessage("Handler registered").Len())
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	var kept, removed bool

	d.SubscribeNamed(event.TypeClaimApproved, "a", func(ctx context.Context, evt *event.Event) error {
		removed = true
		return nil
	})
	d.SubscribeNamed(event.TypeClaimApproved, "b", func(ctx context.Context, evt *event.Event) error {
		kept = true
		return nil
	})
	d.Unsubscribe(event.TypeClaimApproved, "a")

	require.NoError(t, d.Dispatch(context.Background(), approved(1)))
	assert.False(t, removed)
	assert.True(t, kept)
}

func TestDispatch_StopsAtFirstError(t *testing.T) {
	d, logs := newObservedDispatcher()
	boom := errors.New("boom")
	secondCalled := false

	d.Subscribe(event.TypeClaimApproved, func(ctx context.Context, evt *event.Event) error { return boom })
	d.Subscribe(event.TypeClaimApproved, func(ctx context.Context, evt *event.Event) error {
		secondCalled = true
		return nil
	})

	err := d.Dispatch(context.Background(), approved(7))
	assert.ErrorIs(t, err, boom)
	assert.False(t, secondCalled)

	entries := logs.FilterMessage("Event handler failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].ContextMap()["claim_id"])
}

func TestDispatch_RecoversPanic(t *testing.T) {
	d := NewDispatcher()
	d.Subscribe(event.TypeClaimApproved, func(ctx context.Context, evt *event.Event) error {
		panic("handler bug")
	})

	err := d.Dispatch(context.Background(), approved(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler bug")
}

func TestDispatch_Closed(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Close())

	assert.ErrorIs(t, d.Dispatch(context.Background(), approved(1)), ErrClosed)
	assert.ErrorIs(t, d.Close(), ErrClosed)
}

func TestDispatchAsync_CloseWaitsForHandlers(t *testing.T) {
	d, logs := newObservedDispatcher()
	var calls atomic.Int32

	d.Subscribe(event.TypeClaimApproved, func(ctx context.Context, evt *event.Event) error {
		time.Sleep(10 * time.Millisecond)
		calls.Add(1)
		return nil
	})
	d.Subscribe(event.TypeClaimApproved, func(ctx context.Context, evt *event.Event) error {
		calls.Add(1)
		return errors.New("notifier down")
	})

	d.DispatchAsync(context.Background(), approved(1))
	require.NoError(t, d.Close())

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("Event handler failed").Len())
}

func TestDispatchAsync_SurvivesCallerCancellation(t *testing.T) {
	d := NewDispatcher()
	type key struct{}

	var (
		mu       sync.Mutex
		ctxErr   error
		ctxValue interface{}
	)
	release := make(chan struct{})
	d.Subscribe(event.TypeClaimApproved, func(ctx context.Context, evt *event.Event) error {
		<-release
		mu.Lock()
		defer mu.Unlock()
		ctxErr = ctx.Err()
		ctxValue = ctx.Value(key{})
		return nil
	})

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "request-42"))
	d.DispatchAsync(ctx, approved(1))
	cancel()
	close(release)
	require.NoError(t, d.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.NoError(t, ctxErr)
	assert.Equal(t, "request-42", ctxValue)
}

func TestDispatchAsync_HandlerTimeout(t *testing.T) {
	d := NewDispatcher(WithHandlerTimeout(5 * time.Millisecond))
	var hadDeadline atomic.Bool

	d.Subscribe(event.TypeClaimApproved, func(ctx context.Context, evt *event.Event) error {
		_, ok := ctx.Deadline()
		hadDeadline.Store(ok)
		<-ctx.Done()
		return ctx.Err()
	})

	d.DispatchAsync(context.Background(), approved(1))
	require.NoError(t, d.Close())
	assert.True(t, hadDeadline.Load())
}

func TestDispatchAsync_AfterClose(t *testing.T) {
	d, logs := newObservedDispatcher()
	called := false
	d.Subscribe(event.TypeClaimApproved, func(ctx context.Context, evt *event.Event) error {
		called = true
		return nil
	})
	require.NoError(t, d.Close())

	d.DispatchAsync(context.Background(), approved(1))
	assert.False(t, called)
	assert.Equal(t, 1, logs.FilterMessage("Dropping event, dispatcher is closed").Len())
}

func TestConcurrentSubscribeAndDispatch(t *testing.T) {
	d := NewDispatcher()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.Subscribe(event.TypeClaimRouted, func(ctx context.Context, evt *event.Event) error { return nil })
		}()
		go func(id int64) {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), event.NewEvent(event.TypeClaimRouted, id, 1, nil))
		}(int64(i))
	}
	wg.Wait()

	assert.Len(t, d.ListHandlers(event.TypeClaimRouted), 20)
	require.NoError(t, d.Close())
}
