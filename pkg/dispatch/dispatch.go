// Package dispatch fans out due recurring transactions to workers while
// bounding the work done for each user.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fintrack/backend/pkg/ledger"
	"github.com/fintrack/backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

var (
	ErrNotStarted = errors.New("dispatcher has not been started")
	ErrClosed     = errors.New("dispatcher is closed")
)

// Handler processes a single event.
type Handler func(ctx context.Context, ref ledger.TransactionRef) error

// Options configure the per-user bounds.
type Options struct {
	// Limit is the maximum number of handler calls in flight for one user and
	// the maximum number of handler calls started for one user per Period.
	// Defaults to 10.
	Limit int

	// Period is the length of the rolling window. Zero disables the window,
	// leaving only the bound on calls in flight.
	Period time.Duration
}

// DefaultOptions returns 10 calls per user per rolling minute.
func DefaultOptions() Options {
	return Options{Limit: 10, Period: time.Minute}
}

// Dispatcher runs a handler for every dispatched event.
//
// Events are queued per user and started in the order they were dispatched.
// No events are dropped while the dispatcher runs. Users do not wait for each
// other.
type Dispatcher struct {
	handler Handler
	options Options

	mu     sync.Mutex
	ctx    context.Context
	lanes  map[uuid.UUID]*lane
	closed bool
	wg     sync.WaitGroup
}

// item is a queued event. Items queued by Call carry their own handler and
// report its result on done.
type item struct {
	ref     ledger.TransactionRef
	handler Handler
	done    chan error
}

// finish reports the result of an item to a waiting caller.
func (i item) finish(err error) {
	if i.done != nil {
		i.done <- err
	}
}

// lane is the queue and accounting of a single user.
type lane struct {
	queue    []item
	sem      *semaphore.Weighted
	starts   []time.Time // start times within the current window, oldest first
	inflight int
	pumping  bool
}

func New(handler Handler, options Options) *Dispatcher {
	if options.Limit <= 0 {
		options.Limit = 10
	}

	return &Dispatcher{
		handler: handler,
		options: options,
		lanes:   make(map[uuid.UUID]*lane),
	}
}

// Start enables dispatching. Handlers are called with ctx, canceling it
// stops starting new handler calls.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx = ctx
}

// Close stops accepting events and waits for all queued events to be handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
}

// Dispatch queues an event for its user.
func (d *Dispatcher) Dispatch(ref ledger.TransactionRef) error {
	return d.enqueue(item{ref: ref, handler: d.handler})
}

// Call queues an event for its user like Dispatch, but runs handler for it
// and waits for the result. The call counts towards the bounds of the user
// like every other event.
//
// If ctx ends first, Call returns its error. The handler still runs when its
// turn comes.
func (d *Dispatcher) Call(ctx context.Context, ref ledger.TransactionRef, handler Handler) error {
	done := make(chan error, 1)
	if err := d.enqueue(item{ref: ref, handler: handler, done: done}); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) enqueue(i item) error {
	ref := i.ref

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	if d.ctx == nil {
		return ErrNotStarted
	}

	l, ok := d.lanes[ref.UserID]
	if !ok {
		l = &lane{sem: semaphore.NewWeighted(int64(d.options.Limit))}
		d.lanes[ref.UserID] = l
	}

	l.queue = append(l.queue, i)
	metrics.DispatchQueued.Inc()

	if !l.pumping {
		l.pumping = true
		d.wg.Add(1)
		go d.pump(ref.UserID, l)
	}

	return nil
}

// Lanes returns the number of users with queued, running or recently started
// events.
func (d *Dispatcher) Lanes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}

// pump starts the queued events of a lane in order until the queue is empty.
func (d *Dispatcher) pump(userID uuid.UUID, l *lane) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		if len(l.queue) == 0 {
			l.pumping = false
			d.release(userID, l)
			d.mu.Unlock()
			return
		}
		next := l.queue[0]
		l.queue = l.queue[1:]
		ctx := d.ctx
		d.mu.Unlock()
		metrics.DispatchQueued.Dec()

		if err := l.sem.Acquire(ctx, 1); err != nil {
			d.abandon(userID, l, next, err)
			return
		}

		if err := d.waitWindow(ctx, l); err != nil {
			l.sem.Release(1)
			d.abandon(userID, l, next, err)
			return
		}

		d.mu.Lock()
		l.inflight++
		d.mu.Unlock()
		metrics.DispatchInFlight.Inc()

		d.wg.Add(1)
		go d.run(ctx, userID, l, next)
	}
}

// waitWindow blocks until the lane may start another call within the rolling
// window and records the start.
func (d *Dispatcher) waitWindow(ctx context.Context, l *lane) error {
	for {
		d.mu.Lock()
		now := time.Now()
		if d.options.Period <= 0 {
			d.mu.Unlock()
			return nil
		}

		l.prune(now, d.options.Period)
		if len(l.starts) < d.options.Limit {
			l.starts = append(l.starts, now)
			d.mu.Unlock()
			return nil
		}
		wait := l.starts[0].Add(d.options.Period).Sub(now)
		d.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// run calls the handler for one event. Errors and panics are logged and do
// not affect other events.
func (d *Dispatcher) run(ctx context.Context, userID uuid.UUID, l *lane, i item) {
	ref := i.ref

	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("transaction_id", ref.TransactionID.String()).Str("user_id", userID.String()).Msgf("Handler panicked: %v", r)
			i.finish(fmt.Errorf("handler panicked: %v", r))
		}

		l.sem.Release(1)
		metrics.DispatchInFlight.Dec()

		d.mu.Lock()
		l.inflight--
		d.release(userID, l)
		d.mu.Unlock()
	}()

	err := i.handler(ctx, ref)
	if err != nil {
		log.Warn().Err(err).Str("transaction_id", ref.TransactionID.String()).Str("user_id", userID.String()).Msg("Handling event failed")
	}
	i.finish(err)
}

// abandon drops the remaining queue of a lane after the context ended. The
// events stay due and are picked up by the next scan.
func (d *Dispatcher) abandon(userID uuid.UUID, l *lane, current item, err error) {
	d.mu.Lock()
	dropped := append([]item{current}, l.queue...)
	metrics.DispatchQueued.Sub(float64(len(l.queue)))
	l.queue = nil
	l.pumping = false
	d.release(userID, l)
	d.mu.Unlock()

	for _, i := range dropped {
		i.finish(err)
	}

	log.Warn().Err(err).Str("user_id", userID.String()).Int("dropped", len(dropped)).Msg("Dispatcher stopped, dropping queued events")
}

// release removes an idle lane. A lane whose window still holds recent starts
// is kept until the window has passed so that the rate bound carries over to
// events dispatched later.
//
// d.mu must be held.
func (d *Dispatcher) release(userID uuid.UUID, l *lane) {
	if l.pumping || l.inflight > 0 || len(l.queue) > 0 || d.lanes[userID] != l {
		return
	}

	now := time.Now()
	l.prune(now, d.options.Period)
	if d.options.Period > 0 && len(l.starts) > 0 {
		time.AfterFunc(l.starts[len(l.starts)-1].Add(d.options.Period).Sub(now), func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.release(userID, l)
		})
		return
	}

	delete(d.lanes, userID)
}

// prune removes starts that left the window.
func (l *lane) prune(now time.Time, period time.Duration) {
	i := 0
	for i < len(l.starts) && !l.starts[i].Add(period).After(now) {
		i++
	}
	l.starts = l.starts[i:]
}

func (o Options) String() string {
	if o.Period <= 0 {
		return fmt.Sprintf("%d in flight", o.Limit)
	}
	return fmt.Sprintf("%d per %s", o.Limit, o.Period)
}
