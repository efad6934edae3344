package machine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/amp-labs/vending/statemachine"
	"go.uber.org/atomic"
)

const ownerMetricsInterval = 10 * time.Second

var (
	// ErrOwnerStopped is returned when sending to an owner that has shut down.
	ErrOwnerStopped = errors.New("machine owner is stopped")
	// ErrOwnerPanic is returned when processing a request panicked.
	ErrOwnerPanic = errors.New("panic in machine owner")
)

// Owner is a single goroutine that owns a Machine. Callers talk to it through
// a mailbox, so every event for the machine is processed in arrival order by
// one goroutine.
type Owner struct {
	machine *Machine
	inbox   chan request
	quit    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	stop    sync.Once

	dead      *atomic.Bool
	processed *atomic.Int64
}

type request struct {
	ctx   context.Context //nolint:containedctx
	do    func(ctx context.Context, m *Machine) reply
	reply chan reply
}

type reply struct {
	outcome Outcome
	status  Status
	err     error
}

// Serve starts an owner for m. depth is the mailbox size (0 for unbuffered).
// The owner runs until ctx ends or Stop is called.
func Serve(ctx context.Context, m *Machine, depth int) *Owner {
	if depth < 0 {
		depth = 0
	}

	o := &Owner{
		machine:   m,
		inbox:     make(chan request, depth),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		dead:      atomic.NewBool(false),
		processed: atomic.NewInt64(0),
	}

	ownerAlive.WithLabelValues(m.label).Inc()
	ownerPanics.WithLabelValues(m.label).Add(0)

	o.wg.Add(1)

	go o.run(ctx)

	return o
}

func (o *Owner) run(ctx context.Context) {
	defer o.wg.Done()
	defer ownerAlive.WithLabelValues(o.machine.label).Dec()
	defer close(o.done)
	defer o.dead.Store(true)

	ticker := time.NewTicker(ownerMetricsInterval)
	defer ticker.Stop()

	for {
		// A stop request wins over work still waiting in the mailbox.
		select {
		case <-ctx.Done():
			return
		case <-o.quit:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-o.quit:
			return
		case <-ticker.C:
			ownerQueueDepth.WithLabelValues(o.machine.label).Set(float64(len(o.inbox)))
		case req := <-o.inbox:
			o.process(req)
		}
	}
}

// process runs one request, turning a panic into an ErrOwnerPanic reply.
func (o *Owner) process(req request) {
	defer func() {
		if err := recover(); err != nil {
			ownerPanics.WithLabelValues(o.machine.label).Inc()

			o.machine.loggerFor(req.ctx).Error("machine owner recovered from panic",
				"error", err,
				"stack", string(debug.Stack()))

			req.reply <- reply{err: panicErr(err)}
		}
	}()

	rep := req.do(req.ctx, o.machine)

	o.processed.Inc()
	ownerProcessed.WithLabelValues(o.machine.label).Inc()

	req.reply <- rep
}

func panicErr(val any) error {
	if e, ok := val.(error); ok {
		return fmt.Errorf("%w: %w", ErrOwnerPanic, e)
	}

	return fmt.Errorf("%w: %v", ErrOwnerPanic, val)
}

// submit sends fn to the owner and waits for its reply.
func (o *Owner) submit(ctx context.Context, fn func(ctx context.Context, m *Machine) reply) (reply, error) {
	if err := ctx.Err(); err != nil {
		return reply{}, err
	}

	if o.dead.Load() {
		return reply{}, ErrOwnerStopped
	}

	// Buffered so the owner never blocks on a caller that gave up.
	req := request{ctx: ctx, do: fn, reply: make(chan reply, 1)}

	select {
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-o.quit:
		return reply{}, ErrOwnerStopped
	case <-o.done:
		return reply{}, ErrOwnerStopped
	case o.inbox <- req:
	}

	select {
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case rep := <-req.reply:
		return rep, rep.err
	case <-o.done:
		// The owner may have answered just before exiting.
		select {
		case rep := <-req.reply:
			return rep, rep.err
		default:
			return reply{}, ErrOwnerStopped
		}
	}
}

// Dispatch sends ev to the machine and waits for the outcome.
func (o *Owner) Dispatch(ctx context.Context, ev statemachine.Event) (Outcome, error) {
	rep, err := o.submit(ctx, func(ctx context.Context, m *Machine) reply {
		return reply{outcome: m.Dispatch(ctx, ev)}
	})
	if err != nil {
		return Outcome{}, err
	}

	return rep.outcome, nil
}

// Status returns a snapshot taken by the owner goroutine, ordered with the
// events sent before it.
func (o *Owner) Status(ctx context.Context) (Status, error) {
	rep, err := o.submit(ctx, func(_ context.Context, m *Machine) reply {
		return reply{status: m.Status()}
	})
	if err != nil {
		return Status{}, err
	}

	return rep.status, nil
}

// Reset re-initialises the owned machine.
func (o *Owner) Reset(ctx context.Context) (Status, error) {
	rep, err := o.submit(ctx, func(ctx context.Context, m *Machine) reply {
		return reply{status: m.Reset(ctx)}
	})
	if err != nil {
		return Status{}, err
	}

	return rep.status, nil
}

// Machine returns the owned machine.
func (o *Owner) Machine() *Machine {
	return o.machine
}

// Processed returns the number of requests completed without panicking.
func (o *Owner) Processed() int64 {
	return o.processed.Load()
}

// Alive reports whether the owner goroutine is still running.
func (o *Owner) Alive() bool {
	return !o.dead.Load()
}

// Stop asks the owner to shut down. Requests still in the mailbox are
// dropped and their callers get ErrOwnerStopped once the goroutine exits.
// Safe to call more than once.
func (o *Owner) Stop() {
	o.stop.Do(func() {
		close(o.quit)
	})
}

// Wait blocks until the owner goroutine has exited.
func (o *Owner) Wait() {
	o.wg.Wait()
}
