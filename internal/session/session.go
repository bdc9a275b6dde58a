// Package session implements the adapter session manager: the stateful,
// concurrency-safe controller mediating between a host application and an
// ELM327-compatible OBD-II BLE adapter (spec §1–§9). It composes the
// profile catalog, state store, event demultiplexer, connection
// handshake, command executor/accumulator, and inactivity watchdog behind
// the single Session type's public API (§4.8).
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/obd327/elm327session/internal/catalog"
	"github.com/obd327/elm327session/internal/transport"
)

// Options configures session behavior (§6.4).
type Options struct {
	// DefaultCommandTimeout is used by Send when no per-call timeout is
	// given. Default 4000ms.
	DefaultCommandTimeout time.Duration
	// StreamingInactivity is the watchdog's idle threshold. Default 4000ms.
	StreamingInactivity time.Duration
	// WatchdogTick is the watchdog's check period. Default 1000ms.
	WatchdogTick time.Duration
	// CatalogOverride replaces the default profile catalog if non-nil.
	CatalogOverride []catalog.Profile
}

// DefaultOptions returns the §6.4 defaults.
func DefaultOptions() Options {
	return Options{
		DefaultCommandTimeout: 4000 * time.Millisecond,
		StreamingInactivity:   4000 * time.Millisecond,
		WatchdogTick:          1000 * time.Millisecond,
	}
}

func (o Options) normalized() Options {
	if o.DefaultCommandTimeout <= 0 {
		o.DefaultCommandTimeout = 4000 * time.Millisecond
	}
	if o.StreamingInactivity <= 0 {
		o.StreamingInactivity = 4000 * time.Millisecond
	}
	if o.WatchdogTick <= 0 {
		o.WatchdogTick = 1000 * time.Millisecond
	}
	return o
}

// Session is the public adapter session manager. All exported methods
// are safe for concurrent use: each submits a job to a single internal loop
// goroutine that owns every store field, so ordering and the invariants in
// spec §3/§5 hold regardless of how many goroutines call in.
type Session struct {
	transport transport.Transport
	profiles  []catalog.Profile
	opts      Options
	pub       *publisher
	watchdog  *watchdog

	onScanResult func(transport.Device)

	jobs   chan func()
	closed chan struct{}

	// streamingStartedAt anchors the "last_success_at = None for >4000ms
	// since streaming was set" branch of §4.7.
	streamingStartedAt time.Time

	// st is only ever touched on the loop goroutine.
	st store
}

// New creates a Session over transport using opts. The profile catalog
// defaults to catalog.DefaultProfiles unless opts.CatalogOverride is set.
func New(t transport.Transport, opts Options) *Session {
	profiles := opts.CatalogOverride
	if profiles == nil {
		profiles = catalog.DefaultProfiles
	}
	s := &Session{
		transport: t,
		profiles:  profiles,
		opts:      opts.normalized(),
		pub:       newPublisher(),
		watchdog:  newWatchdog(),
		jobs:      make(chan func(), 32),
		closed:    make(chan struct{}),
	}
	go s.loop()
	return s
}

// loop is the single goroutine that owns the store. It drains both the
// jobs channel (API calls and timer/watchdog callbacks) until Close closes
// s.closed, matching §5's "single-threaded cooperative with respect to
// state mutation" model.
func (s *Session) loop() {
	for {
		select {
		case job := <-s.jobs:
			job()
		case <-s.closed:
			return
		}
	}
}

// enqueue submits fn to run on the loop goroutine without waiting for it to
// finish. Used for fire-and-forget submissions (transport events, timer
// fires, watchdog ticks).
func (s *Session) enqueue(fn func()) {
	select {
	case s.jobs <- fn:
	case <-s.closed:
	}
}

// doSync submits fn to the loop and blocks until it has finished running,
// used by the synchronous public API below.
func (s *Session) doSync(fn func()) {
	done := make(chan struct{})
	s.enqueue(func() { fn(); close(done) })
	select {
	case <-done:
	case <-s.closed:
	}
}

// publishSnapshot sends the current state to all subscribers. Must only be
// called from the loop goroutine, immediately after a store mutation.
func (s *Session) publishSnapshot() {
	s.pub.publish(s.st.snapshot())
}

// Initialize starts the transport and begins demultiplexing its events.
// Must be called once before any other operation.
func (s *Session) Initialize(ctx context.Context) error {
	if err := s.transport.Start(ctx); err != nil {
		return newError(KindTransportInit, err)
	}
	go s.runEventLoop()

	s.doSync(func() {
		s.st.applyAdapterState(s.transport.State() == transport.PowerOn)
		s.publishSnapshot()
	})
	return nil
}

// QueryAdapterState reports the last observed adapter power state.
func (s *Session) QueryAdapterState() (on bool) {
	s.doSync(func() { on = s.st.bluetoothOn })
	return on
}

// Connect drives the §4.4 handshake against device.
func (s *Session) Connect(ctx context.Context, device transport.DeviceID) (Peripheral, error) {
	var peripheral Peripheral
	var err error
	s.doSync(func() { peripheral, err = s.doConnect(ctx, device) })
	return peripheral, err
}

// Disconnect tears down the current connection. Idempotent when already
// disconnected.
func (s *Session) Disconnect(ctx context.Context) error {
	var err error
	s.doSync(func() { err = s.doDisconnect(ctx) })
	return err
}

// Send serializes one command through the executor (§4.5). A zero timeout
// uses Options.DefaultCommandTimeout.
func (s *Session) Send(ctx context.Context, command string, shape ReturnShape, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = s.opts.DefaultCommandTimeout
	}

	var slot *commandSlot
	var startErr error
	s.doSync(func() { slot, startErr = s.doSend(ctx, command, shape, timeout) })
	if startErr != nil {
		return Response{}, startErr
	}

	outcome := <-slot.result
	return outcome.resp, outcome.err
}

// SetStreaming toggles the streaming inactivity watchdog (§4.7). Enabling
// while not Connected fails with NotConnected and does not start the
// watchdog; disabling is always allowed and is idempotent.
func (s *Session) SetStreaming(on bool) error {
	var err error
	s.doSync(func() {
		if on {
			if s.st.phase != PhaseConnected {
				err = newError(KindNotConnected, nil)
				return
			}
			if s.st.streaming {
				return // already on: idempotent no-op
			}
			now := time.Now()
			s.streamingStartedAt = now
			s.st.applyStreamingOn(now)
			s.watchdog.start(s.opts.WatchdogTick, func() {
				s.enqueue(s.checkInactivity)
			})
			s.publishSnapshot()
			return
		}

		if !s.st.streaming {
			return // already off: idempotent no-op
		}
		s.st.applyStreamingOff()
		s.watchdog.stop()
		s.publishSnapshot()
	})
	return err
}

// Subscribe registers obs to receive a SessionState snapshot after every
// transition, and returns a handle to unregister it (§4.8).
func (s *Session) Subscribe(obs Observer) Unsubscribe {
	return s.pub.subscribe(obs)
}

// OnScanResult registers a callback for ScanResult events, the external
// collaborator surface named in §4.3 — the core never interprets these.
func (s *Session) OnScanResult(cb func(transport.Device)) {
	s.doSync(func() { s.onScanResult = cb })
}

// Close tears down the session: stops the watchdog, unsubscribes every
// observer, and stops the loop goroutine. It does not disconnect the
// transport — call Disconnect first if a connection is active.
func (s *Session) Close() error {
	select {
	case <-s.closed:
		return fmt.Errorf("elm327session: session already closed")
	default:
	}

	s.doSync(func() {
		s.watchdog.stop()
		s.pub.closeAll()
	})
	close(s.closed)
	return nil
}
