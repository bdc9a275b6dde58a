package session

import (
	"log/slog"
	"time"

	"github.com/obd327/elm327session/internal/transport"
)

// runEventLoop reads from the transport's event stream and forwards each
// event onto the session's single loop goroutine, preserving arrival order
// (§5). It returns when the transport's event channel is closed (transport
// stopped) or the session is closed.
func (s *Session) runEventLoop() {
	events := s.transport.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.enqueue(func() { s.handleEvent(ev) })
		case <-s.closed:
			return
		}
	}
}

// handleEvent applies one transport event to the store. Must only run on
// the session's loop goroutine. Events arriving for a device/slot that no
// longer matters (e.g. a stray NotificationValue after the in-flight
// command already resolved) are discarded, not errored (§4.3, §9 open
// question 2).
func (s *Session) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventAdapterState:
		on := ev.Power == transport.PowerOn
		if !on {
			s.failInFlight(newError(KindDisconnected, nil))
		}
		s.st.applyAdapterState(on)
		s.publishSnapshot()

	case transport.EventDisconnected:
		if s.st.phase != PhaseConnected && s.st.phase != PhaseDisconnecting {
			return
		}
		if ev.Device != s.st.device {
			return
		}
		s.failInFlight(newError(KindDisconnected, nil))
		s.st.applyDisconnected()
		s.publishSnapshot()

	case transport.EventNotificationValue:
		s.routeNotification(ev.Data)

	case transport.EventScanResult:
		if s.onScanResult != nil {
			s.onScanResult(ev.ScanDevice)
		}

	default:
		slog.Debug("elm327session: unrecognized event kind", "kind", ev.Kind)
	}
}

// routeNotification implements the accumulator's entry point (§4.6): route
// to the in-flight slot if one exists, else discard.
func (s *Session) routeNotification(data []byte) {
	slot := s.st.inFlight
	if slot == nil {
		slog.Debug("elm327session: notification with no in-flight command, discarding", "bytes", len(data))
		return
	}

	complete := accumulate(slot, data)
	if !complete {
		return
	}

	s.completeSlot(slot, shapeResponse(slot.shape, slot.chunks), nil)
}

// completeSlot destroys slot exactly once (invariant 6): stops its timer,
// clears it from in-flight if it is still current, and delivers outcome to
// the waiting caller.
func (s *Session) completeSlot(slot *commandSlot, resp Response, err error) {
	if s.st.inFlight == slot {
		slot.timer.Stop()
		if err != nil {
			s.st.applySendFailure(err)
		} else {
			s.st.applySendSuccess(time.Now())
		}
		s.publishSnapshot()
	}
	select {
	case slot.result <- sendOutcome{resp: resp, err: err}:
	default:
		// Already delivered (should not happen given the generation guard,
		// but never block the loop goroutine on a stuck receiver).
	}
}

// failInFlight rejects the current in-flight command (if any) with err,
// used by disconnect handling (§4.3, §4.5 "Disconnect" branch).
func (s *Session) failInFlight(err error) {
	slot := s.st.inFlight
	if slot == nil {
		return
	}
	s.completeSlot(slot, Response{}, err)
}
