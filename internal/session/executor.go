package session

import (
	"context"
	"time"

	"github.com/obd327/elm327session/internal/catalog"
	"github.com/obd327/elm327session/internal/transport"
)

// doSend implements the §4.5 command executor contract. The first half
// (fail-fast checks, write, timer arm) runs on the session's loop
// goroutine; the caller then blocks on slot.result outside the loop so the
// loop stays free to process the NotificationValue/timeout/disconnect that
// will eventually resolve it (§5: the executor's send suspends at the
// write and at awaiting the slot's completion signal).
func (s *Session) doSend(ctx context.Context, command string, shape ReturnShape, timeout time.Duration) (*commandSlot, error) {
	if s.st.phase != PhaseConnected {
		return nil, newError(KindNotConnected, nil)
	}
	if s.st.inFlight != nil {
		return nil, newError(KindCommandPending, nil)
	}

	slot := &commandSlot{
		generation:  s.st.nextGeneration(),
		commandText: command,
		shape:       shape,
		result:      make(chan sendOutcome, 1),
	}
	slot.deadline = time.Now().Add(timeout)

	s.st.applySendStart(slot)
	s.publishSnapshot()

	payload := append([]byte(command), 0x0D)

	device := s.st.device
	cfg := s.st.config
	writeErr := s.write(ctx, device, cfg, payload)
	if writeErr != nil {
		wrapped := newError(KindWriteError, writeErr)
		s.st.applySendFailure(wrapped)
		s.publishSnapshot()
		return nil, wrapped
	}

	gen := slot.generation
	slot.timer = time.AfterFunc(timeout, func() {
		s.enqueue(func() { s.handleTimeout(slot, gen) })
	})

	return slot, nil
}

// write selects write_with_response vs write_without_response per the
// ActiveConfig's resolved write mode (§4.5).
func (s *Session) write(ctx context.Context, device transport.DeviceID, cfg ActiveConfig, payload []byte) error {
	if cfg.WriteMode == catalog.WriteWithResponse {
		return s.transport.Write(ctx, device, cfg.Profile.ServiceUUID, cfg.Profile.WriteCharUUID, payload)
	}
	return s.transport.WriteWithoutResponse(ctx, device, cfg.Profile.ServiceUUID, cfg.Profile.WriteCharUUID, payload)
}

// handleTimeout implements the "timer fires" branch of §4.5 step 4: detach
// the slot and resolve with whatever chunks have accumulated, even if
// empty. Guarded by generation so a timer belonging to an already-destroyed
// slot (completed by terminator or disconnect first) is a no-op
// (invariant 6, §5's "resolves deterministically by whichever enqueues
// first").
func (s *Session) handleTimeout(slot *commandSlot, generation uint64) {
	if s.st.inFlight != slot || slot.generation != generation {
		return
	}
	s.completeSlot(slot, shapeResponse(slot.shape, slot.chunks), nil)
}
