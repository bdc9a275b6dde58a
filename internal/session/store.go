package session

import (
	"time"

	"github.com/obd327/elm327session/internal/catalog"
	"github.com/obd327/elm327session/internal/transport"
)

// store holds SessionState plus the unexported in-flight slot, and is
// mutated only by the transition methods below (§4.2). Every method here
// runs exclusively on the session's loop goroutine — there is no mutex
// because there is only ever one writer and the only readers are other
// methods on the same goroutine; outside observers only ever see a
// published snapshot (§5, "SessionState is owned by the session task").
type store struct {
	bluetoothOn   bool
	phase         ConnectionPhase
	device        transport.DeviceID
	config        ActiveConfig
	inFlight      *commandSlot
	streaming     bool
	lastSuccessAt time.Time
	lastError     error

	slotGeneration uint64
}

// snapshot returns an immutable copy of the current state for publication.
func (st *store) snapshot() SessionState {
	return SessionState{
		BluetoothOn: st.bluetoothOn,
		Connection: ConnectionState{
			Phase:  st.phase,
			Device: st.device,
			Config: st.config,
		},
		InFlight:      st.inFlight != nil,
		Streaming:     st.streaming,
		LastSuccessAt: st.lastSuccessAt,
		LastError:     st.lastError,
	}
}

// applyAdapterState implements the AdapterState(on|off) event effect
// (§4.3): update bluetoothOn, and if now off, reset transient flags while
// keeping no connection. The caller (demux) is responsible for failing any
// in-flight command before calling this, the same way it does for
// applyDisconnected.
func (st *store) applyAdapterState(on bool) {
	st.bluetoothOn = on
	if !on {
		st.phase = PhaseDisconnected
		st.device = ""
		st.config = ActiveConfig{}
		st.streaming = false
		st.inFlight = nil
	}
}

// applyConnecting transitions Disconnected -> Connecting (§4.4 pre).
func (st *store) applyConnecting(device transport.DeviceID) {
	st.phase = PhaseConnecting
	st.device = device
	st.lastError = nil
}

// applyConnected fixes ActiveConfig and transitions to Connected on a
// successful handshake (§4.4 post-success, invariant 3).
func (st *store) applyConnected(profile catalog.Profile, mode catalog.WriteMode) {
	st.phase = PhaseConnected
	st.config = ActiveConfig{Profile: profile, WriteMode: mode}
	st.lastError = nil
}

// applyConnectFailed transitions back to Disconnected after a failed
// handshake (§4.4 post-failure).
func (st *store) applyConnectFailed(err error) {
	st.phase = PhaseDisconnected
	st.device = ""
	st.config = ActiveConfig{}
	st.lastError = err
}

// applyDisconnecting marks an explicit, caller-driven teardown in progress.
func (st *store) applyDisconnecting() {
	st.phase = PhaseDisconnecting
}

// applyDisconnected implements the Disconnected(device_id) event effect
// (§4.3) and the terminal step of an explicit disconnect: clear
// ActiveConfig, force streaming off (invariant 4), and drop any in-flight
// command's identity (the caller — demux or executor — is responsible for
// resolving that slot's result channel before or alongside this call).
func (st *store) applyDisconnected() {
	st.phase = PhaseDisconnected
	st.device = ""
	st.config = ActiveConfig{}
	st.streaming = false
	st.inFlight = nil
}

// applySendStart installs slot as the in-flight command and clears any
// prior command error, per §4.5 step 2 and §4.2's "error clears atomically
// with transient flags on the next action of the same family".
func (st *store) applySendStart(slot *commandSlot) {
	st.inFlight = slot
	st.lastError = nil
}

// applySendSuccess resolves the in-flight slot successfully and advances
// lastSuccessAt, which must move strictly forward (invariant 5).
func (st *store) applySendSuccess(now time.Time) {
	st.inFlight = nil
	if now.After(st.lastSuccessAt) {
		st.lastSuccessAt = now
	} else {
		st.lastSuccessAt = st.lastSuccessAt.Add(time.Nanosecond)
	}
	st.lastError = nil
}

// applySendFailure clears the in-flight slot and records the failure kind.
func (st *store) applySendFailure(err error) {
	st.inFlight = nil
	st.lastError = err
}

// applyStreamingOn resets lastSuccessAt to now and marks streaming active;
// the caller must only invoke this while Connected (§4.7).
func (st *store) applyStreamingOn(now time.Time) {
	st.streaming = true
	st.lastSuccessAt = now
}

// applyStreamingOff stops streaming without touching lastError (used by the
// explicit SetStreaming(false) API call, which is not a failure).
func (st *store) applyStreamingOff() {
	st.streaming = false
}

// applyStreamingTimeout implements the watchdog's inactivity transition
// (§4.7): streaming off, lastSuccessAt cleared, StreamingInactive recorded.
func (st *store) applyStreamingTimeout() {
	st.streaming = false
	st.lastSuccessAt = time.Time{}
	st.lastError = ErrStreamingInactive
}

// nextGeneration returns a fresh slot generation counter value, used to
// distinguish a slot's own timer fire from a stale one left over after the
// slot was already destroyed by another path (invariant 6).
func (st *store) nextGeneration() uint64 {
	st.slotGeneration++
	return st.slotGeneration
}
