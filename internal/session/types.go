package session

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/obd327/elm327session/internal/catalog"
	"github.com/obd327/elm327session/internal/transport"
)

// ConnectionPhase is the connection half of SessionState (§3).
type ConnectionPhase int

const (
	PhaseDisconnected ConnectionPhase = iota
	PhaseConnecting
	PhaseConnected
	PhaseDisconnecting
)

func (p ConnectionPhase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// ActiveConfig is fixed by a successful handshake and destroyed on
// disconnect (invariant 3).
type ActiveConfig struct {
	Profile   catalog.Profile
	WriteMode catalog.WriteMode
}

// ConnectionState bundles the connection phase with the device/config that
// only exist while Connected.
type ConnectionState struct {
	Phase  ConnectionPhase
	Device transport.DeviceID
	Config ActiveConfig
}

// ReturnShape selects how a command's accumulated chunks are presented to
// the caller (§3, §4.5).
type ReturnShape int

const (
	ShapeString ReturnShape = iota
	ShapeBytes
	ShapeChunked
)

// Response is the decoded result of a completed command. Which fields are
// meaningful depends on the ReturnShape that was requested; Flat and Chunks
// are always populated so callers that mix shapes can still inspect raw
// bytes.
type Response struct {
	Shape  ReturnShape
	Text   string
	Flat   []byte
	Chunks [][]byte
}

// decodeText implements the String shape's decode rule (§4.5): UTF-8,
// falling back to ISO-8859-1 if the UTF-8 decoding produced replacement
// characters, then trims leading/trailing whitespace.
func decodeText(flat []byte) string {
	if utf8.Valid(flat) {
		return strings.TrimSpace(string(flat))
	}
	// ISO-8859-1 fallback: each byte maps 1:1 to a Unicode code point.
	runes := make([]rune, len(flat))
	for i, b := range flat {
		runes[i] = rune(b)
	}
	return strings.TrimSpace(string(runes))
}

// Peripheral is returned to the caller on a successful connect: the device
// and the profile/write-mode the handshake settled on.
type Peripheral struct {
	Device transport.DeviceID
	Config ActiveConfig
}

// SessionState is an immutable snapshot of the session's state, as
// delivered to Subscribe observers after every transition (§3, §4.8).
type SessionState struct {
	BluetoothOn   bool
	Connection    ConnectionState
	InFlight      bool
	Streaming     bool
	LastSuccessAt time.Time // zero value means None
	LastError     error
}

// commandSlot is the per-command record held while a send is in flight
// (§3). It is owned entirely by the session's loop goroutine; the
// accumulator and timer callbacks only ever touch it by submitting a job
// to that loop, never directly.
type commandSlot struct {
	generation  uint64 // identifies this slot instance, guards stale timer fires
	commandText string
	shape       ReturnShape
	chunks      [][]byte
	deadline    time.Time
	timer       *time.Timer
	result      chan sendOutcome
}

// sendOutcome is what a commandSlot resolves with: either a Response or an
// error (only Disconnected ever produces an error per §4.5).
type sendOutcome struct {
	resp Response
	err  error
}
