// Package catalog holds the static, ordered list of BLE GATT profiles the
// session manager's handshake tries when connecting to an ELM327-compatible
// adapter. The catalog is process-wide and immutable; extension is a
// build-time concern (append to DefaultProfiles), never a runtime mutation.
package catalog

import "github.com/obd327/elm327session/internal/transport"

// WriteMode selects which write operation the executor uses against the
// matched profile's write characteristic.
type WriteMode int

const (
	// WriteModeUnset marks a Profile whose write mode has not yet been
	// resolved by the handshake.
	WriteModeUnset WriteMode = iota
	WriteWithResponse
	WriteWithoutResponse
)

// Profile is an immutable candidate (service, write-char, notify-char)
// triple, with a label for diagnostics and a preference hint used only
// when the adapter reports both write capabilities on the write
// characteristic (§4.4 tie-break rule).
type Profile struct {
	Label          string
	ServiceUUID    string
	WriteCharUUID  string
	NotifyCharUUID string
	PreferredMode  WriteMode
}

// DefaultProfiles is the bit-exact minimum catalog from §6.3, in match
// order. Order is significant: the handshake tries entries in this
// sequence and stops at the first one the adapter satisfies.
var DefaultProfiles = []Profile{
	{
		Label:          "SPP-over-GATT (FFE1/FFE1)",
		ServiceUUID:    "00001101-0000-1000-8000-00805f9b34fb",
		WriteCharUUID:  "0000ffe1-0000-1000-8000-00805f9b34fb",
		NotifyCharUUID: "0000ffe1-0000-1000-8000-00805f9b34fb",
		PreferredMode:  WriteWithoutResponse,
	},
	{
		Label:          "HM-10 clone (FFE0/FFE1)",
		ServiceUUID:    "0000ffe0-0000-1000-8000-00805f9b34fb",
		WriteCharUUID:  "0000ffe1-0000-1000-8000-00805f9b34fb",
		NotifyCharUUID: "0000ffe1-0000-1000-8000-00805f9b34fb",
		PreferredMode:  WriteWithoutResponse,
	},
	{
		Label:          "Vgate iCar Pro (E781/BE78)",
		ServiceUUID:    "E7810A71-73AE-499D-8C15-FAA9AEF0C3F2",
		WriteCharUUID:  "BE781A71-73AE-499D-8C15-FAA9AEF0C3F2",
		NotifyCharUUID: "BE781A71-73AE-499D-8C15-FAA9AEF0C3F2",
		PreferredMode:  WriteWithResponse,
	},
}

// MatchResult is the outcome of successfully matching a Profile against a
// peripheral's discovered services: the profile plus the write mode
// resolved from the adapter's reported characteristic properties.
type MatchResult struct {
	Index        int
	Profile      Profile
	ResolvedMode WriteMode
}

// Match iterates profiles in order and returns the first one satisfied by
// services, per §4.4: the service must be present, both characteristics
// must be present under that service, and the write characteristic must
// advertise Write or WriteWithoutResponse (tie-broken by the profile's
// PreferredMode, defaulting to WriteWithoutResponse).
//
// Returns ok=false if no profile in the list is satisfied; the caller
// (handshake) maps that to ErrIncompatible.
func Match(profiles []Profile, services transport.ServiceMap) (MatchResult, bool) {
	for i, p := range profiles {
		writeChar, ok := services.FindCharacteristic(p.ServiceUUID, p.WriteCharUUID)
		if !ok {
			continue
		}
		if _, ok := services.FindCharacteristic(p.ServiceUUID, p.NotifyCharUUID); !ok {
			continue
		}

		mode, ok := resolveWriteMode(writeChar.Properties, p.PreferredMode)
		if !ok {
			continue
		}

		return MatchResult{Index: i, Profile: p, ResolvedMode: mode}, true
	}
	return MatchResult{}, false
}

// resolveWriteMode applies the §4.4 tie-break: if both Write and
// WriteWithoutResponse are advertised, prefer the profile's preference
// (falling back to WriteWithoutResponse); otherwise use whichever single
// capability is present. Returns ok=false if neither is advertised.
func resolveWriteMode(props transport.Property, preferred WriteMode) (WriteMode, bool) {
	hasResp := props.Has(transport.PropWrite)
	hasNoResp := props.Has(transport.PropWriteWithoutResponse)

	switch {
	case hasResp && hasNoResp:
		if preferred == WriteWithResponse {
			return WriteWithResponse, true
		}
		return WriteWithoutResponse, true
	case hasResp:
		return WriteWithResponse, true
	case hasNoResp:
		return WriteWithoutResponse, true
	default:
		return WriteModeUnset, false
	}
}
