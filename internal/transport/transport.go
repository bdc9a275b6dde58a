// Package transport defines the abstract port the session manager uses to
// reach a BLE peripheral. It covers adapter power state, connection
// lifecycle, GATT service discovery, notification subscription, and
// characteristic writes. Scanning, OBD-II PID semantics, and permission
// prompts are not modeled here — they belong to the host application.
package transport

import (
	"context"

	"tinygo.org/x/bluetooth"
)

// DeviceID identifies a peripheral. Its concrete form (MAC address on
// Linux/Windows, CoreBluetooth UUID on macOS) is an implementation detail
// of the concrete Transport.
type DeviceID string

// Property is a GATT characteristic property bit relevant to command
// framing. Only the properties the session manager inspects are modeled.
type Property int

const (
	PropRead Property = 1 << iota
	PropWrite
	PropWriteWithoutResponse
	PropNotify
	PropIndicate
)

// Has reports whether set contains prop.
func (set Property) Has(prop Property) bool {
	return set&prop != 0
}

// Characteristic describes one GATT characteristic discovered under a
// service, keyed by its normalized UUID.
type Characteristic struct {
	UUID       string
	Properties Property
}

// Service describes one GATT service and the characteristics discovered
// under it.
type Service struct {
	UUID            string
	Characteristics []Characteristic
}

// ServiceMap is the full result of RetrieveServices: every service the
// peripheral advertises, each with its discovered characteristics.
type ServiceMap struct {
	Services []Service
}

// FindCharacteristic returns the characteristic with charUUID under the
// service with serviceUUID, if both are present. Comparison is
// case-insensitive per §6.1.
func (m ServiceMap) FindCharacteristic(serviceUUID, charUUID string) (Characteristic, bool) {
	for _, svc := range m.Services {
		if !EqualUUID(svc.UUID, serviceUUID) {
			continue
		}
		for _, ch := range svc.Characteristics {
			if EqualUUID(ch.UUID, charUUID) {
				return ch, true
			}
		}
	}
	return Characteristic{}, false
}

// EqualUUID compares two UUID strings case-insensitively, the normalization
// rule required throughout §4.4 and §6.3. 16-bit and 32-bit short forms are
// expanded onto the Bluetooth base UUID, then both sides are parsed with
// bluetooth.ParseUUID so short and 128-bit forms compare equal alongside
// case, the same normalization the real transport relies on when matching
// discovered characteristics against the catalog. Unparseable input falls
// back to a direct string compare.
func EqualUUID(a, b string) bool {
	expand := func(s string) string {
		switch len(s) {
		case 4:
			return "0000" + s + "-0000-1000-8000-00805f9b34fb"
		case 8:
			return s + "-0000-1000-8000-00805f9b34fb"
		}
		return s
	}
	ua, errA := bluetooth.ParseUUID(expand(a))
	ub, errB := bluetooth.ParseUUID(expand(b))
	if errA != nil || errB != nil {
		return a == b
	}
	return ua == ub
}

// AdapterPower is the last observed power state of the local Bluetooth
// adapter.
type AdapterPower int

const (
	PowerOff AdapterPower = iota
	PowerOn
)

// EventKind tags the variant of Event carried over the transport's event
// stream (§6.1).
type EventKind int

const (
	EventAdapterState EventKind = iota
	EventDisconnected
	EventNotificationValue
	EventScanResult
)

// Event is the single envelope type the transport uses to deliver
// asynchronous occurrences to the session's demultiplexer. Exactly one of
// the payload fields is meaningful, selected by Kind.
type Event struct {
	Kind EventKind

	// EventAdapterState
	Power AdapterPower

	// EventDisconnected, EventNotificationValue
	Device DeviceID

	// EventNotificationValue
	Service string
	Char    string
	Data    []byte

	// EventScanResult — surfaced but not interpreted by the core (§4.3).
	ScanDevice Device
}

// Device is an opaque peripheral identifier and advertising metadata,
// surfaced only for scan results; the core never inspects these fields.
type Device struct {
	ID   DeviceID
	Name string
	RSSI int
}

// Transport is the port the session manager depends on for all radio I/O.
// A concrete implementation (see internal/transport/gattble) wraps a real
// BLE stack; tests substitute a mock implementing the same interface.
type Transport interface {
	// Start initializes the transport (powers the adapter on if needed,
	// wires the event stream). Must be called before any other method.
	Start(ctx context.Context) error

	// State returns the last observed adapter power state.
	State() AdapterPower

	// Events returns the channel the demultiplexer reads from. The
	// channel is closed when the transport is stopped.
	Events() <-chan Event

	// Connect establishes a connection to device. Blocks until connected,
	// the context is cancelled, or the transport reports failure.
	Connect(ctx context.Context, device DeviceID) error

	// Disconnect tears down the connection to device. Idempotent.
	Disconnect(ctx context.Context, device DeviceID) error

	// RetrieveServices returns the full discovered service/characteristic
	// map for device.
	RetrieveServices(ctx context.Context, device DeviceID) (ServiceMap, error)

	// StartNotifications subscribes to notifications on (service, char).
	// Subsequent values arrive as EventNotificationValue on Events().
	StartNotifications(ctx context.Context, device DeviceID, service, char string) error

	// StopNotifications cancels a prior subscription.
	StopNotifications(ctx context.Context, device DeviceID, service, char string) error

	// Write performs a write-with-response to (service, char).
	Write(ctx context.Context, device DeviceID, service, char string, data []byte) error

	// WriteWithoutResponse performs a write-without-response.
	WriteWithoutResponse(ctx context.Context, device DeviceID, service, char string, data []byte) error
}
