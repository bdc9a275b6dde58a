package session

import (
	"context"
	"sync"

	"github.com/obd327/elm327session/internal/transport"
)

// mockTransport is a test double for transport.Transport: it records calls
// and exposes Simulate* helpers to drive events, against an arbitrary
// ServiceMap per connected device rather than a single fixed characteristic
// pair.
type mockTransport struct {
	mu sync.Mutex

	power    transport.AdapterPower
	events   chan transport.Event
	services transport.ServiceMap

	connected      map[transport.DeviceID]bool
	notifying      map[string]bool // "service/char" -> subscribed
	writes         []mockWrite
	connectErr     error
	servicesErr    error
	notifyErr      error
	writeErr       error
	writeWithoutRe error
}

type mockWrite struct {
	Device   transport.DeviceID
	Service  string
	Char     string
	Data     []byte
	Response bool
}

func newMockTransport(services transport.ServiceMap) *mockTransport {
	return &mockTransport{
		power:     transport.PowerOn,
		events:    make(chan transport.Event, 64),
		services:  services,
		connected: make(map[transport.DeviceID]bool),
		notifying: make(map[string]bool),
	}
}

var _ transport.Transport = (*mockTransport)(nil)

func (m *mockTransport) Start(ctx context.Context) error { return nil }

func (m *mockTransport) State() transport.AdapterPower {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.power
}

func (m *mockTransport) Events() <-chan transport.Event { return m.events }

func (m *mockTransport) Connect(ctx context.Context, device transport.DeviceID) error {
	if m.connectErr != nil {
		return m.connectErr
	}
	m.mu.Lock()
	m.connected[device] = true
	m.mu.Unlock()
	return nil
}

func (m *mockTransport) Disconnect(ctx context.Context, device transport.DeviceID) error {
	m.mu.Lock()
	delete(m.connected, device)
	m.mu.Unlock()
	return nil
}

func (m *mockTransport) RetrieveServices(ctx context.Context, device transport.DeviceID) (transport.ServiceMap, error) {
	if m.servicesErr != nil {
		return transport.ServiceMap{}, m.servicesErr
	}
	return m.services, nil
}

func (m *mockTransport) StartNotifications(ctx context.Context, device transport.DeviceID, service, char string) error {
	if m.notifyErr != nil {
		return m.notifyErr
	}
	m.mu.Lock()
	m.notifying[service+"/"+char] = true
	m.mu.Unlock()
	return nil
}

func (m *mockTransport) StopNotifications(ctx context.Context, device transport.DeviceID, service, char string) error {
	m.mu.Lock()
	delete(m.notifying, service+"/"+char)
	m.mu.Unlock()
	return nil
}

func (m *mockTransport) Write(ctx context.Context, device transport.DeviceID, service, char string, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.record(device, service, char, data, true)
	return nil
}

func (m *mockTransport) WriteWithoutResponse(ctx context.Context, device transport.DeviceID, service, char string, data []byte) error {
	if m.writeWithoutRe != nil {
		return m.writeWithoutRe
	}
	m.record(device, service, char, data, false)
	return nil
}

func (m *mockTransport) record(device transport.DeviceID, service, char string, data []byte, withResponse bool) {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.writes = append(m.writes, mockWrite{Device: device, Service: service, Char: char, Data: cp, Response: withResponse})
	m.mu.Unlock()
}

func (m *mockTransport) lastWrite() (mockWrite, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return mockWrite{}, false
	}
	return m.writes[len(m.writes)-1], true
}

// SimulateNotification pushes a notification event as if it arrived from
// the peripheral.
func (m *mockTransport) SimulateNotification(device transport.DeviceID, service, char string, data []byte) {
	m.events <- transport.Event{
		Kind:    transport.EventNotificationValue,
		Device:  device,
		Service: service,
		Char:    char,
		Data:    data,
	}
}

// SimulateDisconnect pushes a disconnect event for device.
func (m *mockTransport) SimulateDisconnect(device transport.DeviceID) {
	m.events <- transport.Event{Kind: transport.EventDisconnected, Device: device}
}

// SimulateAdapterState pushes an adapter power-state change.
func (m *mockTransport) SimulateAdapterState(on bool) {
	power := transport.PowerOff
	if on {
		power = transport.PowerOn
	}
	m.mu.Lock()
	m.power = power
	m.mu.Unlock()
	m.events <- transport.Event{Kind: transport.EventAdapterState, Power: power}
}

// testServiceMap builds a single-service ServiceMap from the given UUIDs
// (an empty notifyChar means the same characteristic as writeChar). The
// write characteristic advertises both write properties, so
// resolveWriteMode picks the matching profile's PreferredMode.
func testServiceMap(serviceUUID, writeChar, notifyChar string) transport.ServiceMap {
	if notifyChar == "" {
		notifyChar = writeChar
	}
	var chars []transport.Characteristic
	if writeChar == notifyChar {
		chars = []transport.Characteristic{
			{UUID: writeChar, Properties: transport.PropWrite | transport.PropWriteWithoutResponse | transport.PropNotify},
		}
	} else {
		chars = []transport.Characteristic{
			{UUID: writeChar, Properties: transport.PropWrite | transport.PropWriteWithoutResponse},
			{UUID: notifyChar, Properties: transport.PropNotify},
		}
	}
	return transport.ServiceMap{
		Services: []transport.Service{
			{UUID: serviceUUID, Characteristics: chars},
		},
	}
}
