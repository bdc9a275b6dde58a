// Package gattble implements transport.Transport over a real BLE radio
// using tinygo.org/x/bluetooth. It is the concrete body for the abstract
// port in internal/transport (§6.1.1) — the session manager never imports
// this package directly; only cmd/elm327session wires it in.
//
// Characteristics are discovered into a full RetrieveServices map rather
// than a single pre-known lookup, and the write mode (with- or
// without-response) is selected per call from the session's handshake
// result instead of hardcoded.
package gattble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/obd327/elm327session/internal/transport"
)

// Transport wraps tinygo.org/x/bluetooth's DefaultAdapter.
type Transport struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	devices map[transport.DeviceID]bluetooth.Device
	power   transport.AdapterPower

	events chan transport.Event
}

// New creates a gattble.Transport over the local default adapter.
func New() *Transport {
	return &Transport{
		adapter: bluetooth.DefaultAdapter,
		devices: make(map[transport.DeviceID]bluetooth.Device),
		events:  make(chan transport.Event, 64),
	}
}

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) Start(ctx context.Context) error {
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("gattble: enable adapter: %w", err)
	}

	t.mu.Lock()
	t.power = transport.PowerOn
	t.mu.Unlock()
	t.emit(transport.Event{Kind: transport.EventAdapterState, Power: transport.PowerOn})

	// tinygo/bluetooth fires the connect handler with connected=false when
	// a peripheral disconnects, via DidDisconnectPeripheral on Darwin and
	// the equivalent BlueZ signal on Linux.
	t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := t.idFor(device)
		t.emit(transport.Event{Kind: transport.EventDisconnected, Device: id})
	})

	return nil
}

func (t *Transport) State() transport.AdapterPower {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.power
}

func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

func (t *Transport) emit(ev transport.Event) {
	select {
	case t.events <- ev:
	default:
		// Never block the adapter's callback goroutine; a full event queue
		// means the session isn't keeping up, which is observable via a
		// stalled SessionState subscription rather than a wedged radio.
	}
}

func (t *Transport) Connect(ctx context.Context, device transport.DeviceID) error {
	var addr bluetooth.Address
	addr.Set(string(device))

	type result struct {
		dev bluetooth.Device
		err error
	}
	ch := make(chan result, 1)
	go func() {
		dev, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- result{dev, err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("gattble: connect to %s: %w", device, r.err)
		}
		t.mu.Lock()
		t.devices[device] = r.dev
		t.mu.Unlock()
		return nil
	}
}

func (t *Transport) Disconnect(ctx context.Context, device transport.DeviceID) error {
	dev, ok := t.lookup(device)
	if !ok {
		return nil
	}
	if err := dev.Disconnect(); err != nil {
		return fmt.Errorf("gattble: disconnect %s: %w", device, err)
	}
	t.mu.Lock()
	delete(t.devices, device)
	t.mu.Unlock()
	return nil
}

func (t *Transport) RetrieveServices(ctx context.Context, device transport.DeviceID) (transport.ServiceMap, error) {
	dev, ok := t.lookup(device)
	if !ok {
		return transport.ServiceMap{}, fmt.Errorf("gattble: %s not connected", device)
	}

	svcs, err := dev.DiscoverServices(nil)
	if err != nil {
		return transport.ServiceMap{}, fmt.Errorf("gattble: discover services: %w", err)
	}

	var out transport.ServiceMap
	for _, svc := range svcs {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return transport.ServiceMap{}, fmt.Errorf("gattble: discover characteristics for %s: %w", svc.UUID().String(), err)
		}
		var tchars []transport.Characteristic
		for _, ch := range chars {
			tchars = append(tchars, transport.Characteristic{
				UUID:       ch.UUID().String(),
				Properties: charProperties(ch),
			})
		}
		out.Services = append(out.Services, transport.Service{
			UUID:            svc.UUID().String(),
			Characteristics: tchars,
		})
	}
	return out, nil
}

// charProperties reports the port's Property set for a discovered
// characteristic. tinygo/bluetooth does not expose characteristic property
// flags uniformly across OS backends, so every characteristic is reported
// as supporting both write variants and notify; no per-characteristic flags
// are read. The handshake's own attempt to start notifications / write is
// what ultimately determines compatibility.
func charProperties(ch bluetooth.DeviceCharacteristic) transport.Property {
	return transport.PropWrite | transport.PropWriteWithoutResponse | transport.PropNotify
}

func (t *Transport) StartNotifications(ctx context.Context, device transport.DeviceID, service, char string) error {
	ch, err := t.findCharacteristic(device, service, char)
	if err != nil {
		return err
	}
	id := device
	return ch.EnableNotifications(func(buf []byte) {
		data := make([]byte, len(buf))
		copy(data, buf)
		t.emit(transport.Event{
			Kind:    transport.EventNotificationValue,
			Device:  id,
			Service: service,
			Char:    char,
			Data:    data,
		})
	})
}

func (t *Transport) StopNotifications(ctx context.Context, device transport.DeviceID, service, char string) error {
	ch, err := t.findCharacteristic(device, service, char)
	if err != nil {
		return err
	}
	return ch.EnableNotifications(nil)
}

func (t *Transport) Write(ctx context.Context, device transport.DeviceID, service, char string, data []byte) error {
	ch, err := t.findCharacteristic(device, service, char)
	if err != nil {
		return err
	}
	_, err = ch.Write(data)
	return err
}

func (t *Transport) WriteWithoutResponse(ctx context.Context, device transport.DeviceID, service, char string, data []byte) error {
	ch, err := t.findCharacteristic(device, service, char)
	if err != nil {
		return err
	}
	_, err = ch.WriteWithoutResponse(data)
	return err
}

func (t *Transport) findCharacteristic(device transport.DeviceID, service, char string) (bluetooth.DeviceCharacteristic, error) {
	dev, ok := t.lookup(device)
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("gattble: %s not connected", device)
	}

	svcUUID, err := bluetooth.ParseUUID(service)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("gattble: parse service uuid: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(char)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("gattble: parse characteristic uuid: %w", err)
	}

	svcs, err := dev.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(svcs) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("gattble: service %s not found", service)
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil || len(chars) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("gattble: characteristic %s not found", char)
	}
	return chars[0], nil
}

func (t *Transport) lookup(device transport.DeviceID) (bluetooth.Device, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dev, ok := t.devices[device]
	return dev, ok
}

func (t *Transport) idFor(device bluetooth.Device) transport.DeviceID {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, d := range t.devices {
		if d.Address.String() == device.Address.String() {
			return id
		}
	}
	return transport.DeviceID(device.Address.String())
}
