package session

import (
	"context"
	"fmt"

	"github.com/obd327/elm327session/internal/catalog"
	"github.com/obd327/elm327session/internal/transport"
)

// doConnect implements the §4.4 handshake contract: connect, retrieve the
// service map, match it against the profile catalog, and start
// notifications on the first matching profile. It imposes no timeout of its
// own; ctx bounds the transport calls. Must only run on the session's loop
// goroutine.
func (s *Session) doConnect(ctx context.Context, device transport.DeviceID) (Peripheral, error) {
	if s.st.phase != PhaseDisconnected {
		if s.st.phase == PhaseConnected {
			return Peripheral{}, newError(KindAlreadyConnected, nil)
		}
		return Peripheral{}, newError(KindInProgress, nil)
	}
	if !s.st.bluetoothOn {
		return Peripheral{}, newError(KindBluetoothOff, nil)
	}

	s.st.applyConnecting(device)
	s.publishSnapshot()

	if err := s.transport.Connect(ctx, device); err != nil {
		wrapped := newError(KindTransportError, err)
		s.st.applyConnectFailed(wrapped)
		s.publishSnapshot()
		return Peripheral{}, wrapped
	}

	services, err := s.transport.RetrieveServices(ctx, device)
	if err != nil {
		s.abortHandshake(ctx, device)
		wrapped := newError(KindTransportError, err)
		s.st.applyConnectFailed(wrapped)
		s.publishSnapshot()
		return Peripheral{}, wrapped
	}

	match, ok := catalog.Match(s.profiles, services)
	if !ok {
		s.abortHandshake(ctx, device)
		failErr := newError(KindIncompatible, nil)
		s.st.applyConnectFailed(failErr)
		s.publishSnapshot()
		return Peripheral{}, failErr
	}

	if err := s.transport.StartNotifications(ctx, device, match.Profile.ServiceUUID, match.Profile.NotifyCharUUID); err != nil {
		s.abortHandshake(ctx, device)
		wrapped := newError(KindTransportError, fmt.Errorf("start notifications: %w", err))
		s.st.applyConnectFailed(wrapped)
		s.publishSnapshot()
		return Peripheral{}, wrapped
	}

	s.st.applyConnected(match.Profile, match.ResolvedMode)
	s.publishSnapshot()

	return Peripheral{
		Device: device,
		Config: ActiveConfig{Profile: match.Profile, WriteMode: match.ResolvedMode},
	}, nil
}

// abortHandshake performs the best-effort transport disconnect required on
// handshake failure (§4.4 post-failure, §7 propagation).
func (s *Session) abortHandshake(ctx context.Context, device transport.DeviceID) {
	if err := s.transport.Disconnect(ctx, device); err != nil {
		// Best effort only; the handshake error itself is what's reported.
		_ = err
	}
}

// doDisconnect implements disconnect() (§4.8): idempotent when already
// disconnected, otherwise rejects any in-flight command and tears down the
// transport connection.
func (s *Session) doDisconnect(ctx context.Context) error {
	if s.st.phase == PhaseDisconnected {
		return nil
	}

	device := s.st.device
	s.st.applyDisconnecting()
	s.publishSnapshot()

	s.failInFlight(newError(KindDisconnected, nil))

	var transportErr error
	if device != "" {
		if err := s.transport.Disconnect(ctx, device); err != nil {
			transportErr = newError(KindTransportError, err)
		}
	}

	s.st.applyDisconnected()
	s.publishSnapshot()

	return transportErr
}
