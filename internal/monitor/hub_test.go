package monitor

import (
	"testing"
	"time"

	"github.com/obd327/elm327session/internal/session"
)

func TestHubBroadcastDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	for i := 0; i < cap(h.broadcast); i++ {
		h.Broadcast(i)
	}
	// One more than the buffer holds must not block the caller.
	done := make(chan struct{})
	go func() {
		h.Broadcast("overflow")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full buffer")
	}
}

func TestToDTOFlattensZeroStateCleanly(t *testing.T) {
	dto := toDTO(session.SessionState{})
	if dto.LastError != "" {
		t.Fatalf("expected empty LastError for nil error, got %q", dto.LastError)
	}
	if !dto.LastSuccessAt.IsZero() {
		t.Fatalf("expected zero LastSuccessAt, got %v", dto.LastSuccessAt)
	}
	if dto.Phase != "disconnected" {
		t.Fatalf("expected zero-value phase to stringify as disconnected, got %q", dto.Phase)
	}
}
