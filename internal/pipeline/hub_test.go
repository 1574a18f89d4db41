package pipeline

import "testing"

func TestHub_LatestFrameWins(t *testing.T) {
	h := NewHub()
	frames, cancel := h.Subscribe()
	defer cancel()

	h.Publish([]byte("1"))
	h.Publish([]byte("2"))
	h.Publish([]byte("3"))

	got := <-frames
	if string(got) != "3" {
		t.Fatalf("expected newest frame, got %q", got)
	}
	select {
	case extra := <-frames:
		t.Fatalf("expected no queued frames, got %q", extra)
	default:
	}
	if h.Drops() != 2 {
		t.Errorf("expected 2 drops, got %d", h.Drops())
	}
}

func TestHub_SubscribeReceivesLatest(t *testing.T) {
	h := NewHub()
	h.Publish([]byte("a"))

	frames, cancel := h.Subscribe()
	defer cancel()
	if got := <-frames; string(got) != "a" {
		t.Fatalf("expected latest frame on subscribe, got %q", got)
	}
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	h := NewHub()
	frames, cancel := h.Subscribe()
	if h.Viewers() != 1 {
		t.Fatalf("expected 1 viewer, got %d", h.Viewers())
	}

	h.Close()
	if _, ok := <-frames; ok {
		t.Fatal("expected channel closed")
	}
	cancel() // after close is a no-op

	late, _ := h.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("expected closed channel for subscription after close")
	}
	h.Publish([]byte("ignored"))
}
