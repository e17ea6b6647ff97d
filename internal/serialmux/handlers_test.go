package serialmux

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/sample.return/internal/monitoring"
	"github.com/banshee-data/sample.return/internal/telemetry"
)

func quietLogs(t *testing.T) {
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = prev })
}

func telemetryLine(t *testing.T, at time.Duration) string {
	t.Helper()
	b, err := telemetry.EncodeFrame(telemetry.Frame{TotalTime: at, Vel: 0.5, Image: image.NewRGBA(image.Rect(0, 0, 2, 2))})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestClassifyPayload(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"total_time":1.5,"pos":[0,0]}`, EventTypeTelemetry},
		{`  {"battery":0.8}`, EventTypeStatus},
		{`#motor controller ready`, EventTypeLog},
		{`plain text line`, EventTypeUnknown},
		{``, EventTypeUnknown},
	}
	for _, c := range cases {
		if got := ClassifyPayload(c.in); got != c.want {
			t.Errorf("ClassifyPayload(%q) = %q; want %q", c.in, got, c.want)
		}
	}
}

func TestLinkHandler_Telemetry(t *testing.T) {
	quietLogs(t)
	var got []telemetry.Frame
	h := NewLinkHandler(func(f telemetry.Frame) error {
		got = append(got, f)
		return nil
	})

	if err := h.HandleEvent(telemetryLine(t, 1500*time.Millisecond)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	// A corrupt image still produces a frame.
	if err := h.HandleEvent(`{"total_time":2,"image":"aGVsbG8="}`); err != nil {
		t.Fatalf("HandleEvent(bad image): %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("delivered %d frames, want 2", len(got))
	}
	if got[0].TotalTime != 1500*time.Millisecond || got[0].Image == nil {
		t.Fatalf("frame 0 = %+v", got[0])
	}
	if got[1].Image != nil {
		t.Fatal("corrupt image should be delivered as nil")
	}

	err := h.HandleEvent(`{"total_time":-4}`)
	if err == nil || !strings.Contains(err.Error(), "failed to handle telemetry") {
		t.Fatalf("err = %v, want telemetry error", err)
	}
}

func TestLinkHandler_FrameError(t *testing.T) {
	quietLogs(t)
	boom := errors.New("pipeline closed")
	h := NewLinkHandler(func(telemetry.Frame) error { return boom })
	if err := h.HandleEvent(telemetryLine(t, time.Second)); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}

	// A handler without a frame callback accepts telemetry.
	if err := NewLinkHandler(nil).HandleEvent(telemetryLine(t, time.Second)); err != nil {
		t.Fatalf("nil OnFrame: %v", err)
	}
}

func TestLinkHandler_Status(t *testing.T) {
	quietLogs(t)
	h := NewLinkHandler(nil)
	if err := h.HandleEvent(`{"battery":0.8,"firmware":"1.2"}`); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if err := h.HandleEvent(`{"battery":0.7}`); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	state := h.DeviceState()
	if state["battery"] != 0.7 || state["firmware"] != "1.2" {
		t.Fatalf("DeviceState = %v", state)
	}
	state["battery"] = 0.0
	if h.DeviceState()["battery"] != 0.7 {
		t.Fatal("DeviceState should return a copy")
	}

	if err := h.HandleEvent(`{not json`); err == nil {
		t.Fatal("expected error for malformed status")
	}
	if err := h.HandleEvent("#log line"); err != nil {
		t.Fatalf("log lines should not error: %v", err)
	}
	if err := h.HandleEvent("???"); err != nil {
		t.Fatalf("unknown lines should not error: %v", err)
	}
}

func TestPump(t *testing.T) {
	quietLogs(t)
	port := NewFakeRoverPort()
	port.BlockReads = true
	defer port.Close()
	s := NewSerialMux(port)

	frames := make(chan telemetry.Frame, 4)
	h := NewLinkHandler(func(f telemetry.Frame) error {
		frames <- f
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pumpDone := make(chan error, 1)
	go func() { pumpDone <- Pump(ctx, s, h) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		s.subscriberMu.Lock()
		n := len(s.subscribers)
		s.subscriberMu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pump never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	go s.Monitor(ctx)
	port.Feed(telemetryLine(t, 3*time.Second))

	select {
	case f := <-frames:
		if f.TotalTime != 3*time.Second {
			t.Fatalf("TotalTime = %v", f.TotalTime)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}

	cancel()
	if err := <-pumpDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("Pump = %v, want context.Canceled", err)
	}
}

func TestPump_LinkClosed(t *testing.T) {
	d := NewDisabledSerialMux()
	d.Close()
	if err := Pump(context.Background(), d, NewLinkHandler(nil)); err != nil {
		t.Fatalf("Pump on closed link = %v, want nil", err)
	}
}
