package serialmux

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/banshee-data/sample.return/internal/monitoring"
	"github.com/banshee-data/sample.return/internal/telemetry"
)

// LinkHandler dispatches lines received from the rover. Telemetry frames go
// to OnFrame; status objects are merged into the device state.
type LinkHandler struct {
	OnFrame func(telemetry.Frame) error

	mu    sync.Mutex
	state map[string]any
}

// NewLinkHandler creates a handler delivering frames to onFrame.
func NewLinkHandler(onFrame func(telemetry.Frame) error) *LinkHandler {
	return &LinkHandler{OnFrame: onFrame, state: make(map[string]any)}
}

// DeviceState returns a copy of the latest status values reported by the
// rover.
func (h *LinkHandler) DeviceState() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.state)
}

// HandleTelemetry decodes a telemetry line and delivers it. A frame whose
// image is corrupt is still delivered with a nil Image so the controller
// sees the failed perception.
func (h *LinkHandler) HandleTelemetry(payload string) error {
	f, err := telemetry.DecodeFrame([]byte(payload))
	if err != nil && !errors.Is(err, telemetry.ErrBadImage) {
		return err
	}
	if err != nil {
		monitoring.Logf("[link] %v; delivering frame without image", err)
	}
	if h.OnFrame == nil {
		return nil
	}
	return h.OnFrame(f)
}

// HandleStatus merges a status object into the device state.
func (h *LinkHandler) HandleStatus(payload string) error {
	var values map[string]any
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %v", err)
	}
	h.mu.Lock()
	maps.Copy(h.state, values)
	h.mu.Unlock()
	monitoring.Logf("[link] status: %s", payload)
	return nil
}

// HandleEvent classifies payload and routes it.
func (h *LinkHandler) HandleEvent(payload string) error {
	switch ClassifyPayload(payload) {
	case EventTypeTelemetry:
		if err := h.HandleTelemetry(payload); err != nil {
			return fmt.Errorf("failed to handle telemetry: %w", err)
		}
	case EventTypeStatus:
		if err := h.HandleStatus(payload); err != nil {
			return fmt.Errorf("failed to handle status: %w", err)
		}
	case EventTypeLog:
		monitoring.Logf("[link] device: %s", payload)
	default:
		monitoring.Logf("[link] unknown line: %s", summarise(payload))
	}
	return nil
}

// Pump subscribes to link and feeds every line to h until ctx is done or
// the link closes. Handler errors are logged and do not stop the pump.
func Pump(ctx context.Context, link SerialMuxInterface, h *LinkHandler) error {
	id, lines := link.Subscribe()
	defer link.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := h.HandleEvent(line); err != nil {
				monitoring.Logf("[link] %v", err)
			}
		}
	}
}
