// Package telemetry decodes rover telemetry lines into frames, encodes
// actuator commands for the link, and replays recorded missions.
package telemetry

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // decoder registration
	"image/png"
	"math"
	"time"

	"github.com/banshee-data/sample.return/internal/rover/l1geom"
)

// ErrBadImage is returned when a telemetry line's image cannot be decoded.
// The returned frame still carries the kinematics, with a nil Image.
var ErrBadImage = errors.New("bad telemetry image")

// Frame is one decoded telemetry sample: rover kinematics plus the camera
// image taken at the same instant.
type Frame struct {
	TotalTime  time.Duration
	Pose       l1geom.Pose
	Vel        float64
	NearSample bool
	Image      image.Image
}

// wireFrame is the JSON shape of a telemetry line.
type wireFrame struct {
	TotalTime  float64    `json:"total_time"`
	Pos        [2]float64 `json:"pos"`
	Yaw        float64    `json:"yaw"`
	Vel        float64    `json:"vel"`
	NearSample bool       `json:"near_sample"`
	Image      string     `json:"image"`
}

// DecodeFrame parses one telemetry line. The image is base64-encoded PNG
// or JPEG; an empty image field yields a frame with a nil Image. Yaw is
// normalised into [0, 360).
func DecodeFrame(line []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(line, &w); err != nil {
		return Frame{}, fmt.Errorf("failed to parse telemetry: %w", err)
	}
	if math.IsNaN(w.TotalTime) || w.TotalTime < 0 {
		return Frame{}, fmt.Errorf("invalid total_time %v", w.TotalTime)
	}
	f := Frame{
		TotalTime:  time.Duration(w.TotalTime * float64(time.Second)),
		Pose:       l1geom.Pose{X: w.Pos[0], Y: w.Pos[1], Yaw: l1geom.NormalizeYaw(w.Yaw)},
		Vel:        w.Vel,
		NearSample: w.NearSample,
	}
	if w.Image == "" {
		return f, nil
	}
	raw, err := base64.StdEncoding.DecodeString(w.Image)
	if err != nil {
		return f, fmt.Errorf("%w: base64: %v", ErrBadImage, err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return f, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	f.Image = img
	return f, nil
}

// EncodeFrame renders a frame as a telemetry line (without the trailing
// newline). Images are written as PNG.
func EncodeFrame(f Frame) ([]byte, error) {
	w := wireFrame{
		TotalTime:  f.TotalTime.Seconds(),
		Pos:        [2]float64{f.Pose.X, f.Pose.Y},
		Yaw:        f.Pose.Yaw,
		Vel:        f.Vel,
		NearSample: f.NearSample,
	}
	if f.Image != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, f.Image); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		w.Image = base64.StdEncoding.EncodeToString(buf.Bytes())
	}
	return json.Marshal(w)
}
