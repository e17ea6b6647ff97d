package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/sample.return/internal/monitoring"
	"github.com/banshee-data/sample.return/internal/timeutil"
)

// maxLineBytes bounds a single telemetry line; frames carry a full image.
const maxLineBytes = 8 << 20

// DecodeError reports a recording line that failed to decode.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Reader yields frames from a JSON-lines recording.
type Reader struct {
	scan *bufio.Scanner
	line int
}

// NewReader reads frames from r.
func NewReader(r io.Reader) *Reader {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	return &Reader{scan: scan}
}

// Next returns the next frame, or io.EOF at the end of the recording.
// Blank lines are skipped. Decode failures are returned as *DecodeError
// alongside whatever part of the frame was decoded.
func (r *Reader) Next() (Frame, error) {
	for r.scan.Scan() {
		r.line++
		b := r.scan.Bytes()
		if len(b) == 0 {
			continue
		}
		f, err := DecodeFrame(b)
		if err != nil {
			return f, &DecodeError{Line: r.line, Err: err}
		}
		return f, nil
	}
	if err := r.scan.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

// Replay feeds the frames of r to fn, one per tick of clock at the given
// period; a zero period replays as fast as fn returns. Lines that are not
// valid telemetry are logged and skipped. Frames whose image is corrupt
// are still delivered, with a nil Image. An error from fn stops the
// replay. Replay returns the number of frames delivered.
func Replay(ctx context.Context, r io.Reader, clock timeutil.Clock, period time.Duration, fn func(Frame) error) (int, error) {
	reader := NewReader(r)
	var tick <-chan time.Time
	if period > 0 {
		ticker := clock.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C()
	}

	n := 0
	for {
		f, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		var de *DecodeError
		switch {
		case err == nil:
		case errors.As(err, &de) && errors.Is(err, ErrBadImage):
			monitoring.Logf("[telemetry] %v; delivering frame without image", err)
		case errors.As(err, &de):
			monitoring.Logf("[telemetry] skipping %v", err)
			continue
		default:
			return n, err
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return n, ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := fn(f); err != nil {
			return n, err
		}
		n++
	}
}
