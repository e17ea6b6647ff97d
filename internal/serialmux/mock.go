package serialmux

import (
	"bytes"
	"errors"
	"strings"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// FakeRoverPort stands in for the rover's serial link in tests. Feed queues
// telemetry lines for Read; Commands returns the lines written to it.
type FakeRoverPort struct {
	mu   sync.Mutex
	cond *sync.Cond
	in   bytes.Buffer
	out  bytes.Buffer

	// BlockReads makes Read wait for Feed or Close instead of returning
	// io.EOF on an empty queue.
	BlockReads bool

	// ReadError and WriteError fail the next call once. CloseError is
	// returned by every Close.
	ReadError  error
	WriteError error
	CloseError error

	Closed bool
}

// NewFakeRoverPort creates an open port with nothing queued.
func NewFakeRoverPort() *FakeRoverPort {
	p := &FakeRoverPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *FakeRoverPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	for p.BlockReads && !p.Closed && p.in.Len() == 0 {
		p.cond.Wait()
	}
	if p.Closed {
		return 0, errPortClosed
	}
	return p.in.Read(b)
}

func (p *FakeRoverPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed {
		return 0, errPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	return p.out.Write(b)
}

func (p *FakeRoverPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.cond.Broadcast()
	return p.CloseError
}

// FeedRaw queues bytes exactly as given.
func (p *FakeRoverPort) FeedRaw(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.Write(data)
	p.cond.Broadcast()
}

// Feed queues each line followed by a newline.
func (p *FakeRoverPort) Feed(lines ...string) {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	p.FeedRaw(buf.Bytes())
}

// Written returns everything written to the port.
func (p *FakeRoverPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

// Commands returns the newline-terminated lines written to the port.
func (p *FakeRoverPort) Commands() []string {
	w := p.Written()
	if w == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(w, "\n"), "\n")
}

// MockSerialPortFactory returns a fixed port and records each Open.
type MockSerialPortFactory struct {
	mu sync.Mutex

	Port      SerialPorter
	Error     error
	OpenCalls []MockOpenCall
}

// MockOpenCall records the arguments of one Open.
type MockOpenCall struct {
	Path string
	Opts PortOptions
}

func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Opts: opts})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open, or nil.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}

// Reset forgets recorded calls and clears Error.
func (f *MockSerialPortFactory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCalls = nil
	f.Error = nil
}
