package serialmux

import (
	"strings"
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalise_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	want := PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Fatalf("Normalise() = %+v, want %+v", got, want)
	}
	if got.String() != "115200 8N1" {
		t.Fatalf("String() = %q", got.String())
	}
}

func TestPortOptions_Normalise_ExplicitValues(t *testing.T) {
	got, err := PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	want := PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}
	if got != want {
		t.Fatalf("Normalise() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalise_Errors(t *testing.T) {
	tests := []struct {
		name    string
		opts    PortOptions
		wantErr string
	}{
		{"data bits", PortOptions{DataBits: 9}, "data bits"},
		{"stop bits", PortOptions{StopBits: 3}, "stop bits"},
		{"parity", PortOptions{Parity: "mark"}, "parity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Normalise()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPortOptions_Equal(t *testing.T) {
	if !(PortOptions{}).Equal(PortOptions{BaudRate: 115200, Parity: "none"}) {
		t.Error("defaults should equal their explicit form")
	}
	if (PortOptions{}).Equal(PortOptions{BaudRate: 9600}) {
		t.Error("different baud rates should not be equal")
	}
	if (PortOptions{DataBits: 4}).Equal(PortOptions{DataBits: 4}) {
		t.Error("invalid options are never equal")
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	tests := []struct {
		opts       PortOptions
		wantStop   serial.StopBits
		wantParity serial.Parity
	}{
		{PortOptions{}, serial.OneStopBit, serial.NoParity},
		{PortOptions{StopBits: 2, Parity: "O"}, serial.TwoStopBits, serial.OddParity},
		{PortOptions{StopBits: 1, Parity: "E"}, serial.OneStopBit, serial.EvenParity},
	}
	for _, tt := range tests {
		mode, err := tt.opts.SerialMode()
		if err != nil {
			t.Fatalf("SerialMode(%+v): %v", tt.opts, err)
		}
		if mode.StopBits != tt.wantStop || mode.Parity != tt.wantParity {
			t.Errorf("SerialMode(%+v) = stop %v parity %v, want %v %v", tt.opts, mode.StopBits, mode.Parity, tt.wantStop, tt.wantParity)
		}
		if mode.BaudRate != DefaultBaudRate || mode.DataBits != 8 {
			t.Errorf("SerialMode(%+v) = baud %d bits %d", tt.opts, mode.BaudRate, mode.DataBits)
		}
	}

	if _, err := (PortOptions{Parity: "?"}).SerialMode(); err == nil {
		t.Error("expected error for bad parity")
	}
}
