package serial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gurux/gxcommon-go"
)

func TestEndpoint_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ep      Endpoint
		wantErr bool
	}{
		{"valid", Endpoint{Name: "tft", Path: "/dev/ttyS0", Baud: 115200, Timeout: time.Second}, false},
		{"zero timeout blocks", Endpoint{Name: "fw", Path: "/tmp/printer", Baud: 250000}, false},
		{"empty path", Endpoint{Name: "tft", Baud: 115200}, true},
		{"zero baud", Endpoint{Name: "tft", Path: "/dev/ttyS0"}, true},
		{"negative baud", Endpoint{Name: "tft", Path: "/dev/ttyS0", Baud: -9600}, true},
		{"negative timeout", Endpoint{Name: "tft", Path: "/dev/ttyS0", Baud: 9600, Timeout: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ep.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEndpoint) {
				t.Errorf("Validate() error = %v, want ErrInvalidEndpoint", err)
			}
		})
	}
}

func TestNewOpener(t *testing.T) {
	for _, driver := range []string{DriverTermios, DriverGurux, ""} {
		if _, err := NewOpener(driver); err != nil {
			t.Errorf("NewOpener(%q) error = %v", driver, err)
		}
	}

	if _, err := NewOpener("pyserial"); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("NewOpener(pyserial) error = %v, want ErrUnknownDriver", err)
	}
}

func TestOpen_InvalidEndpoint(t *testing.T) {
	for _, driver := range []string{DriverTermios, DriverGurux} {
		t.Run(driver, func(t *testing.T) {
			opener, err := NewOpener(driver)
			if err != nil {
				t.Fatal(err)
			}
			_, err = opener.Open(context.Background(), Endpoint{Name: "tft"})
			if !errors.Is(err, ErrInvalidEndpoint) {
				t.Errorf("Open() error = %v, want ErrInvalidEndpoint", err)
			}
		})
	}
}

func TestOpenTermios_MissingDevice(t *testing.T) {
	ep := Endpoint{Name: "tft", Path: "/nonexistent/ttyTFT", Baud: 115200, Timeout: time.Second}
	_, err := openTermios(context.Background(), ep)
	if !errors.Is(err, ErrOpenFailed) {
		t.Errorf("openTermios() error = %v, want ErrOpenFailed", err)
	}
}

func TestOpenGurux_MissingDevice(t *testing.T) {
	ep := Endpoint{Name: "firmware", Path: "/nonexistent/printer", Baud: 250000, Timeout: time.Second}
	_, err := openGurux(context.Background(), ep)
	if !errors.Is(err, ErrOpenFailed) {
		t.Errorf("openGurux() error = %v, want ErrOpenFailed", err)
	}
}

func TestNewGuruxMedia_LineSettings(t *testing.T) {
	media := newGuruxMedia(Endpoint{Name: "tft", Path: "/dev/ttyS2", Baud: 115200})

	if got := media.BaudRate(); got != gxcommon.BaudRate(115200) {
		t.Errorf("BaudRate() = %v, want 115200", got)
	}
	if got := media.DataBits(); got != 8 {
		t.Errorf("DataBits() = %d, want 8", got)
	}
	if got := media.StopBits(); got != gxcommon.StopBitsOne {
		t.Errorf("StopBits() = %v, want one", got)
	}
	if got := media.Parity(); got != gxcommon.ParityNone {
		t.Errorf("Parity() = %v, want none", got)
	}
}

func TestOpenerFunc(t *testing.T) {
	called := false
	var o Opener = OpenerFunc(func(_ context.Context, ep Endpoint) (Port, error) {
		called = ep.Name == "tft"
		return nil, nil
	})
	_, _ = o.Open(context.Background(), Endpoint{Name: "tft"})
	if !called {
		t.Error("OpenerFunc did not forward the endpoint")
	}
}
