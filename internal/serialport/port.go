// Package serialport implements the controller transport on a real serial
// device.
package serialport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// ErrNoDevice is returned by Detect when no candidate serial device exists.
var ErrNoDevice = errors.New("no ttyACM or usbserial device found; is the STM32 board connected?")

// Port drives the USB serial link to the STM32 board. It satisfies the
// controller's Transport interface.
type Port struct {
	writeTimeout time.Duration
	device       string
	baud         int
	port         serial.Port

	// openPort is swappable so tests can drive Write against a fake device.
	openPort func(device string, baud int) (serial.Port, error)
}

// New creates an unopened port. writeTimeout bounds every Write call;
// non-positive values fall back to one second.
func New(writeTimeout time.Duration) *Port {
	if writeTimeout <= 0 {
		writeTimeout = time.Second
	}
	return &Port{writeTimeout: writeTimeout, openPort: openDevice}
}

func openDevice(device string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(device, mode)
}

// Open opens the device at 8N1 with the given baud rate.
func (p *Port) Open(device string, baud int) error {
	port, err := p.openPort(device, baud)
	if err != nil {
		return fmt.Errorf("open %s: %w", device, err)
	}
	p.device = device
	p.baud = baud
	p.port = port
	return nil
}

// Write sends one frame, bounded by the write timeout. The serial library
// has no native write deadline, so the write runs under a watchdog. When the
// watchdog fires, the port is closed to abort the stalled write and Write
// waits for it to leave the driver before returning; the next Write reopens
// the link. At most one write is ever inside the driver, so a frame that
// missed its deadline cannot leak bytes into a later one.
func (p *Port) Write(frame []byte) error {
	if p.port == nil {
		if p.device == "" {
			return errors.New("serial port is not open")
		}
		// A timed-out write took the link down; bring it back up.
		if err := p.Open(p.device, p.baud); err != nil {
			return err
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.port.Write(frame)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
	case <-time.After(p.writeTimeout):
		if err := p.port.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close serial port after write timeout")
		}
		<-done
		p.port = nil
		return fmt.Errorf("serial write timed out after %s", p.writeTimeout)
	}

	// The board acknowledges frames with free-form text; discard it so it
	// does not accumulate in the input buffer.
	if err := p.port.ResetInputBuffer(); err != nil {
		log.Debug().Err(err).Msg("Failed to flush serial input buffer")
	}
	return nil
}

// Close closes the device for good; unlike a watchdog teardown, a later
// Write will not reopen it.
func (p *Port) Close() error {
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	p.device = ""
	return err
}

// Detect returns the first serial device that looks like the STM32 board:
// ttyACM on Linux, usbserial adapters on macOS.
func Detect() (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	for _, name := range ports {
		if strings.Contains(name, "ttyACM") || strings.Contains(name, "usbserial") {
			return name, nil
		}
	}
	return "", ErrNoDevice
}
