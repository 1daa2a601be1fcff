package serialport

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.bug.st/serial"
)

// fakeDevice implements serial.Port. A write marked to stall blocks until
// the device is closed, the way a wedged USB CDC endpoint behaves. It also
// watches for two writes being inside the driver at once.
type fakeDevice struct {
	mu        sync.Mutex
	frames    [][]byte
	flushes   int
	closes    int
	stallNext bool

	unblock   chan struct{}
	closeOnce sync.Once

	inWrite    atomic.Int32
	overlapped atomic.Bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{unblock: make(chan struct{})}
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	if d.inWrite.Add(1) > 1 {
		d.overlapped.Store(true)
	}
	defer d.inWrite.Add(-1)

	d.mu.Lock()
	stall := d.stallNext
	d.stallNext = false
	d.mu.Unlock()

	if stall {
		<-d.unblock
		return 0, errors.New("port closed")
	}

	d.mu.Lock()
	d.frames = append(d.frames, append([]byte(nil), p...))
	d.mu.Unlock()
	return len(p), nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()
	d.closeOnce.Do(func() { close(d.unblock) })
	return nil
}

func (d *fakeDevice) ResetInputBuffer() error {
	d.mu.Lock()
	d.flushes++
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) SetMode(*serial.Mode) error                           { return nil }
func (d *fakeDevice) Read([]byte) (int, error)                             { return 0, nil }
func (d *fakeDevice) Drain() error                                         { return nil }
func (d *fakeDevice) ResetOutputBuffer() error                             { return nil }
func (d *fakeDevice) SetDTR(bool) error                                    { return nil }
func (d *fakeDevice) SetRTS(bool) error                                    { return nil }
func (d *fakeDevice) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }
func (d *fakeDevice) SetReadTimeout(time.Duration) error                   { return nil }
func (d *fakeDevice) Break(time.Duration) error                            { return nil }

// newFakePort wires a Port to a fake device and counts reopens.
func newFakePort(t *testing.T, timeout time.Duration, dev *fakeDevice) (*Port, *int) {
	t.Helper()
	opens := 0
	p := New(timeout)
	p.openPort = func(string, int) (serial.Port, error) {
		opens++
		return dev, nil
	}
	if err := p.Open("/dev/ttyACM0", 9600); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	return p, &opens
}

func TestWrite_NotOpen(t *testing.T) {
	p := New(time.Second)
	p.openPort = func(string, int) (serial.Port, error) {
		t.Fatal("Write on a never-opened port must not dial the device")
		return nil, nil
	}
	if err := p.Write([]byte{0xff}); err == nil {
		t.Error("Write on a never-opened port succeeded")
	}
}

func TestWrite_SendsFrameAndFlushesEcho(t *testing.T) {
	dev := newFakeDevice()
	p, _ := newFakePort(t, time.Second, dev)

	frame := []byte{0xff, 1, 2, 3, 4}
	if err := p.Write(frame); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if len(dev.frames) != 1 {
		t.Fatalf("device saw %d frames, want 1", len(dev.frames))
	}
	for i := range frame {
		if dev.frames[0][i] != frame[i] {
			t.Errorf("byte %d = %#02x, want %#02x", i, dev.frames[0][i], frame[i])
		}
	}
	if dev.flushes != 1 {
		t.Errorf("input buffer flushed %d times, want 1", dev.flushes)
	}
}

func TestWrite_TimeoutReportsErrorAndClosesPort(t *testing.T) {
	dev := newFakeDevice()
	p, _ := newFakePort(t, 50*time.Millisecond, dev)

	dev.stallNext = true
	start := time.Now()
	err := p.Write([]byte{0xff, 0, 0, 0, 0})
	if err == nil {
		t.Fatal("stalled Write succeeded, want timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want a timeout", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Write returned after %s, before the watchdog window", elapsed)
	}
	if dev.closes != 1 {
		t.Errorf("device closed %d times after timeout, want 1", dev.closes)
	}
}

func TestWrite_TimeoutNeverOverlapsNextWrite(t *testing.T) {
	dev := newFakeDevice()
	p, opens := newFakePort(t, 50*time.Millisecond, dev)

	dev.stallNext = true
	if err := p.Write([]byte{0xff, 1, 1, 1, 1}); err == nil {
		t.Fatal("stalled Write succeeded, want timeout error")
	}

	// The link was torn down; the next write reopens it and goes through.
	if err := p.Write([]byte{0xff, 2, 2, 2, 2}); err != nil {
		t.Fatalf("Write after timeout returned error: %v", err)
	}
	if *opens != 2 {
		t.Errorf("device opened %d times, want 2 (initial open plus reopen)", *opens)
	}
	if dev.overlapped.Load() {
		t.Error("a write entered the device while the stalled one was still inside")
	}

	// Only the recovered frame reached the device.
	if len(dev.frames) != 1 || dev.frames[0][1] != 2 {
		t.Errorf("device frames = %v, want only the post-recovery frame", dev.frames)
	}
}

func TestClose_IsFinal(t *testing.T) {
	dev := newFakeDevice()
	p, opens := newFakePort(t, time.Second, dev)

	if err := p.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := p.Write([]byte{0xff}); err == nil {
		t.Error("Write after Close succeeded, want error")
	}
	if *opens != 1 {
		t.Errorf("device opened %d times after explicit Close, want 1", *opens)
	}
}
