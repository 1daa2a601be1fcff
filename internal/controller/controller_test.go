package controller

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"

	"github.com/pixelbar/ledcontrol/internal/color"
	"github.com/pixelbar/ledcontrol/internal/frame"
)

// mockTransport records frames and simulates open/write failures. Writes copy
// bytes one at a time with scheduler yields in between, so interleaved
// concurrent writes would be visible in the recorded stream.
type mockTransport struct {
	mu       sync.Mutex
	stream   []byte
	writes   int
	opens    int
	openErr  error
	writeErr error
}

func (m *mockTransport) Open(device string, baud int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.opens++
	return nil
}

func (m *mockTransport) Write(frame []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	for _, b := range frame {
		m.mu.Lock()
		m.stream = append(m.stream, b)
		m.mu.Unlock()
		runtime.Gosched()
	}
	m.mu.Lock()
	m.writes++
	m.mu.Unlock()
	return nil
}

func (m *mockTransport) Close() error { return nil }

func newTestController(t *mockTransport, groups int) *Controller {
	return New(t, Config{
		Device:  "/dev/null",
		Groups:  groups,
		Profile: frame.Raw(),
	})
}

func TestPowerOnDefault(t *testing.T) {
	c := newTestController(&mockTransport{}, 4)
	for i, hex := range c.HexColors() {
		if hex != "ffffffff" {
			t.Errorf("group %d = %q, want ffffffff before first write", i, hex)
		}
	}
}

func TestSetHexColors_LazyOpenAndCommit(t *testing.T) {
	mock := &mockTransport{}
	c := newTestController(mock, 4)

	state, err := c.SetHexColors(context.Background(), []string{"884422"})
	if err != nil {
		t.Fatalf("SetHexColors returned error: %v", err)
	}
	if mock.opens != 1 {
		t.Errorf("transport opened %d times, want 1", mock.opens)
	}
	if len(state) != 4 {
		t.Fatalf("returned state has %d groups, want 4", len(state))
	}
	for i, hex := range c.HexColors() {
		if hex != "88442200" {
			t.Errorf("group %d = %q, want 88442200", i, hex)
		}
	}

	// Second write reuses the open link.
	if _, err := c.SetHexColors(context.Background(), []string{"00"}); err != nil {
		t.Fatalf("second SetHexColors returned error: %v", err)
	}
	if mock.opens != 1 {
		t.Errorf("transport opened %d times after second write, want 1", mock.opens)
	}
}

func TestSetHexColors_FrameOnWire(t *testing.T) {
	mock := &mockTransport{}
	c := newTestController(mock, 2)

	if _, err := c.SetHexColors(context.Background(), []string{"11223344", "55667788"}); err != nil {
		t.Fatalf("SetHexColors returned error: %v", err)
	}
	want := []byte{frame.StartByte, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}
	if len(mock.stream) != len(want) {
		t.Fatalf("wrote %d bytes, want %d", len(mock.stream), len(want))
	}
	for i := range want {
		if mock.stream[i] != want[i] {
			t.Errorf("byte %d = %#02x, want %#02x", i, mock.stream[i], want[i])
		}
	}
}

func TestConfigure(t *testing.T) {
	mock := &mockTransport{}
	c := newTestController(mock, 4)

	if err := c.Configure("/dev/ttyACM0", 115200); err != nil {
		t.Fatalf("Configure on closed controller returned error: %v", err)
	}

	if _, err := c.SetHexColors(context.Background(), []string{"ff"}); err != nil {
		t.Fatalf("SetHexColors returned error: %v", err)
	}
	if err := c.Configure("/dev/ttyACM1", 9600); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("Configure on open controller = %v, want ErrAlreadyOpen", err)
	}
}

func TestOpenFailureStaysClosed(t *testing.T) {
	mock := &mockTransport{openErr: errors.New("no such device")}
	c := newTestController(mock, 4)

	_, err := c.SetHexColors(context.Background(), []string{"ff"})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error = %v, want TransportError", err)
	}

	// Still closed: reconfiguration is legal and a later open is retried.
	if err := c.Configure("/dev/ttyACM0", 9600); err != nil {
		t.Errorf("Configure after failed open returned error: %v", err)
	}
	mock.openErr = nil
	if _, err := c.SetHexColors(context.Background(), []string{"ff"}); err != nil {
		t.Errorf("SetHexColors after clearing open error: %v", err)
	}
}

func TestWriteFailureKeepsState(t *testing.T) {
	mock := &mockTransport{}
	c := newTestController(mock, 4)

	if _, err := c.SetHexColors(context.Background(), []string{"11"}); err != nil {
		t.Fatalf("initial SetHexColors returned error: %v", err)
	}

	mock.writeErr = errors.New("device unplugged")
	_, err := c.SetHexColors(context.Background(), []string{"22"})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error = %v, want TransportError", err)
	}

	for i, hex := range c.HexColors() {
		if hex != "11111111" {
			t.Errorf("group %d = %q after failed write, want pre-call 11111111", i, hex)
		}
	}

	// The link stays open; a later write succeeds without reopening.
	mock.writeErr = nil
	if _, err := c.SetHexColors(context.Background(), []string{"22"}); err != nil {
		t.Fatalf("SetHexColors after clearing write error: %v", err)
	}
	if mock.opens != 1 {
		t.Errorf("transport opened %d times, want 1", mock.opens)
	}
}

func TestSetState_WrongLength(t *testing.T) {
	c := newTestController(&mockTransport{}, 4)
	err := c.SetState(context.Background(), color.FullBright(3))
	var countErr *color.WrongGroupCountError
	if !errors.As(err, &countErr) {
		t.Fatalf("error = %v, want WrongGroupCountError", err)
	}
	if countErr.Expected != 4 || countErr.Got != 3 {
		t.Errorf("WrongGroupCountError = expected %d, got %d", countErr.Expected, countErr.Got)
	}
}

func TestSetPartial(t *testing.T) {
	mock := &mockTransport{}
	c := newTestController(mock, 4)

	if _, err := c.SetHexColors(context.Background(), []string{"44"}); err != nil {
		t.Fatalf("SetHexColors returned error: %v", err)
	}

	state, err := c.SetPartial(context.Background(), map[int]string{1: "00112233"})
	if err != nil {
		t.Fatalf("SetPartial returned error: %v", err)
	}
	want := []string{"44444444", "00112233", "44444444", "44444444"}
	for i, hex := range state.HexColors() {
		if hex != want[i] {
			t.Errorf("group %d = %q, want %q", i, hex, want[i])
		}
	}
	// Merged result went out as one frame, not per-group writes.
	if mock.writes != 2 {
		t.Errorf("transport saw %d writes, want 2", mock.writes)
	}
}

func TestSetPartial_BadIndex(t *testing.T) {
	mock := &mockTransport{}
	c := newTestController(mock, 4)

	for _, idx := range []int{-1, 4, 17} {
		_, err := c.SetPartial(context.Background(), map[int]string{idx: "ff"})
		var rangeErr *color.IndexOutOfRangeError
		if !errors.As(err, &rangeErr) {
			t.Errorf("index %d: error = %v, want IndexOutOfRangeError", idx, err)
			continue
		}
		if rangeErr.Index != idx || rangeErr.Groups != 4 {
			t.Errorf("index %d: error carries index %d groups %d", idx, rangeErr.Index, rangeErr.Groups)
		}
	}
	if len(mock.stream) != 0 {
		t.Error("validation failure reached the transport")
	}
}

func TestConcurrentWritesNeverInterleave(t *testing.T) {
	mock := &mockTransport{}
	c := newTestController(mock, 4)

	const workers = 8
	const rounds = 20
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				hex := fmt.Sprintf("%02x", (w*rounds+r)%256)
				if _, err := c.SetHexColors(context.Background(), []string{hex}); err != nil {
					t.Errorf("worker %d: %v", w, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	frameLen := 1 + 4*c.Groups()
	if len(mock.stream)%frameLen != 0 {
		t.Fatalf("stream length %d is not a multiple of frame length %d", len(mock.stream), frameLen)
	}
	for off := 0; off < len(mock.stream); off += frameLen {
		chunk := mock.stream[off : off+frameLen]
		if chunk[0] != frame.StartByte {
			t.Fatalf("frame at offset %d does not begin with the start byte", off)
		}
		// Broadcast writes: all four groups carry the same quadruple.
		first := chunk[1:5]
		for g := 1; g < 4; g++ {
			for i := 0; i < 4; i++ {
				if chunk[1+g*4+i] != first[i] {
					t.Fatalf("frame at offset %d mixes bytes from different writes", off)
				}
			}
		}
	}
}
