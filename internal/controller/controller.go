// Package controller owns the last-applied LED state and the serial link to
// the controller board. All mutation runs behind one lock so concurrent
// callers can never interleave frame bytes on the wire.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/pixelbar/ledcontrol/internal/color"
	"github.com/pixelbar/ledcontrol/internal/frame"
	"github.com/pixelbar/ledcontrol/internal/metrics"
)

// Transport is the serial link as the controller sees it. Implementations
// must bound Write with their own timeout so callers never hang.
type Transport interface {
	Open(device string, baud int) error
	Write(frame []byte) error
	Close() error
}

// Config carries the controller knobs.
type Config struct {
	Device  string
	Baud    int
	Groups  int
	Profile frame.Profile

	// RateLimit caps frame transmissions per second; zero disables the cap.
	RateLimit rate.Limit
}

// Controller tracks the state most recently committed to the board. The board
// has no read-back protocol, so this mirror is best-effort: it is only
// updated after a transmission succeeds.
type Controller struct {
	mu        sync.Mutex
	transport Transport
	device    string
	baud      int
	open      bool
	groups    int
	profile   frame.Profile
	limiter   *rate.Limiter
	state     color.GroupState
}

// New creates a controller in the Closed state. The transport is opened
// lazily by the first state change. On creation the mirrored state matches
// the board's power-on default: full bright on every channel.
func New(t Transport, cfg Config) *Controller {
	if cfg.Baud <= 0 {
		cfg.Baud = 9600
	}
	if cfg.Groups <= 0 {
		cfg.Groups = 4
	}
	c := &Controller{
		transport: t,
		device:    cfg.Device,
		baud:      cfg.Baud,
		groups:    cfg.Groups,
		profile:   cfg.Profile,
		state:     color.FullBright(cfg.Groups),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(cfg.RateLimit, 1)
	}
	return c
}

// Groups returns the number of wired LED groups.
func (c *Controller) Groups() int {
	return c.groups
}

// Configure sets the serial parameters. Only legal while the link is closed;
// changing wire parameters underneath an open connection is refused.
func (c *Controller) Configure(device string, baud int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return ErrAlreadyOpen
	}
	if device != "" {
		c.device = device
	}
	if baud > 0 {
		c.baud = baud
	}
	return nil
}

// State returns a snapshot of the last committed state. Before the first
// successful write this is the board's power-on default.
func (c *Controller) State() color.GroupState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// HexColors returns the last committed state as one hex string per group.
func (c *Controller) HexColors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.HexColors()
}

// SetHexColors parses colors (a single color to broadcast, or one per group)
// and transmits the resulting state as a single frame.
func (c *Controller) SetHexColors(ctx context.Context, colors []string) (color.GroupState, error) {
	state, err := color.ParseGroupState(colors, c.groups)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.applyLocked(ctx, state); err != nil {
		return nil, err
	}
	return state.Clone(), nil
}

// SetState validates, encodes and transmits a full group state.
func (c *Controller) SetState(ctx context.Context, state color.GroupState) error {
	if len(state) != c.groups {
		return &color.WrongGroupCountError{Expected: c.groups, Got: len(state)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(ctx, state.Clone())
}

// SetPartial merges per-index color updates into the last committed state and
// transmits the merged result as one frame. Untouched groups keep their
// previous values. The read-merge-write runs under the same lock as full
// updates.
func (c *Controller) SetPartial(ctx context.Context, updates map[int]string) (color.GroupState, error) {
	// Validate everything up front; nothing may reach the wire otherwise.
	parsed := make(map[int]color.RGBW, len(updates))
	for idx, s := range updates {
		if idx < 0 || idx >= c.groups {
			return nil, &color.IndexOutOfRangeError{Index: idx, Groups: c.groups}
		}
		ch, err := color.ParseColor(s)
		if err != nil {
			return nil, err
		}
		parsed[idx] = ch
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.state.Clone()
	for idx, ch := range parsed {
		state[idx] = ch
	}
	if err := c.applyLocked(ctx, state); err != nil {
		return nil, err
	}
	return state.Clone(), nil
}

// applyLocked runs the open -> encode -> transmit -> commit sequence.
// Callers hold c.mu. On any failure the mirrored state stays unchanged, and a
// write failure does not close the link: it may still be usable.
func (c *Controller) applyLocked(ctx context.Context, state color.GroupState) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Op: "throttle", Err: err}
		}
	}

	if !c.open {
		if err := c.transport.Open(c.device, c.baud); err != nil {
			return &TransportError{Op: "open", Err: err}
		}
		c.open = true
		log.Info().Str("device", c.device).Int("baud", c.baud).Msg("Serial link opened")
	}

	buf := c.profile.Encode(state)
	start := time.Now()
	err := c.transport.Write(buf)
	metrics.ObserveWrite(len(buf), time.Since(start), err)
	if err != nil {
		log.Error().Err(err).Msg("Frame transmission failed")
		return &TransportError{Op: "write", Err: err}
	}

	c.state = state
	log.Debug().Int("bytes", len(buf)).Strs("colors", state.HexColors()).Msg("Frame written")
	return nil
}

// Close releases the transport. Closing is lifecycle-driven (process
// shutdown); the controller never closes the link on its own.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	c.open = false
	return c.transport.Close()
}
