// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/battery-coordinator/internal/catalog"
	"github.com/tamzrod/battery-coordinator/internal/link"
)

// Client abstracts the register reads the poller needs.
// The poller depends on geometry only.
type Client interface {
	ReadRegisters(ctx context.Context, address, count uint16, slaveID uint8) ([]uint16, error)
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	DeviceID    string
	Interval    time.Duration
	Definitions []catalog.Definition

	// Meter enables the auxiliary meter branch (master only).
	Meter bool

	// Batching limits. Zero MaxRegisters selects the default;
	// zero MaxGap batches adjacent definitions only.
	MaxRegisters uint16
	MaxGap       uint16

	Logger zerolog.Logger
}

// Poller is a clock-driven reader for one device.
type Poller struct {
	cfg    Config
	client Client
	log    zerolog.Logger

	registers []Range
	meter     []Range

	state atomic.Uint32
}

// New creates a poller with immutable config.
func New(cfg Config, client Client) (*Poller, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("poller: device id required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if client == nil {
		return nil, errors.New("poller: client required")
	}

	var regDefs, meterDefs []catalog.Definition
	for _, d := range cfg.Definitions {
		if d.Device != cfg.DeviceID {
			return nil, fmt.Errorf("poller: definition %q belongs to device %q", d.Name, d.Device)
		}
		switch {
		case !d.Polled():
		case d.Meter:
			meterDefs = append(meterDefs, d)
		default:
			regDefs = append(regDefs, d)
		}
	}
	if len(regDefs) == 0 {
		return nil, errors.New("poller: at least one polled register required")
	}

	p := &Poller{
		cfg:       cfg,
		client:    client,
		log:       cfg.Logger.With().Str("device_id", cfg.DeviceID).Logger(),
		registers: BuildRanges(regDefs, cfg.MaxRegisters, cfg.MaxGap),
	}
	if cfg.Meter {
		p.meter = BuildRanges(meterDefs, cfg.MaxRegisters, cfg.MaxGap)
	}
	return p, nil
}

// DeviceID identifies the polled device.
func (p *Poller) DeviceID() string {
	return p.cfg.DeviceID
}

// State is the current cycle state. Safe to call from any goroutine.
func (p *Poller) State() State {
	return State(p.state.Load())
}

func (p *Poller) setState(s State) {
	p.state.Store(uint32(s))
}

// PollOnce performs exactly one poll cycle.
// Register and meter branches run concurrently and never cancel each other;
// the merge waits for both.
func (p *Poller) PollOnce(ctx context.Context) PollResult {
	start := time.Now()
	p.setState(StatePolling)
	defer p.setState(StateIdle)

	var (
		regVals, meterVals map[string]float64
		regErr, meterErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		regVals, regErr = p.readBranch(gctx, p.registers)
		return nil
	})
	if len(p.meter) > 0 {
		g.Go(func() error {
			meterVals, meterErr = p.readBranch(gctx, p.meter)
			return nil
		})
	}
	_ = g.Wait()

	p.setState(StateMerging)

	res := PollResult{
		DeviceID:    p.cfg.DeviceID,
		At:          time.Now(),
		Duration:    time.Since(start),
		Values:      merge(regVals, meterVals),
		State:       StateOK,
		RegisterErr: regErr,
		MeterErr:    meterErr,
	}

	if res.Partial() {
		p.setState(StatePartialFailure)
		res.State = StatePartialFailure

		ev := p.log.Warn()
		if regErr != nil {
			ev = ev.AnErr("register_err", regErr)
		}
		if meterErr != nil {
			ev = ev.AnErr("meter_err", meterErr)
		}
		ev.Int("values", len(res.Values)).Msg("partial poll cycle")
	}

	return res
}

// readBranch reads every range; a failed range is recorded and skipped.
// A range the device rejects with an exception is read one definition at a
// time from then on.
func (p *Poller) readBranch(ctx context.Context, ranges []Range) (map[string]float64, error) {
	values := make(map[string]float64)
	var errs []error

	for i := range ranges {
		r := &ranges[i]
		if r.split {
			errs = append(errs, p.readEach(ctx, r.Defs, values)...)
			continue
		}

		regs, err := p.client.ReadRegisters(ctx, r.Address, r.Count, r.SlaveID)
		if err != nil {
			if len(r.Defs) > 1 && link.IsException(err) {
				r.split = true
				p.log.Warn().Err(err).
					Uint16("address", r.Address).
					Uint16("count", r.Count).
					Int("definitions", len(r.Defs)).
					Msg("range rejected, reading definitions one by one")
				errs = append(errs, p.readEach(ctx, r.Defs, values)...)
				continue
			}
			errs = append(errs, err)
			continue
		}

		errs = append(errs, decodeRange(*r, regs, values)...)
	}

	return values, errors.Join(errs...)
}

// readEach issues one read per definition.
func (p *Poller) readEach(ctx context.Context, defs []catalog.Definition, values map[string]float64) []error {
	var errs []error
	for _, d := range defs {
		regs, err := p.client.ReadRegisters(ctx, d.Address, d.Count, d.SlaveID)
		if err != nil {
			errs = append(errs, fmt.Errorf("poller: %q: %w", d.Name, err))
			continue
		}
		one := Range{SlaveID: d.SlaveID, Address: d.Address, Count: d.Count, Defs: []catalog.Definition{d}}
		errs = append(errs, decodeRange(one, regs, values)...)
	}
	return errs
}

func decodeRange(r Range, regs []uint16, values map[string]float64) []error {
	var errs []error
	for _, d := range r.Defs {
		off := int(d.Address - r.Address)
		end := off + int(d.Count)
		if end > len(regs) {
			errs = append(errs, fmt.Errorf("poller: %q: short read", d.Name))
			continue
		}
		v, err := d.Decode(regs[off:end])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values[d.Name] = v
	}
	return errs
}

// merge unions both branches; registers win on a name collision.
func merge(registers, meter map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(registers)+len(meter))
	for k, v := range meter {
		out[k] = v
	}
	for k, v := range registers {
		out[k] = v
	}
	return out
}
