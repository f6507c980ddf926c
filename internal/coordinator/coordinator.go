// internal/coordinator/coordinator.go
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/battery-coordinator/internal/catalog"
	"github.com/tamzrod/battery-coordinator/internal/link"
	"github.com/tamzrod/battery-coordinator/internal/poller"
	"github.com/tamzrod/battery-coordinator/internal/schedule"
	"github.com/tamzrod/battery-coordinator/internal/status"
)

// Link is the write side of a device connection.
type Link interface {
	WriteRegisters(ctx context.Context, address uint16, values []uint16, slaveID uint8) error
	Close() error
}

// prober is implemented by links that support a startup reachability check.
type prober interface {
	Probe(ctx context.Context, pc link.ProbeConfig) error
}

// Runner produces poll results until ctx is done.
type Runner interface {
	Run(ctx context.Context, out chan<- poller.PollResult)
}

// Observer receives cycle, write and health events. Metrics implements it.
type Observer interface {
	ObserveCycle(res poller.PollResult)
	ObserveWrite(device, register string, value float64, err error)
	SetHealth(device string, health uint16)
}

// Device is one configured device with its runner and link.
type Device struct {
	ID     string
	Role   schedule.Role
	Link   Link
	Runner Runner
}

type Options struct {
	Catalog *catalog.Catalog
	Devices []Device

	// Observer may be nil.
	Observer Observer

	// Probe, when set, runs a reachability check per device before its first cycle.
	// A failed probe is logged; the runner starts regardless.
	Probe *link.ProbeConfig

	Logger zerolog.Logger
}

type device struct {
	Device

	snap   atomic.Pointer[Snapshot]
	mu     sync.Mutex // serialises snapshot writers
	health *status.Tracker
	log    zerolog.Logger

	// last written write-only values, guarded by mu; never read back by polls
	written map[string]float64
}

// Coordinator owns every device snapshot and the lifecycle of every runner.
type Coordinator struct {
	catalog  *catalog.Catalog
	order    []string
	devices  map[string]*device
	observer Observer
	probe    *link.ProbeConfig
	log      zerolog.Logger

	subs subscribers

	started atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	stop    sync.Once
}

// New validates the device set against the catalog. Nothing starts here.
func New(opts Options) (*Coordinator, error) {
	if opts.Catalog == nil {
		return nil, errors.New("coordinator: catalog required")
	}
	if len(opts.Devices) == 0 {
		return nil, errors.New("coordinator: at least one device required")
	}

	c := &Coordinator{
		catalog:  opts.Catalog,
		devices:  make(map[string]*device, len(opts.Devices)),
		observer: opts.Observer,
		probe:    opts.Probe,
		log:      opts.Logger.With().Str("component", "coordinator").Logger(),
	}
	c.subs.init()

	for _, d := range opts.Devices {
		if d.ID == "" {
			return nil, errors.New("coordinator: device id required")
		}
		if _, dup := c.devices[d.ID]; dup {
			return nil, fmt.Errorf("coordinator: duplicate device %q", d.ID)
		}
		if d.Link == nil || d.Runner == nil {
			return nil, fmt.Errorf("coordinator: device %q: link and runner required", d.ID)
		}

		dev := &device{
			Device:  d,
			health:  status.NewTracker(),
			log:     opts.Logger.With().Str("device_id", d.ID).Logger(),
			written: make(map[string]float64),
		}
		dev.snap.Store(&Snapshot{})

		c.devices[d.ID] = dev
		c.order = append(c.order, d.ID)
	}

	for _, id := range opts.Catalog.Devices() {
		if _, ok := c.devices[id]; !ok {
			return nil, fmt.Errorf("coordinator: catalog references unconfigured device %q", id)
		}
	}

	return c, nil
}

// Devices lists device ids in configuration order.
func (c *Coordinator) Devices() []string {
	return append([]string(nil), c.order...)
}

// Master returns the master device id, if any.
func (c *Coordinator) Master() (string, bool) {
	for _, id := range c.order {
		if c.devices[id].Role == schedule.Master {
			return id, true
		}
	}
	return "", false
}

// LatestSnapshot returns the most recent committed snapshot. Never blocks.
// Before the first committed cycle it returns an empty snapshot.
func (c *Coordinator) LatestSnapshot(deviceID string) (Snapshot, error) {
	d, ok := c.devices[deviceID]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownDevice, deviceID)
	}
	return *d.snap.Load(), nil
}

// Value reads one value from a device's latest snapshot.
func (c *Coordinator) Value(deviceID, name string) (float64, bool) {
	snap, err := c.LatestSnapshot(deviceID)
	if err != nil {
		return 0, false
	}
	return snap.Value(name)
}

// Health returns the device's health state.
func (c *Coordinator) Health(deviceID string) (status.Snapshot, error) {
	d, ok := c.devices[deviceID]
	if !ok {
		return status.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownDevice, deviceID)
	}
	return d.health.Snapshot(), nil
}

// Write is one named value for WriteValues.
type Write struct {
	Name  string
	Value float64
}

// WriteValue validates and writes one register, then patches the owning
// device's snapshot. Transport errors are returned unchanged; there is no retry.
func (c *Coordinator) WriteValue(ctx context.Context, name string, value float64) error {
	return c.WriteValues(ctx, Write{Name: name, Value: value})
}

// WriteValues writes consecutive registers of one device in a single request.
// Every value is validated before anything is sent; the writes must be given
// in address order with no gaps and share a slave id.
func (c *Coordinator) WriteValues(ctx context.Context, writes ...Write) error {
	if len(writes) == 0 {
		return nil
	}

	defs := make([]catalog.Definition, 0, len(writes))
	var words []uint16

	for i, w := range writes {
		def, err := c.catalog.Definition(w.Name)
		if err != nil {
			return fmt.Errorf("%w: %q: %w", ErrUnknownRegister, w.Name, err)
		}
		if !def.Writable {
			return fmt.Errorf("%w: %q", ErrNotWritable, w.Name)
		}
		if i > 0 {
			prev := defs[i-1]
			if def.Device != prev.Device || def.SlaveID != prev.SlaveID ||
				int(def.Address) != int(prev.Address)+int(prev.Count) {
				return fmt.Errorf("%w: %q after %q", ErrNotContiguous, w.Name, prev.Name)
			}
		}

		encoded, err := def.Encode(w.Value)
		if err != nil {
			c.observe(def.Device, def.Name, w.Value, err)
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		defs = append(defs, def)
		words = append(words, encoded...)
	}

	first := defs[0]
	d := c.devices[first.Device]

	err := d.Link.WriteRegisters(ctx, first.Address, words, first.SlaveID)
	for i, def := range defs {
		c.observe(def.Device, def.Name, writes[i].Value, err)
	}
	if err != nil {
		d.log.Warn().Err(err).Str("register", first.Name).Int("registers", len(words)).Msg("write failed")
		return err
	}

	d.mu.Lock()
	next := d.snap.Load()
	for i, def := range defs {
		next = next.with(def.Name, writes[i].Value)
		if def.WriteOnly {
			d.written[def.Name] = writes[i].Value
		}
	}
	d.snap.Store(next)
	d.mu.Unlock()

	d.log.Debug().Str("register", first.Name).Int("values", len(defs)).Msg("write applied")
	c.subs.publish(Update{DeviceID: d.ID, Snapshot: *next})
	return nil
}

// Start launches one runner per device. It is the only entry point that starts work.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.group, ctx = errgroup.WithContext(ctx)

	for _, id := range c.order {
		d := c.devices[id]
		out := make(chan poller.PollResult)

		c.group.Go(func() error {
			c.probeDevice(ctx, d)
			d.Runner.Run(ctx, out)
			return nil
		})
		c.group.Go(func() error {
			c.orchestrate(ctx, d, out)
			return nil
		})
	}

	c.log.Info().Int("devices", len(c.order)).Msg("started")
	return nil
}

// Stop halts every runner, closes every link and ends all subscriptions.
// Safe to call more than once, and without Start.
func (c *Coordinator) Stop() {
	c.stop.Do(func() {
		if c.cancel != nil {
			c.cancel()
			_ = c.group.Wait()
		}
		for _, id := range c.order {
			d := c.devices[id]
			if err := d.Link.Close(); err != nil {
				d.log.Warn().Err(err).Msg("link close failed")
			}
			d.health.Disable()
			c.setHealth(d)
		}
		c.subs.closeAll()
		c.log.Info().Msg("stopped")
	})
}

func (c *Coordinator) probeDevice(ctx context.Context, d *device) {
	if c.probe == nil {
		return
	}
	p, ok := d.Link.(prober)
	if !ok {
		return
	}
	if err := p.Probe(ctx, *c.probe); err != nil {
		d.log.Warn().Err(err).Msg("device unreachable at startup, polling anyway")
	}
}

// orchestrate owns one device's commit path and its 1Hz health clock.
func (c *Coordinator) orchestrate(ctx context.Context, d *device, out <-chan poller.PollResult) {
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-out:
			c.commit(d, res)

		case <-secTicker.C:
			if _, changed := d.health.Tick(); changed {
				c.setHealth(d)
			}
		}
	}
}

// commit replaces the device snapshot with a cycle's merged values plus the
// last written write-only values. A cycle that read nothing leaves the
// previous snapshot in place.
func (c *Coordinator) commit(d *device, res poller.PollResult) {
	if c.observer != nil {
		c.observer.ObserveCycle(res)
	}

	prev := d.health.Snapshot().Health
	snap, changed := d.health.Observe(res.Err(), res.Committed())
	if changed {
		c.setHealth(d)
		if snap.Health != prev {
			d.log.Info().
				Str("from", status.HealthName(prev)).
				Str("to", status.HealthName(snap.Health)).
				Msg("health changed")
		}
	}

	if !res.Committed() {
		d.log.Warn().Err(res.Err()).Msg("poll cycle read nothing, keeping last snapshot")
		return
	}

	d.mu.Lock()
	values := maps.Clone(res.Values)
	maps.Copy(values, d.written)
	next := &Snapshot{
		Values:    values,
		UpdatedAt: res.At,
		Partial:   res.Partial(),
	}
	d.snap.Store(next)
	d.mu.Unlock()

	c.subs.publish(Update{DeviceID: d.ID, Snapshot: *next})
}

func (c *Coordinator) observe(device, register string, value float64, err error) {
	if c.observer != nil {
		c.observer.ObserveWrite(device, register, value, err)
	}
}

func (c *Coordinator) setHealth(d *device) {
	if c.observer != nil {
		c.observer.SetHealth(d.ID, d.health.Snapshot().Health)
	}
}
