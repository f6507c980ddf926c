// internal/pilot/pilot.go
package pilot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/battery-coordinator/internal/catalog"
	cfg "github.com/tamzrod/battery-coordinator/internal/config"
	"github.com/tamzrod/battery-coordinator/internal/coordinator"
)

// PriorityThreshold is the draw in W above which a priority device pauses balancing.
const PriorityThreshold = 50.0

// Coordinator is what the pilot needs from the coordinator.
type Coordinator interface {
	Value(deviceID, name string) (float64, bool)
	Aggregate() coordinator.Aggregate
	WriteValue(ctx context.Context, name string, value float64) error
	WriteValues(ctx context.Context, writes ...coordinator.Write) error
}

type Config struct {
	Interval       time.Duration
	MinSOC         float64
	SolarBalancing bool

	// Sensor ids are "<device>/<register>".
	// The power sensor reads positive while feeding in.
	PowerSensor     string
	PFSensor        string
	PriorityDevices []string

	MaxChargePerBattery    float64
	MaxDischargePerBattery float64
	BatteryCount           int

	Logger zerolog.Logger
}

// Decision is the outcome of one control step.
// Positive power discharges, negative charges.
type Decision struct {
	Power       float64
	PowerFactor float64
	Sent        bool
	Manual      bool
}

// Pilot balances grid exchange by steering the master's nominal power.
type Pilot struct {
	cfg   Config
	coord Coordinator
	log   zerolog.Logger

	mu          sync.Mutex
	manual      bool
	manualPower float64
	last        Decision
}

var ErrNoSensor = errors.New("pilot: sensor value unavailable")

func New(c Config, coord Coordinator) (*Pilot, error) {
	if coord == nil {
		return nil, errors.New("pilot: coordinator required")
	}
	if c.Interval <= 0 {
		return nil, errors.New("pilot: interval must be > 0")
	}
	if c.PowerSensor == "" {
		return nil, errors.New("pilot: power sensor required")
	}
	if c.BatteryCount < 1 {
		c.BatteryCount = 1
	}
	return &Pilot{
		cfg:   c,
		coord: coord,
		log:   c.Logger.With().Str("component", "pilot").Logger(),
	}, nil
}

// Run steps the control loop on every tick until ctx is done.
func (p *Pilot) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d, err := p.Step(ctx)
			if err != nil {
				p.log.Warn().Err(err).Msg("pilot step failed")
				continue
			}
			p.log.Debug().
				Float64("power", d.Power).
				Float64("pf", d.PowerFactor).
				Bool("sent", d.Sent).
				Bool("manual", d.Manual).
				Msg("pilot step")
		}
	}
}

// Last returns the most recent decision.
func (p *Pilot) Last() Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Step runs one control iteration.
func (p *Pilot) Step(ctx context.Context) (Decision, error) {
	p.mu.Lock()
	manual, manualPower := p.manual, p.manualPower
	p.mu.Unlock()

	if manual {
		return p.stepManual(ctx, manualPower)
	}

	grid, ok := p.sensor(p.cfg.PowerSensor)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrNoSensor, p.cfg.PowerSensor)
	}

	pf := 1.0
	if p.cfg.PFSensor != "" {
		v, ok := p.sensor(p.cfg.PFSensor)
		if !ok {
			return Decision{}, fmt.Errorf("%w: %s", ErrNoSensor, p.cfg.PFSensor)
		}
		pf = math.Abs(v)
	}

	agg := p.coord.Aggregate()

	net := grid - agg.CombinedPower
	if priority := p.priorityDraw(); priority > PriorityThreshold {
		net = 0
	}

	target := p.clamp(-net)
	target = p.constrain(target, agg)

	d := Decision{Power: target, PowerFactor: pf}
	if p.cfg.SolarBalancing {
		if err := p.send(ctx, target, pf); err != nil {
			return d, err
		}
		d.Sent = true
	}

	p.remember(d)
	return d, nil
}

func (p *Pilot) stepManual(ctx context.Context, power float64) (Decision, error) {
	d := Decision{Power: power, PowerFactor: 1, Manual: true}

	constrained := p.constrain(power, p.coord.Aggregate())
	if constrained == power {
		p.remember(d)
		return d, nil
	}

	p.log.Info().Float64("from", power).Float64("to", constrained).Msg("manual power limited by state of charge")
	if err := p.send(ctx, constrained, 1); err != nil {
		return d, err
	}

	p.mu.Lock()
	p.manualPower = constrained
	p.mu.Unlock()

	d.Power = constrained
	d.Sent = true
	p.remember(d)
	return d, nil
}

// SetManualPower switches to manual mode and sends power at PF 1.
func (p *Pilot) SetManualPower(ctx context.Context, power float64) error {
	power = p.constrain(p.clamp(power), p.coord.Aggregate())
	if err := p.send(ctx, power, 1); err != nil {
		return err
	}

	p.mu.Lock()
	p.manual = true
	p.manualPower = power
	p.mu.Unlock()

	p.remember(Decision{Power: power, PowerFactor: 1, Sent: true, Manual: true})
	p.log.Info().Float64("power", power).Msg("manual power set")
	return nil
}

// ClearManual returns to automatic balancing.
func (p *Pilot) ClearManual() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manual = false
}

// SetChargeLimit divides an installation-wide limit across batteries.
func (p *Pilot) SetChargeLimit(ctx context.Context, total float64) error {
	return p.coord.WriteValue(ctx, catalog.MaxCharge, total/float64(p.cfg.BatteryCount))
}

// SetDischargeLimit divides an installation-wide limit across batteries.
func (p *Pilot) SetDischargeLimit(ctx context.Context, total float64) error {
	return p.coord.WriteValue(ctx, catalog.MaxDischarge, total/float64(p.cfg.BatteryCount))
}

// send writes power and power factor together in one request.
func (p *Pilot) send(ctx context.Context, power, pf float64) error {
	return p.coord.WriteValues(ctx,
		coordinator.Write{Name: catalog.NominalPower, Value: power},
		coordinator.Write{Name: catalog.NominalFactor, Value: pf},
	)
}

func (p *Pilot) clamp(power float64) float64 {
	n := float64(p.cfg.BatteryCount)
	lo := -n * p.cfg.MaxChargePerBattery
	hi := n * p.cfg.MaxDischargePerBattery
	return math.Max(lo, math.Min(hi, power))
}

// constrain stops discharge below the minimum SOC and charge at full.
// An installation with no SOC reading counts as empty.
func (p *Pilot) constrain(power float64, agg coordinator.Aggregate) float64 {
	if agg.CombinedSOC < p.cfg.MinSOC && power > 0 {
		return 0
	}
	if agg.CombinedSOC >= 100 && power < 0 {
		return 0
	}
	return power
}

func (p *Pilot) priorityDraw() float64 {
	var sum float64
	for _, id := range p.cfg.PriorityDevices {
		if v, ok := p.sensor(id); ok {
			sum += v
		}
	}
	return sum
}

func (p *Pilot) sensor(id string) (float64, bool) {
	dev, name, ok := cfg.SplitSensorID(id)
	if !ok {
		return 0, false
	}
	return p.coord.Value(dev, name)
}

func (p *Pilot) remember(d Decision) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = d
}
