// cmd/coordinator/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tamzrod/battery-coordinator/internal/catalog"
	"github.com/tamzrod/battery-coordinator/internal/config"
	"github.com/tamzrod/battery-coordinator/internal/coordinator"
	"github.com/tamzrod/battery-coordinator/internal/link"
	"github.com/tamzrod/battery-coordinator/internal/metrics"
	"github.com/tamzrod/battery-coordinator/internal/pilot"
	"github.com/tamzrod/battery-coordinator/internal/poller"
	"github.com/tamzrod/battery-coordinator/internal/schedule"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if len(os.Args) < 2 {
		log.Fatal().Msg("usage: coordinator <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validation failed")
	}
	config.Normalize(cfg)

	c := cfg.Coordinator

	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		log.Fatal().Err(err).Str("level", c.Log.Level).Msg("invalid log level")
	}
	log = log.Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Schedule + register catalog
	// --------------------

	assignments, err := schedule.Assign(c.Devices)
	if err != nil {
		log.Fatal().Err(err).Msg("schedule failed")
	}

	opts := catalog.BatteryOptions{
		ReadSlaveID:            c.ReadSlaveID,
		WriteSlaveID:           c.WriteSlaveID,
		MaxChargePerBattery:    float64(c.Control.MaxChargePerBattery),
		MaxDischargePerBattery: float64(c.Control.MaxDischargePerBattery),
		BatteryCount:           len(c.Devices),
	}

	var defs []catalog.Definition
	for _, a := range assignments {
		defs = append(defs, catalog.Battery(a.DeviceID, a.Role == schedule.Master, opts)...)
	}

	cat, err := catalog.New(defs)
	if err != nil {
		log.Fatal().Err(err).Msg("register catalog invalid")
	}

	// --------------------
	// Build per-device pipelines
	// --------------------

	timeout := time.Duration(c.TimeoutMs) * time.Millisecond
	devices := make([]coordinator.Device, 0, len(assignments))

	for i, a := range assignments {
		devLog := log.With().Str("device_id", a.DeviceID).Logger()

		p, l, err := poller.Build(a, c.Devices[i], cat, timeout, devLog)
		if err != nil {
			log.Fatal().Err(err).Str("device_id", a.DeviceID).Msg("poller build failed")
		}

		devices = append(devices, coordinator.Device{
			ID:     a.DeviceID,
			Role:   a.Role,
			Link:   l,
			Runner: p,
		})
	}

	// --------------------
	// Metrics
	// --------------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m, err := metrics.New(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("metrics setup failed")
	}

	var srv *http.Server
	if c.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: c.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		log.Info().Str("listen", c.Metrics.Listen).Msg("metrics enabled")
	}

	// --------------------
	// Coordinator
	// --------------------

	co, err := coordinator.New(coordinator.Options{
		Catalog:  cat,
		Devices:  devices,
		Observer: m,
		Probe:    &link.DefaultProbe,
		Logger:   log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("coordinator setup failed")
	}

	if err := co.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("coordinator start failed")
	}
	log.Info().Int("devices", len(devices)).Int("registers", cat.Len()).Msg("coordinator started")

	// ---- control loop (optional) ----
	if c.Control.AutoControl {
		pl, err := pilot.New(pilot.Config{
			Interval:               time.Duration(c.Control.IntervalS) * time.Second,
			MinSOC:                 float64(*c.Control.MinSOC),
			SolarBalancing:         c.Control.SolarBalancing,
			PowerSensor:            c.Control.PowerSensor,
			PFSensor:               c.Control.PFSensor,
			PriorityDevices:        c.Control.PriorityDevices,
			MaxChargePerBattery:    opts.MaxChargePerBattery,
			MaxDischargePerBattery: opts.MaxDischargePerBattery,
			BatteryCount:           opts.BatteryCount,
			Logger:                 log,
		}, co)
		if err != nil {
			log.Fatal().Err(err).Msg("pilot setup failed")
		}
		go pl.Run(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	co.Stop()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
