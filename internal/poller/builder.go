// internal/poller/builder.go
package poller

import (
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/battery-coordinator/internal/catalog"
	cfg "github.com/tamzrod/battery-coordinator/internal/config"
	"github.com/tamzrod/battery-coordinator/internal/link"
	lmodbus "github.com/tamzrod/battery-coordinator/internal/link/modbus"
	"github.com/tamzrod/battery-coordinator/internal/schedule"
)

// Build constructs a device's Link and Poller and wires connection lifecycle.
// The link dials lazily on first use and redials after a transport failure.
// Nothing connects here.
func Build(
	a schedule.Assignment,
	d cfg.DeviceConfig,
	cat *catalog.Catalog,
	timeout time.Duration,
	logger zerolog.Logger,
) (*Poller, *link.Link, error) {
	l, err := link.New(link.Config{
		DeviceID: d.ID,
		Timeout:  timeout,
		Dial: lmodbus.Dialer(lmodbus.Config{
			Endpoint: net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
			Timeout:  timeout,
		}),
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}

	p, err := New(
		Config{
			DeviceID:    a.DeviceID,
			Interval:    a.Interval,
			Definitions: cat.DefinitionsFor(a.DeviceID),
			Meter:       a.Meter,
			Logger:      logger,
		},
		l,
	)
	if err != nil {
		_ = l.Close()
		return nil, nil, err
	}

	return p, l, nil
}
