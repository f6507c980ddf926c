// internal/link/modbus/client.go
package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/battery-coordinator/internal/link"
)

// Client is a single TCP connection to one battery.
// It serializes requests because it mutates SlaveId per request.
type Client struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Dial opens the connection, giving up when ctx is done.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("link modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	// keep the connection across slow poll intervals
	h.IdleTimeout = 0

	errc := make(chan error, 1)
	go func() { errc <- h.Connect() }()

	select {
	case err := <-errc:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		go func() {
			if <-errc == nil {
				_ = h.Close()
			}
		}()
		return nil, ctx.Err()
	}

	return &Client{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

// Dialer adapts Dial to the link's factory contract.
func Dialer(cfg Config) link.Dialer {
	return func(ctx context.Context) (link.Transport, error) {
		return Dial(ctx, cfg)
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

func (c *Client) ReadHoldingRegisters(slaveID uint8, addr, qty uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = slaveID

	raw, err := c.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, translate(err)
	}
	return unpackRegisters(raw, qty)
}

func (c *Client) WriteRegisters(slaveID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = slaveID

	qty := uint16(len(regs))
	payload := packRegisters(regs)

	_, err := c.client.WriteMultipleRegisters(addr, qty, payload)
	return translate(err)
}

func translate(err error) error {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return &link.ExceptionError{Function: mbErr.FunctionCode, Code: mbErr.ExceptionCode}
	}
	return err
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackRegisters(raw []byte, qty uint16) ([]uint16, error) {
	if len(raw) != int(qty)*2 {
		return nil, fmt.Errorf("link modbus: expected %d bytes, got %d", int(qty)*2, len(raw))
	}
	out := make([]uint16, qty)
	for i := range out {
		out[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	return out, nil
}
