// internal/link/link.go
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout = 5 * time.Second

	MaxAddress = 65535
	MaxCount   = 100
)

// Transport is one open connection to a device.
// Implementations need not be safe for concurrent use; Link never overlaps calls.
type Transport interface {
	ReadHoldingRegisters(slaveID uint8, address, quantity uint16) ([]uint16, error)
	WriteRegisters(slaveID uint8, address uint16, values []uint16) error
	Close() error
}

// Dialer opens a new Transport. ONE attempt per call.
type Dialer func(ctx context.Context) (Transport, error)

type Config struct {
	DeviceID string
	Timeout  time.Duration
	Dial     Dialer
	Logger   zerolog.Logger
}

type opKind uint8

const (
	opConnect opKind = iota
	opRead
	opWrite
)

type request struct {
	op      opKind
	slaveID uint8
	address uint16
	count   uint16
	values  []uint16
	reply   chan response
}

type response struct {
	regs []uint16
	err  error
}

// Link owns the connection to one device.
// Requests are served one at a time by a single worker, in the order callers block.
// A transport failure drops the connection; the next request redials.
type Link struct {
	cfg Config
	log zerolog.Logger

	reqs chan *request
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	// worker-owned
	transport Transport
	connID    string
}

// New validates the config and starts the worker. No connection is opened.
func New(cfg Config) (*Link, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("link: device id required")
	}
	if cfg.Dial == nil {
		return nil, errors.New("link: dialer required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	l := &Link{
		cfg:  cfg,
		log:  cfg.Logger.With().Str("device_id", cfg.DeviceID).Logger(),
		reqs: make(chan *request),
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.serve()

	return l, nil
}

// DeviceID identifies the device this link talks to.
func (l *Link) DeviceID() string {
	return l.cfg.DeviceID
}

// EnsureConnected opens a connection if none is live. Idempotent.
func (l *Link) EnsureConnected(ctx context.Context) error {
	_, err := l.submit(ctx, &request{op: opConnect})
	return err
}

// ReadRegisters reads count holding registers starting at address.
func (l *Link) ReadRegisters(ctx context.Context, address, count uint16, slaveID uint8) ([]uint16, error) {
	if err := checkBounds(address, count); err != nil {
		return nil, l.fail(ErrRead, address, err)
	}
	return l.submit(ctx, &request{op: opRead, address: address, count: count, slaveID: slaveID})
}

// WriteRegister writes a single register value.
func (l *Link) WriteRegister(ctx context.Context, address, value uint16, slaveID uint8) error {
	return l.WriteRegisters(ctx, address, []uint16{value}, slaveID)
}

// WriteRegisters writes consecutive register values in one request.
func (l *Link) WriteRegisters(ctx context.Context, address uint16, values []uint16, slaveID uint8) error {
	if err := checkBounds(address, uint16(min(len(values), MaxCount+1))); err != nil {
		return l.fail(ErrWrite, address, err)
	}
	regs := append([]uint16(nil), values...)
	_, err := l.submit(ctx, &request{op: opWrite, address: address, values: regs, slaveID: slaveID})
	return err
}

// Close stops the worker and closes any open connection.
func (l *Link) Close() error {
	l.once.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}

func (l *Link) submit(ctx context.Context, r *request) ([]uint16, error) {
	r.reply = make(chan response, 1)

	select {
	case l.reqs <- r:
	case <-l.done:
		return nil, l.fail(r.kind(), r.address, ErrClosed)
	case <-ctx.Done():
		return nil, l.fail(r.kind(), r.address, ctx.Err())
	}

	// The worker always replies to an accepted request.
	res := <-r.reply
	return res.regs, res.err
}

func (l *Link) serve() {
	defer l.wg.Done()
	defer l.disconnect("link closed")

	for {
		select {
		case <-l.done:
			return
		case r := <-l.reqs:
			regs, err := l.handle(r)
			r.reply <- response{regs: regs, err: err}
		}
	}
}

func (l *Link) handle(r *request) ([]uint16, error) {
	if err := l.connect(); err != nil {
		if r.op == opConnect {
			return nil, err
		}
		return nil, l.fail(r.kind(), r.address, err)
	}

	switch r.op {
	case opRead:
		var regs []uint16
		err := l.call(func(t Transport) error {
			var err error
			regs, err = t.ReadHoldingRegisters(r.slaveID, r.address, r.count)
			return err
		})
		if err != nil {
			return nil, l.fail(ErrRead, r.address, err)
		}
		if len(regs) != int(r.count) {
			return nil, l.fail(ErrRead, r.address, errors.New("short response"))
		}
		return regs, nil

	case opWrite:
		err := l.call(func(t Transport) error {
			return t.WriteRegisters(r.slaveID, r.address, r.values)
		})
		if err != nil {
			return nil, l.fail(ErrWrite, r.address, err)
		}
		return nil, nil
	}

	return nil, nil
}

// connect is a no-op while a transport is live.
func (l *Link) connect() error {
	if l.transport != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.Timeout)
	defer cancel()

	t, err := l.cfg.Dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			err = ErrTimeout
		}
		l.log.Warn().Err(redact(err)).Msg("connect failed")
		return &Error{Kind: ErrConnection, DeviceID: l.cfg.DeviceID, Err: redact(err)}
	}

	l.transport = t
	l.connID = uuid.New().String()
	l.log.Info().Str("conn_id", l.connID).Msg("connected")
	return nil
}

// call runs fn against the live transport under the per-call timeout.
// Any failure other than a protocol exception drops the connection.
func (l *Link) call(fn func(Transport) error) error {
	t := l.transport
	errc := make(chan error, 1)
	go func() { errc <- fn(t) }()

	timer := time.NewTimer(l.cfg.Timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-errc:
	case <-timer.C:
		err = ErrTimeout
	}

	if err != nil && !IsException(err) {
		l.disconnect(redact(err).Error())
	}
	return err
}

func (l *Link) disconnect(reason string) {
	if l.transport == nil {
		return
	}
	if err := l.transport.Close(); err != nil {
		l.log.Debug().Err(redact(err)).Str("conn_id", l.connID).Msg("close failed")
	}
	l.log.Info().Str("conn_id", l.connID).Str("reason", reason).Msg("disconnected")
	l.transport = nil
	l.connID = ""
}

func (l *Link) fail(kind error, address uint16, err error) error {
	var le *Error
	if errors.As(err, &le) {
		// connection failures surface under the caller's kind
		return &Error{Kind: kind, DeviceID: l.cfg.DeviceID, Address: address, Err: fmt.Errorf("%w: %w", le.Kind, le.Err)}
	}
	return &Error{Kind: kind, DeviceID: l.cfg.DeviceID, Address: address, Err: redact(err)}
}

func (r *request) kind() error {
	switch r.op {
	case opRead:
		return ErrRead
	case opWrite:
		return ErrWrite
	default:
		return ErrConnection
	}
}

func checkBounds(address, count uint16) error {
	if count < 1 || count > MaxCount {
		return ErrBounds
	}
	if int(address)+int(count)-1 > MaxAddress {
		return ErrBounds
	}
	return nil
}
