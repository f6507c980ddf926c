// internal/link/modbus/client_test.go
package modbus

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbrandon/mbserver"

	"github.com/tamzrod/battery-coordinator/internal/link"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startServer(t *testing.T, setup func(s *mbserver.Server)) string {
	t.Helper()
	s := mbserver.NewServer()
	if setup != nil {
		setup(s)
	}
	addr := freeAddr(t)
	require.NoError(t, s.ListenTCP(addr))
	t.Cleanup(s.Close)
	return addr
}

func TestClient_ReadHoldingRegisters(t *testing.T) {
	addr := startServer(t, func(s *mbserver.Server) {
		s.HoldingRegisters[13030] = 720
		s.HoldingRegisters[13031] = 11
	})

	c, err := Dial(context.Background(), Config{Endpoint: addr, Timeout: time.Second})
	require.NoError(t, err)
	defer c.Close()

	regs, err := c.ReadHoldingRegisters(40, 13030, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{720, 11}, regs)
}

func TestClient_WriteThenRead(t *testing.T) {
	addr := startServer(t, nil)

	c, err := Dial(context.Background(), Config{Endpoint: addr, Timeout: time.Second})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteRegisters(64, 41, []uint16{0xFA24, 9500}))

	regs, err := c.ReadHoldingRegisters(64, 41, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0xFA24, 9500}, regs)
}

func TestClient_ExceptionTranslated(t *testing.T) {
	addr := startServer(t, func(s *mbserver.Server) {
		s.RegisterFunctionHandler(3, func(*mbserver.Server, mbserver.Framer) ([]byte, *mbserver.Exception) {
			return []byte{}, &mbserver.SlaveDeviceFailure
		})
	})

	c, err := Dial(context.Background(), Config{Endpoint: addr, Timeout: time.Second})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ReadHoldingRegisters(40, 1, 1)
	require.Error(t, err)

	var ex *link.ExceptionError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, byte(mbserver.SlaveDeviceFailure), ex.Code)
}

func TestDial_Refused(t *testing.T) {
	_, err := Dial(context.Background(), Config{Endpoint: freeAddr(t), Timeout: time.Second})
	assert.Error(t, err)
}

func TestDial_EndpointRequired(t *testing.T) {
	_, err := Dial(context.Background(), Config{})
	assert.Error(t, err)
}

// Link over a real Modbus TCP server.
func TestLink_OverServer(t *testing.T) {
	addr := startServer(t, func(s *mbserver.Server) {
		s.HoldingRegisters[13021] = 0xFFFF
		s.HoldingRegisters[13022] = 0xFC18
	})

	l, err := link.New(link.Config{
		DeviceID: "battery_a",
		Timeout:  time.Second,
		Dial:     Dialer(Config{Endpoint: addr, Timeout: time.Second}),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Probe(context.Background(), link.DefaultProbe))

	regs, err := l.ReadRegisters(context.Background(), 13021, 2, 40)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0xFFFF, 0xFC18}, regs)

	require.NoError(t, l.WriteRegister(context.Background(), 44, 4000, 64))

	regs, err = l.ReadRegisters(context.Background(), 44, 1, 64)
	require.NoError(t, err)
	assert.Equal(t, []uint16{4000}, regs)
}
