package utils

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// CANReader blocks in ReadFrame until a frame arrives. Close unblocks a
// pending read.
type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

// SocketCAN reads and writes one interface over a single socket, so
// frames we transmit are not looped back to our own reader.
type SocketCAN struct {
	iface string
	conn  net.Conn
	tx    *socketcan.Transmitter
	recv  *socketcan.Receiver

	closeOnce sync.Once
	closeErr  error
}

var (
	_ CANWriter = (*SocketCAN)(nil)
	_ CANReader = (*SocketCAN)(nil)
)

func NewSocketCAN(ctx context.Context, iface string) (*SocketCAN, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCAN{
		iface: iface,
		conn:  conn,
		tx:    socketcan.NewTransmitter(conn),
		recv:  socketcan.NewReceiver(conn),
	}, nil
}

func (s *SocketCAN) Interface() string {
	return s.iface
}

func (s *SocketCAN) WriteFrame(ctx context.Context, frame can.Frame) error {
	return s.tx.TransmitFrame(ctx, frame)
}

// ReadFrame returns the next data frame. Remote and error frames are skipped.
func (s *SocketCAN) ReadFrame(ctx context.Context) (can.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return can.Frame{}, err
		}
		if !s.recv.Receive() {
			if err := ctx.Err(); err != nil {
				return can.Frame{}, err
			}
			if err := s.recv.Err(); err != nil {
				return can.Frame{}, fmt.Errorf("socketcan receive %s: %w", s.iface, err)
			}
			return can.Frame{}, io.EOF
		}
		if s.recv.HasErrorFrame() {
			continue
		}
		f := s.recv.Frame()
		if f.IsRemote {
			continue
		}
		return f, nil
	}
}

func (s *SocketCAN) Close() error {
	s.closeOnce.Do(func() {
		if s.conn != nil {
			s.closeErr = s.conn.Close()
		}
	})
	return s.closeErr
}
