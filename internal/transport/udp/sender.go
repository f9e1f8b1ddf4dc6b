package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	applog "wtsynth/internal/log"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("udp: sender closed")

// writeTimeout bounds a single datagram write so a wedged socket cannot
// stall the spectrum pump.
const writeTimeout = 50 * time.Millisecond

// UDPSender writes datagrams to a single target over a connected socket.
type UDPSender struct {
	mu     sync.Mutex
	conn   *net.UDPConn // nil once closed
	target *net.UDPAddr
	sent   uint64
}

// NewUDPSender connects to targetAddress ("host:port").
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve '%s': %w", targetAddress, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial '%s': %w", targetAddress, err)
	}

	applog.Infof("UDP: Sending spectrum packets to %s", addr)
	return &UDPSender{conn: conn, target: addr}, nil
}

// Target returns the resolved destination address.
func (s *UDPSender) Target() *net.UDPAddr { return s.target }

// Sent returns the number of datagrams written.
func (s *UDPSender) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Send writes packet as one datagram.
func (s *UDPSender) Send(packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("udp: set deadline: %w", err)
	}
	if _, err := s.conn.Write(packet); err != nil {
		return fmt.Errorf("udp: write %d bytes to %s: %w", len(packet), s.target, err)
	}
	s.sent++
	return nil
}

// Close releases the socket. Closing twice is a no-op.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	conn, sent := s.conn, s.sent
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	applog.Debugf("UDP: Closing socket to %s after %d packets", s.target, sent)
	return conn.Close()
}
