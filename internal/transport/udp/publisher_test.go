// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"wtsynth/internal/transport"
)

type captureSender struct {
	packets [][]byte
	err     error
	closed  bool
}

func (c *captureSender) Send(data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.packets = append(c.packets, append([]byte(nil), data...))
	return nil
}

func (c *captureSender) Close() error {
	c.closed = true
	return nil
}

type decodedPacket struct {
	seq        uint32
	ts         int64
	magnitudes []float32
	bands      []float32
}

func decodePacket(t *testing.T, b []byte) decodedPacket {
	t.Helper()
	var p decodedPacket
	p.seq = binary.BigEndian.Uint32(b[0:])
	p.ts = int64(binary.BigEndian.Uint64(b[4:]))
	n := int(binary.BigEndian.Uint16(b[12:]))
	off := 14
	for range n {
		p.magnitudes = append(p.magnitudes, math.Float32frombits(binary.BigEndian.Uint32(b[off:])))
		off += 4
	}
	m := int(binary.BigEndian.Uint16(b[off:]))
	off += 2
	for range m {
		p.bands = append(p.bands, math.Float32frombits(binary.BigEndian.Uint32(b[off:])))
		off += 4
	}
	if off != len(b) {
		t.Fatalf("packet has %d trailing bytes", len(b)-off)
	}
	return p
}

func TestNewPublisher_NilSender(t *testing.T) {
	if _, err := NewPublisher(nil); err == nil {
		t.Error("expected error for nil sender")
	}
}

func TestPublisherPacketLayout(t *testing.T) {
	sender := &captureSender{}
	p, err := NewPublisher(sender)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	frame := &transport.SpectrumFrame{
		Sequence:   42,
		Timestamp:  1_700_000_000_000_000_000,
		Magnitudes: []float32{0, 0.25, 1},
		Bands:      []float32{0.5, 0.75},
	}
	if err := p.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(sender.packets))
	}

	pkt := sender.packets[0]
	if want := 4 + 8 + 2 + 3*4 + 2 + 2*4; len(pkt) != want {
		t.Fatalf("expected %d bytes, got %d", want, len(pkt))
	}
	got := decodePacket(t, pkt)
	if got.seq != 42 || got.ts != frame.Timestamp {
		t.Errorf("unexpected header seq=%d ts=%d", got.seq, got.ts)
	}
	if len(got.magnitudes) != 3 || got.magnitudes[1] != 0.25 || got.magnitudes[2] != 1 {
		t.Errorf("unexpected magnitudes %v", got.magnitudes)
	}
	if len(got.bands) != 2 || got.bands[1] != 0.75 {
		t.Errorf("unexpected bands %v", got.bands)
	}
}

func TestPublisherBareMagnitudes(t *testing.T) {
	sender := &captureSender{}
	p, _ := NewPublisher(sender)

	if err := p.Send([]float32{0.5}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := decodePacket(t, sender.packets[0])
	if len(got.magnitudes) != 1 || len(got.bands) != 0 {
		t.Errorf("unexpected packet %+v", got)
	}
}

func TestPublisherErrors(t *testing.T) {
	t.Run("Unsupported payload", func(t *testing.T) {
		p, _ := NewPublisher(&captureSender{})
		if err := p.Send("text"); err == nil {
			t.Error("expected error for unsupported payload")
		}
	})

	t.Run("Too large", func(t *testing.T) {
		sender := &captureSender{}
		p, _ := NewPublisher(sender)
		frame := &transport.SpectrumFrame{Magnitudes: make([]float32, 20000)}
		if err := p.Send(frame); !errors.Is(err, ErrPacketTooLarge) {
			t.Errorf("expected ErrPacketTooLarge, got %v", err)
		}
		frame = &transport.SpectrumFrame{Magnitudes: make([]float32, math.MaxUint16+1)}
		if err := p.Send(frame); !errors.Is(err, ErrPacketTooLarge) {
			t.Errorf("expected ErrPacketTooLarge for count overflow, got %v", err)
		}
		if len(sender.packets) != 0 {
			t.Error("oversized frames must not be sent")
		}
	})

	t.Run("Sender failure", func(t *testing.T) {
		sender := &captureSender{err: errors.New("network unreachable")}
		p, _ := NewPublisher(sender)
		if err := p.Send([]float32{1}); err == nil {
			t.Error("expected sender error")
		}
	})

	t.Run("Close", func(t *testing.T) {
		sender := &captureSender{}
		p, _ := NewPublisher(sender)
		if err := p.Close(); err != nil || !sender.closed {
			t.Errorf("Close should close the sender (err=%v)", err)
		}
	})
}

func TestUDPSenderLoopback(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Skipf("UDP loopback unavailable: %v", err)
	}
	defer conn.Close()

	sender, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewUDPSender: %v", err)
	}
	p, err := NewPublisher(sender)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	frame := &transport.SpectrumFrame{Sequence: 3, Magnitudes: []float32{0.1, 0.2}}
	if err := p.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 2048)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	got := decodePacket(t, buf[:n])
	if got.seq != 3 || len(got.magnitudes) != 2 {
		t.Errorf("unexpected packet %+v", got)
	}

	if n := sender.Sent(); n != 1 {
		t.Errorf("Sent = %d, want 1", n)
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := sender.Send([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if err := sender.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNewUDPSender_BadAddress(t *testing.T) {
	if _, err := NewUDPSender("not an address"); err == nil {
		t.Error("expected resolve error")
	}
}
