// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	applog "wtsynth/internal/log"
	"wtsynth/internal/metrics"
	"wtsynth/internal/transport"
)

// Largest UDP payload over IPv4.
const maxPacketSize = 65507

var ErrPacketTooLarge = errors.New("spectrum packet exceeds UDP payload limit")

// PacketSender is the datagram sink; UDPSender implements it.
type PacketSender interface {
	Send(data []byte) error
	Close() error
}

// Publisher packs spectrum frames into the binary format below and sends
// them over UDP. It implements transport.Transport.
type Publisher struct {
	sender PacketSender
	mu     sync.Mutex // Serializes Send; the packet buffer is reused.

	// Pre-allocated buffer to reduce allocations in the hot path.
	packet []byte
}

// NewPublisher wraps sender. It requires a valid sender.
func NewPublisher(sender PacketSender) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	return &Publisher{
		sender: sender,
		packet: make([]byte, 0, 4096),
	}, nil
}

/*
UDP Packet Structure (BigEndian) - See visual diagram below

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Magnitude Count   | uint16         | 2            | Number of floats (N)    |
| Magnitudes        | []float32      | N * 4        | Normalized magnitudes   |
| Band Count        | uint16         | 2            | Number of floats (M)    |
| Bands             | []float32      | M * 4        | Band peak levels        |
+-----------------------------------------------------------------------------+

Visual Layout:

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|<-- 2 Bytes -->|<-- M * 4 Bytes -->|
+-------------------+-----------------------+---------------+-------------------------+---------------+-------------------+
|  Sequence Number  |       Timestamp       |   Magnitude   |       Magnitudes        |  Band Count   |       Bands       |
|      (uint32)     |        (int64)        |     Count     |      (N * float32)      |   (uint16)    |   (M * float32)   |
|                   |                       |     (uint16)  |                         |               |                   |
+-------------------+-----------------------+---------------+-------------------------+---------------+-------------------+
*/

// AppendPacket appends the wire form of frame to dst.
func AppendPacket(dst []byte, frame *transport.SpectrumFrame) ([]byte, error) {
	if len(frame.Magnitudes) > math.MaxUint16 || len(frame.Bands) > math.MaxUint16 {
		return dst, ErrPacketTooLarge
	}

	dst = binary.BigEndian.AppendUint32(dst, uint32(frame.Sequence))
	dst = binary.BigEndian.AppendUint64(dst, uint64(frame.Timestamp))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(frame.Magnitudes)))
	for _, m := range frame.Magnitudes {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(m))
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(frame.Bands)))
	for _, b := range frame.Bands {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(b))
	}
	return dst, nil
}

// Send packs and sends one frame. Accepts *transport.SpectrumFrame or a
// bare []float32 magnitude slice.
func (p *Publisher) Send(data any) error {
	var frame *transport.SpectrumFrame
	switch v := data.(type) {
	case *transport.SpectrumFrame:
		frame = v
	case []float32:
		frame = &transport.SpectrumFrame{Magnitudes: v}
	default:
		return fmt.Errorf("UDPPublisher: unsupported payload %T", data)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	packet, err := AppendPacket(p.packet[:0], frame)
	if err == nil && len(packet) > maxPacketSize {
		err = fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(packet))
	}
	p.packet = packet
	if err != nil {
		metrics.SpectrumSendErrorsTotal.WithLabelValues("udp").Inc()
		return err
	}

	if err := p.sender.Send(packet); err != nil {
		metrics.SpectrumSendErrorsTotal.WithLabelValues("udp").Inc()
		return err
	}

	metrics.SpectrumFramesTotal.WithLabelValues("udp").Inc()
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", frame.Sequence, len(packet))
	return nil
}

// Close closes the underlying sender.
func (p *Publisher) Close() error {
	applog.Debugf("UDPPublisher: Close called")
	return p.sender.Close()
}

// Ensure Publisher satisfies the transport interface at compile time.
var _ transport.Transport = (*Publisher)(nil)
