// Package protocol defines the datagram wire format and the command and
// response line grammar exchanged over it.
//
// Packet layout (big-endian):
//
//	Seq      uint32
//	Ack      uint32
//	Flags    uint8
//	Len      uint16
//	Checksum uint32  (CRC-32/IEEE over header with this field zeroed, then payload)
//	Payload  [Len]byte
package protocol

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	FlagData uint8 = 1 << iota
	FlagAck
	FlagSyn
	FlagFin

	// FlagMore marks a DATA packet as a non-final fragment of a message
	// larger than MaxPayload. The receiver buffers fragments until a DATA
	// packet without it arrives.
	FlagMore
)

const (
	// HeaderSize is the fixed packet header length in bytes.
	HeaderSize = 15

	// MaxPayload bounds a single DATA payload so a packet fits comfortably
	// in one datagram.
	MaxPayload = 1024
)

var (
	ErrShortPacket    = errors.New("packet too short")
	ErrPayloadTooBig  = errors.New("payload exceeds maximum size")
	ErrLengthMismatch = errors.New("payload length mismatch")
	ErrChecksum       = errors.New("checksum mismatch")
)

// Packet is the wire unit of the reliable datagram transport.
type Packet struct {
	Seq     uint32
	Ack     uint32
	Flags   uint8
	Payload []byte
}

// Has reports whether all bits in flag are set.
func (p Packet) Has(flag uint8) bool {
	return p.Flags&flag == flag
}

// Encode serializes the packet, computing the checksum field.
func (p Packet) Encode() ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, ErrPayloadTooBig
	}
	buf := make([]byte, HeaderSize+len(p.Payload))
	binary.BigEndian.PutUint32(buf[0:4], p.Seq)
	binary.BigEndian.PutUint32(buf[4:8], p.Ack)
	buf[8] = p.Flags
	binary.BigEndian.PutUint16(buf[9:11], uint16(len(p.Payload)))
	copy(buf[HeaderSize:], p.Payload)

	// Checksum over the full packet with the checksum field still zero.
	sum := crc32.ChecksumIEEE(buf)
	binary.BigEndian.PutUint32(buf[11:15], sum)
	return buf, nil
}

// Decode parses and verifies a received datagram. A packet that fails the
// checksum is returned as ErrChecksum and must be treated as lost.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return Packet{}, ErrShortPacket
	}

	length := binary.BigEndian.Uint16(buf[9:11])
	if int(length) != len(buf)-HeaderSize {
		return Packet{}, ErrLengthMismatch
	}

	sum := binary.BigEndian.Uint32(buf[11:15])
	scratch := make([]byte, len(buf))
	copy(scratch, buf)
	scratch[11], scratch[12], scratch[13], scratch[14] = 0, 0, 0, 0
	if crc32.ChecksumIEEE(scratch) != sum {
		return Packet{}, ErrChecksum
	}

	p := Packet{
		Seq:   binary.BigEndian.Uint32(buf[0:4]),
		Ack:   binary.BigEndian.Uint32(buf[4:8]),
		Flags: buf[8],
	}
	if length > 0 {
		p.Payload = make([]byte, length)
		copy(p.Payload, buf[HeaderSize:])
	}
	return p, nil
}
