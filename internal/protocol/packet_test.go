package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacket_EncodeDecode_RoundTrip(t *testing.T) {
	p := Packet{
		Seq:     42,
		Ack:     7,
		Flags:   FlagData | FlagAck,
		Payload: []byte("MSG Lunch Hi"),
	}

	buf, err := p.Encode()
	require.NoError(t, err)
	require.Len(t, buf, HeaderSize+len(p.Payload))

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, p.Seq, got.Seq)
	assert.Equal(t, p.Ack, got.Ack)
	assert.Equal(t, p.Flags, got.Flags)
	assert.Equal(t, p.Payload, got.Payload)
}

func TestPacket_EncodeDecode_EmptyPayload(t *testing.T) {
	p := Packet{Seq: 1, Flags: FlagAck, Ack: 1}

	buf, err := p.Encode()
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Nil(t, got.Payload)
	assert.True(t, got.Has(FlagAck))
	assert.False(t, got.Has(FlagData))
}

func TestPacket_Encode_RejectsOversizedPayload(t *testing.T) {
	p := Packet{Flags: FlagData, Payload: make([]byte, MaxPayload+1)}
	_, err := p.Encode()
	require.ErrorIs(t, err, ErrPayloadTooBig)
}

func TestDecode_RejectsShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrShortPacket)
}

func TestDecode_RejectsLengthMismatch(t *testing.T) {
	p := Packet{Seq: 1, Flags: FlagData, Payload: []byte("abc")}
	buf, err := p.Encode()
	require.NoError(t, err)

	// Truncate the payload so the declared length no longer matches.
	_, err = Decode(buf[:len(buf)-1])
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestDecode_RejectsCorruptedPayload(t *testing.T) {
	p := Packet{Seq: 9, Flags: FlagData, Payload: []byte("CRT Lunch")}
	buf, err := p.Encode()
	require.NoError(t, err)

	buf[HeaderSize] ^= 0xFF
	_, err = Decode(buf)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestDecode_RejectsCorruptedHeader(t *testing.T) {
	p := Packet{Seq: 9, Flags: FlagData, Payload: []byte("LST")}
	buf, err := p.Encode()
	require.NoError(t, err)

	buf[0] ^= 0x01 // flip a seq bit
	_, err = Decode(buf)
	require.ErrorIs(t, err, ErrChecksum)
}
