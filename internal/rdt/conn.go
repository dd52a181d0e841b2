// Package rdt implements the reliable datagram transport: an ARQ layer
// that turns a lossy, duplicating, reordering datagram channel into an
// ordered, exactly-once message channel between one client endpoint and
// the server.
//
// The scheme is stop-and-wait: a single DATA packet is outstanding per
// direction, retransmitted with doubling backoff until acknowledged or
// the retry budget runs out. Messages larger than one packet are split
// into sequenced fragments and reassembled on the receiving side.
// Sequence numbers are monotonic per direction for the lifetime of the
// conversation; the receiver acknowledges the highest in-order sequence
// delivered and re-acknowledges duplicates without side effects.
package rdt

import (
	"context"
	"sync"
	"time"

	"udpforum/internal/common"
	"udpforum/internal/protocol"
)

const (
	DefaultAckTimeout = 2 * time.Second
	DefaultMaxRetries = 3
)

// PacketWriter sends one encoded packet toward the peer. Implementations
// wrap the UDP socket (and, in tests, inject loss and duplication).
type PacketWriter interface {
	WritePacket(p protocol.Packet) error
}

// Config tunes the ARQ behaviour of a single conversation.
type Config struct {
	// AckTimeout is the wait before the first retransmission. Each
	// further retransmission doubles it.
	AckTimeout time.Duration

	// MaxRetries is the number of retransmissions attempted after the
	// initial send before the peer is declared gone.
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// Conn is one endpoint of a reliable conversation. The server owns one
// Conn per client endpoint; the client owns a single Conn.
type Conn struct {
	w   PacketWriter
	cfg Config

	in   chan protocol.Packet
	out  chan []byte
	acks chan uint32

	synAck  chan struct{}
	synOnce sync.Once

	// sendMu serializes Send so exactly one DATA packet is in flight.
	sendMu  sync.Mutex
	sendSeq uint32 // last acknowledged outbound sequence number

	recvSeq uint32 // last delivered inbound sequence number; loop goroutine only
	frag    []byte // partial reassembly of a fragmented inbound message; loop goroutine only

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a conversation endpoint writing outbound packets to w and
// starts its receive loop. Inbound packets are handed in via Deliver.
func New(w PacketWriter, cfg Config) *Conn {
	c := &Conn{
		w:      w,
		cfg:    cfg.withDefaults(),
		in:     make(chan protocol.Packet, 64),
		out:    make(chan []byte, 64),
		acks:   make(chan uint32, 8),
		synAck: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.loop()
	return c
}

// Deliver hands a decoded inbound packet to the conversation. It is safe
// for concurrent use and returns immediately once the conversation is
// closed.
func (c *Conn) Deliver(p protocol.Packet) {
	select {
	case c.in <- p:
	case <-c.done:
	}
}

// Done is closed when the conversation has terminated.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Open performs the client-side handshake: a SYN is retransmitted until
// the peer answers SYN|ACK or the retry budget runs out.
func (c *Conn) Open(ctx context.Context) error {
	timeout := c.cfg.AckTimeout
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		_ = c.w.WritePacket(protocol.Packet{Flags: protocol.FlagSyn})
		timer := time.NewTimer(timeout)
		select {
		case <-c.synAck:
			timer.Stop()
			return nil
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.done:
			timer.Stop()
			return common.ErrSessionClosed
		}
		timeout *= 2
	}
	return common.ErrPeerGone
}

// Send transmits payload as one or more sequenced DATA packets and blocks
// until every one is acknowledged. Payloads larger than a single packet
// are split into fragments carrying FlagMore and reassembled by the
// receiver into one message. After the retry budget is exhausted it
// returns common.ErrPeerGone and the conversation should be torn down.
// Write failures are treated like loss and consumed by the retry budget.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	rest := payload
	for first := true; first || len(rest) > 0; first = false {
		chunk := rest
		if len(chunk) > protocol.MaxPayload {
			chunk = chunk[:protocol.MaxPayload]
		}
		rest = rest[len(chunk):]

		flags := protocol.FlagData
		if len(rest) > 0 {
			flags |= protocol.FlagMore
		}
		if err := c.sendFragment(ctx, chunk, flags); err != nil {
			return err
		}
	}
	return nil
}

// sendFragment runs the stop-and-wait exchange for a single DATA packet:
// transmit, wait for its ACK, retransmit with doubling backoff until the
// retry budget runs out.
func (c *Conn) sendFragment(ctx context.Context, payload []byte, flags uint8) error {
	seq := c.sendSeq + 1
	pkt := protocol.Packet{Seq: seq, Flags: flags, Payload: payload}

	timeout := c.cfg.AckTimeout
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		_ = c.w.WritePacket(pkt)

		timer := time.NewTimer(timeout)
	waitAck:
		for {
			select {
			case ack := <-c.acks:
				if ack >= seq {
					timer.Stop()
					c.sendSeq = seq
					return nil
				}
				// Stale ACK from an earlier exchange; keep waiting.
			case <-timer.C:
				break waitAck
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-c.done:
				timer.Stop()
				return common.ErrSessionClosed
			}
		}
		timeout *= 2
	}
	return common.ErrPeerGone
}

// Recv yields the next in-order, deduplicated message, reassembled from
// its fragments, suspending until one arrives, the context ends, or the
// conversation closes. Messages already received are drained before a
// close is reported.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.out:
		return b, nil
	default:
	}
	select {
	case b := <-c.out:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, common.ErrSessionClosed
	}
}

// Close sends a best-effort FIN and terminates the conversation. It never
// blocks on the peer.
func (c *Conn) Close() error {
	c.shutdown(true)
	return nil
}

func (c *Conn) shutdown(sendFin bool) {
	c.closeOnce.Do(func() {
		if sendFin {
			_ = c.w.WritePacket(protocol.Packet{Flags: protocol.FlagFin})
		}
		close(c.done)
	})
}

func (c *Conn) loop() {
	for {
		select {
		case <-c.done:
			return
		case p := <-c.in:
			c.handle(p)
		}
	}
}

func (c *Conn) handle(p protocol.Packet) {
	if p.Has(protocol.FlagSyn) {
		if p.Has(protocol.FlagAck) {
			// Handshake reply for Open.
			c.synOnce.Do(func() { close(c.synAck) })
			return
		}
		// Peer opening, possibly a retransmitted SYN. Answering again is
		// idempotent; a late duplicate must not rewind the window.
		if p.Seq > c.recvSeq {
			c.recvSeq = p.Seq
		}
		_ = c.w.WritePacket(protocol.Packet{Flags: protocol.FlagSyn | protocol.FlagAck, Ack: p.Seq})
		return
	}

	if p.Has(protocol.FlagFin) {
		// Orderly close from the peer. No FIN of our own; the conversation
		// is already over for them.
		c.shutdown(false)
		return
	}

	if p.Has(protocol.FlagAck) {
		select {
		case c.acks <- p.Ack:
		default:
			// Sender not waiting; a retransmission will be re-ACKed.
		}
		if !p.Has(protocol.FlagData) {
			return
		}
	}

	if p.Has(protocol.FlagData) {
		switch {
		case p.Seq == c.recvSeq+1:
			c.recvSeq = p.Seq
			_ = c.w.WritePacket(protocol.Packet{Flags: protocol.FlagAck, Ack: c.recvSeq})
			if p.Has(protocol.FlagMore) {
				// Non-final fragment; hold it until the message completes.
				c.frag = append(c.frag, p.Payload...)
				return
			}
			payload := p.Payload
			if len(c.frag) > 0 {
				payload = append(c.frag, p.Payload...)
				c.frag = nil
			}
			select {
			case c.out <- payload:
			case <-c.done:
			}
		case p.Seq <= c.recvSeq:
			// Duplicate of something already delivered: re-acknowledge,
			// no side effects.
			_ = c.w.WritePacket(protocol.Packet{Flags: protocol.FlagAck, Ack: c.recvSeq})
		default:
			// Gap ahead of the window. With stop-and-wait there is nothing
			// to buffer; drop and rely on retransmission.
		}
	}
}
