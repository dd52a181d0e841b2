package server

import (
	"context"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"udpforum/internal/logging"
	"udpforum/internal/protocol"
	"udpforum/internal/rdt"
	"udpforum/internal/server/auth"
	"udpforum/internal/server/config"
	"udpforum/internal/server/session"
	"udpforum/internal/server/store"
	"udpforum/internal/server/transfer"
)

// udpWriter sends encoded packets to one client endpoint over the shared
// server socket. A non-zero loss rate drops outbound packets at random to
// exercise retransmission.
type udpWriter struct {
	conn     *net.UDPConn
	addr     *net.UDPAddr
	lossRate float64
}

func (w *udpWriter) WritePacket(p protocol.Packet) error {
	if w.lossRate > 0 && rand.Float64() < w.lossRate {
		return nil
	}
	b, err := p.Encode()
	if err != nil {
		return err
	}
	_, err = w.conn.WriteToUDP(b, w.addr)
	return err
}

// activeUsers is the registry of usernames bound to live sessions.
type activeUsers struct {
	mu    sync.Mutex
	names map[string]bool
}

func newActiveUsers() *activeUsers {
	return &activeUsers{names: make(map[string]bool)}
}

func (a *activeUsers) InUse(username string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.names[username]
}

func (a *activeUsers) Claim(username string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.names[username] {
		return false
	}
	a.names[username] = true
	return true
}

func (a *activeUsers) Release(username string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.names, username)
}

type endpoint struct {
	conn *rdt.Conn

	mu       sync.Mutex
	lastSeen time.Time
}

func (e *endpoint) touch() {
	e.mu.Lock()
	e.lastSeen = time.Now()
	e.mu.Unlock()
}

func (e *endpoint) idleSince(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Sub(e.lastSeen)
}

// Dispatcher owns the UDP socket and demultiplexes datagrams to one
// reliable conversation per client endpoint. New endpoints are admitted on
// a SYN; anything else from an unknown address is dropped.
type Dispatcher struct {
	cfg       *config.Config
	logger    logging.Logger
	store     *store.Store
	users     *auth.Manager
	transfers *transfer.Coordinator
	active    *activeUsers

	conn *net.UDPConn

	mu        sync.Mutex
	endpoints map[string]*endpoint

	wg sync.WaitGroup
}

func NewDispatcher(cfg *config.Config, logger logging.Logger, st *store.Store, users *auth.Manager, transfers *transfer.Coordinator) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		logger:    logger.With("module", "dispatcher"),
		store:     st,
		users:     users,
		transfers: transfers,
		active:    newActiveUsers(),
		endpoints: make(map[string]*endpoint),
	}
}

// Listen binds the UDP socket. Run calls it if it has not been called yet;
// tests call it first to learn the bound address.
func (d *Dispatcher) Listen() error {
	laddr, err := net.ResolveUDPAddr("udp", d.cfg.EndpointAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}
	d.conn = conn
	return nil
}

// Addr returns the bound UDP address. Valid after Listen.
func (d *Dispatcher) Addr() net.Addr {
	return d.conn.LocalAddr()
}

// Run reads datagrams until ctx is cancelled, then tears down every
// conversation and waits for their sessions to finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.conn == nil {
		if err := d.Listen(); err != nil {
			return err
		}
	}
	d.logger.Info(ctx, "listening", "addr", d.conn.LocalAddr().String())

	go func() {
		<-ctx.Done()
		d.conn.Close()
	}()

	if d.cfg.InactivityTimeout > 0 {
		d.wg.Add(1)
		go d.reap(ctx)
	}

	buf := make([]byte, protocol.HeaderSize+protocol.MaxPayload)
	var readErr error
	for {
		n, raddr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			readErr = err
			break
		}
		pkt, err := protocol.Decode(buf[:n])
		if err != nil {
			d.logger.Debug(ctx, "discarding undecodable datagram", "from", raddr.String(), "err", err)
			continue
		}
		d.dispatch(ctx, raddr, pkt)
	}

	d.closeAll()
	d.wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return readErr
}

func (d *Dispatcher) dispatch(ctx context.Context, raddr *net.UDPAddr, pkt protocol.Packet) {
	key := raddr.String()

	d.mu.Lock()
	ep, ok := d.endpoints[key]
	if !ok {
		if !pkt.Has(protocol.FlagSyn) || pkt.Has(protocol.FlagAck) {
			d.mu.Unlock()
			d.logger.Debug(ctx, "ignoring packet from unknown endpoint", "from", key)
			return
		}
		ep = d.admit(ctx, key, raddr)
		d.endpoints[key] = ep
	}
	d.mu.Unlock()

	ep.touch()
	ep.conn.Deliver(pkt)
}

// admit creates the conversation and session for a new endpoint. Caller
// holds d.mu.
func (d *Dispatcher) admit(ctx context.Context, key string, raddr *net.UDPAddr) *endpoint {
	w := &udpWriter{conn: d.conn, addr: raddr, lossRate: d.cfg.LossRate}
	rc := rdt.New(w, rdt.Config{AckTimeout: d.cfg.AckTimeout, MaxRetries: d.cfg.MaxRetries})
	sess := session.New(key, rc, d.users, d.store, d.transfers, d.active, d.logger)

	ep := &endpoint{conn: rc, lastSeen: time.Now()}
	d.logger.Info(ctx, "client endpoint admitted", "endpoint", key)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sess.Run(ctx)
		d.mu.Lock()
		delete(d.endpoints, key)
		d.mu.Unlock()
		d.logger.Info(ctx, "client endpoint closed", "endpoint", key)
	}()
	return ep
}

// reap closes conversations that have been silent longer than the
// inactivity timeout. The session teardown releases the username.
func (d *Dispatcher) reap(ctx context.Context) {
	defer d.wg.Done()

	interval := d.cfg.InactivityTimeout / 2
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.mu.Lock()
			for key, ep := range d.endpoints {
				if ep.idleSince(now) > d.cfg.InactivityTimeout {
					d.logger.Info(ctx, "reaping idle endpoint", "endpoint", key)
					ep.conn.Close()
				}
			}
			d.mu.Unlock()
		}
	}
}

func (d *Dispatcher) closeAll() {
	d.mu.Lock()
	for _, ep := range d.endpoints {
		ep.conn.Close()
	}
	d.mu.Unlock()
}
