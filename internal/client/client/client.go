// Package client implements the network side of the forum CLI: the
// reliable UDP conversation carrying command lines and the TCP
// side-channel carrying file bytes.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"os"
	"path/filepath"

	"udpforum/internal/client/config"
	"udpforum/internal/common"
	"udpforum/internal/filex"
	"udpforum/internal/protocol"
	"udpforum/internal/rdt"
)

// packetWriter sends encoded packets over the connected client socket. A
// non-zero loss rate drops outbound packets at random to exercise
// retransmission.
type packetWriter struct {
	conn     *net.UDPConn
	lossRate float64
}

func (w *packetWriter) WritePacket(p protocol.Packet) error {
	if w.lossRate > 0 && rand.Float64() < w.lossRate {
		return nil
	}
	b, err := p.Encode()
	if err != nil {
		return err
	}
	_, err = w.conn.Write(b)
	return err
}

// Client is one forum client endpoint: a reliable conversation with the
// server plus helpers for the file transfer side-channel.
type Client struct {
	serverHost  string
	conn        *net.UDPConn
	rc          *rdt.Conn
	downloadDir string
}

// Dial connects the UDP socket and performs the opening handshake.
func Dial(ctx context.Context, cfg *config.Config) (*Client, error) {
	raddr, err := net.ResolveUDPAddr("udp", cfg.ServerEndpointAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve server address: %w", err)
	}
	uc, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial server: %w", err)
	}

	rc := rdt.New(&packetWriter{conn: uc, lossRate: cfg.LossRate}, rdt.Config{
		AckTimeout: cfg.AckTimeout,
		MaxRetries: cfg.MaxRetries,
	})
	go func() {
		buf := make([]byte, protocol.HeaderSize+protocol.MaxPayload)
		for {
			n, err := uc.Read(buf)
			if err != nil {
				return
			}
			if pkt, err := protocol.Decode(buf[:n]); err == nil {
				rc.Deliver(pkt)
			}
		}
	}()

	if err := rc.Open(ctx); err != nil {
		rc.Close()
		uc.Close()
		return nil, fmt.Errorf("opening handshake: %w", err)
	}

	return &Client{
		serverHost:  raddr.IP.String(),
		conn:        uc,
		rc:          rc,
		downloadDir: cfg.DownloadDir,
	}, nil
}

// Do sends one command line and waits for its response.
func (c *Client) Do(ctx context.Context, line string) (string, error) {
	if err := c.rc.Send(ctx, []byte(line)); err != nil {
		return "", err
	}
	return c.Recv(ctx)
}

// Recv waits for the next server line outside the command/response rhythm,
// such as a transfer completion report.
func (c *Client) Recv(ctx context.Context) (string, error) {
	b, err := c.rc.Recv(ctx)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Upload streams the local file at path to the transfer port the server
// opened, presenting the ticket first, and returns the byte count sent.
func (c *Client) Upload(ctx context.Context, port int, ticket, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	conn, err := c.dialTransfer(ctx, port)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s %d\n", ticket, info.Size()); err != nil {
		return 0, fmt.Errorf("%w: handshake write: %v", common.ErrTransferFailed, err)
	}
	n, err := io.Copy(conn, f)
	if err != nil {
		return n, fmt.Errorf("%w: stream write: %v", common.ErrTransferFailed, err)
	}
	return n, nil
}

// Download receives a file of the given size from the transfer port and
// stores it under the download directory. It returns the path written.
func (c *Client) Download(ctx context.Context, port int, size int64, ticket, filename string) (string, error) {
	if !filex.SafeName(filename) {
		return "", fmt.Errorf("%w: unusable filename %q", common.ErrMalformed, filename)
	}
	dir, err := filex.EnsureDir(c.downloadDir)
	if err != nil {
		return "", err
	}

	conn, err := c.dialTransfer(ctx, port)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", ticket); err != nil {
		return "", fmt.Errorf("%w: handshake write: %v", common.ErrTransferFailed, err)
	}

	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o660)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(bufio.NewReader(conn), size))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: stream read: %v", common.ErrTransferFailed, err)
	}
	if n != size {
		os.Remove(path)
		return "", fmt.Errorf("%w: expected %d bytes, got %d", common.ErrTransferFailed, size, n)
	}
	return path, nil
}

func (c *Client) dialTransfer(ctx context.Context, port int) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(c.serverHost, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, fmt.Errorf("%w: dial transfer port: %v", common.ErrTransferFailed, err)
	}
	return conn, nil
}

// Close ends the conversation and releases the socket.
func (c *Client) Close() error {
	c.rc.Close()
	return c.conn.Close()
}
