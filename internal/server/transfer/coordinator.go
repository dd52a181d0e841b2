// Package transfer bridges a command exchange on the control channel to a
// dedicated TCP connection carrying bulk file bytes.
//
// The handoff works like a presigned URL: the UPD/DWN reply carries an
// ephemeral TCP port and a signed one-shot ticket. The client connects,
// presents the ticket on the first line, and the coordinator binds the
// connection to the pending transfer it negotiated. Completion or failure
// is reported back to the session so it can answer over the control
// channel and return to idle.
package transfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"udpforum/internal/common"
	"udpforum/internal/filex"
	"udpforum/internal/logging"
	"udpforum/internal/server/auth"
	"udpforum/internal/server/store"
)

const (
	DefaultAcceptTimeout = 30 * time.Second
	DefaultIOTimeout     = 2 * time.Minute
)

// Coordinator negotiates and runs stream transfers against the upload
// directory.
type Coordinator struct {
	logger        logging.Logger
	store         *store.Store
	uploadDir     string
	secret        []byte
	ticketTTL     time.Duration
	acceptTimeout time.Duration
	ioTimeout     time.Duration
}

func NewCoordinator(l logging.Logger, s *store.Store, uploadDir string, secret []byte, ticketTTL, acceptTimeout time.Duration) *Coordinator {
	if acceptTimeout <= 0 {
		acceptTimeout = DefaultAcceptTimeout
	}
	return &Coordinator{
		logger:        l.With("module", "transfer"),
		store:         s,
		uploadDir:     uploadDir,
		secret:        secret,
		ticketTTL:     ticketTTL,
		acceptTimeout: acceptTimeout,
		ioTimeout:     DefaultIOTimeout,
	}
}

type result struct {
	size int64
	err  error
}

// Pending is one negotiated transfer awaiting its stream connection.
type Pending struct {
	ID     string
	Port   int
	Ticket string
	// Size is the expected byte count; known up front for downloads only.
	Size int64

	done chan result
}

// Wait blocks until the transfer finishes or fails and returns the number
// of bytes moved.
func (p *Pending) Wait(ctx context.Context) (int64, error) {
	select {
	case r := <-p.done:
		return r.size, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// BeginUpload validates the request, opens a listener, and returns the
// pending transfer whose port and ticket go back to the client.
func (c *Coordinator) BeginUpload(ctx context.Context, title, filename, username string) (*Pending, error) {
	if !filex.SafeName(filename) {
		return nil, fmt.Errorf("%w: unusable filename %q", common.ErrMalformed, filename)
	}
	if !c.store.HasThread(ctx, title) {
		return nil, fmt.Errorf("thread %s: %w", title, common.ErrNotFound)
	}
	if _, err := c.store.FileInfo(ctx, title, filename); err == nil {
		return nil, fmt.Errorf("file %s in thread %s: %w", filename, title, common.ErrAlreadyExists)
	}

	p, l, err := c.newPending(auth.DirectionUpload, title, filename)
	if err != nil {
		return nil, err
	}
	go c.runUpload(l, p, title, filename, username)
	return p, nil
}

// BeginDownload validates the request and file existence, opens a
// listener, and returns the pending transfer including the byte count the
// client must expect.
func (c *Coordinator) BeginDownload(ctx context.Context, title, filename string) (*Pending, error) {
	if !filex.SafeName(filename) {
		return nil, fmt.Errorf("%w: unusable filename %q", common.ErrMalformed, filename)
	}
	if !c.store.HasThread(ctx, title) {
		return nil, fmt.Errorf("thread %s: %w", title, common.ErrNotFound)
	}
	rec, err := c.store.FileInfo(ctx, title, filename)
	if err != nil {
		return nil, err
	}

	p, l, err := c.newPending(auth.DirectionDownload, title, filename)
	if err != nil {
		return nil, err
	}
	p.Size = rec.Size
	go c.runDownload(l, p, title, filename)
	return p, nil
}

// Purge removes the on-disk files of a removed thread.
func (c *Coordinator) Purge(title string) error {
	return os.RemoveAll(filepath.Join(c.uploadDir, title))
}

func (c *Coordinator) newPending(direction, title, filename string) (*Pending, net.Listener, error) {
	id := uuid.NewString()
	ticket, err := auth.IssueTicket(id, direction, title, filename, c.secret, c.ticketTTL)
	if err != nil {
		return nil, nil, err
	}
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return nil, nil, fmt.Errorf("open stream listener: %w", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	return &Pending{ID: id, Port: port, Ticket: ticket, done: make(chan result, 1)}, l, nil
}

// accept waits for the one stream connection of a pending transfer and
// verifies its ticket line. The remainder of the reader is the payload
// stream (upload) or unused (download).
func (c *Coordinator) accept(l net.Listener, p *Pending, direction string) (net.Conn, *bufio.Reader, []string, error) {
	if tl, ok := l.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(c.acceptTimeout))
	}
	conn, err := l.Accept()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: no stream connection: %v", common.ErrTransferFailed, err)
	}

	_ = conn.SetDeadline(time.Now().Add(c.acceptTimeout))
	br := bufio.NewReader(conn)
	line, err := br.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("%w: reading handshake: %v", common.ErrTransferFailed, err)
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("%w: empty handshake", common.ErrTransferFailed)
	}
	claims, err := auth.VerifyTicket(fields[0], c.secret)
	if err != nil || claims.TransferID != p.ID || claims.Direction != direction {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("%w: ticket rejected", common.ErrTransferFailed)
	}

	_ = conn.SetDeadline(time.Now().Add(c.ioTimeout))
	return conn, br, fields[1:], nil
}

func (c *Coordinator) runUpload(l net.Listener, p *Pending, title, filename, username string) {
	defer l.Close()
	ctx := context.Background()

	conn, br, args, err := c.accept(l, p, auth.DirectionUpload)
	if err != nil {
		p.done <- result{err: err}
		return
	}
	defer conn.Close()

	if len(args) != 1 {
		p.done <- result{err: fmt.Errorf("%w: missing byte count", common.ErrTransferFailed)}
		return
	}
	size, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || size < 0 {
		p.done <- result{err: fmt.Errorf("%w: bad byte count %q", common.ErrTransferFailed, args[0])}
		return
	}

	dir, err := filex.EnsureDir(filepath.Join(c.uploadDir, title))
	if err != nil {
		p.done <- result{err: err}
		return
	}
	final := filepath.Join(dir, filename)
	part := final + ".part"

	n, err := receiveToFile(part, br, size)
	if err != nil {
		_ = os.Remove(part)
		p.done <- result{err: err}
		return
	}

	if err := os.Rename(part, final); err != nil {
		_ = os.Remove(part)
		p.done <- result{err: fmt.Errorf("finalize upload: %w", err)}
		return
	}
	if err := c.store.AttachFile(ctx, title, filename, username, size); err != nil {
		// Thread vanished or filename raced; the bytes have no home.
		_ = os.Remove(final)
		p.done <- result{err: err}
		return
	}

	c.logger.Info(ctx, "upload complete", "thread", title, "file", filename, "bytes", n, "user", username)
	p.done <- result{size: n}
}

func receiveToFile(path string, r io.Reader, size int64) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o660)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, size))
	if err != nil {
		return n, fmt.Errorf("%w: stream read: %v", common.ErrTransferFailed, err)
	}
	if n != size {
		return n, fmt.Errorf("%w: expected %d bytes, got %d", common.ErrTransferFailed, size, n)
	}
	return n, nil
}

func (c *Coordinator) runDownload(l net.Listener, p *Pending, title, filename string) {
	defer l.Close()
	ctx := context.Background()

	conn, _, _, err := c.accept(l, p, auth.DirectionDownload)
	if err != nil {
		p.done <- result{err: err}
		return
	}
	defer conn.Close()

	f, err := os.Open(filepath.Join(c.uploadDir, title, filename))
	if err != nil {
		p.done <- result{err: fmt.Errorf("%w: open stored file: %v", common.ErrTransferFailed, err)}
		return
	}
	defer f.Close()

	n, err := io.Copy(conn, f)
	if err != nil {
		p.done <- result{err: fmt.Errorf("%w: stream write: %v", common.ErrTransferFailed, err)}
		return
	}
	if n != p.Size {
		p.done <- result{err: fmt.Errorf("%w: expected %d bytes, sent %d", common.ErrTransferFailed, p.Size, n)}
		return
	}

	c.logger.Info(ctx, "download complete", "thread", title, "file", filename, "bytes", n)
	p.done <- result{size: n}
}

// IsTransferError reports whether err belongs to the transfer taxonomy
// (stream failure, count mismatch) rather than validation.
func IsTransferError(err error) bool {
	return errors.Is(err, common.ErrTransferFailed)
}
