// Package session implements the per-endpoint command state machine. A
// session owns one reliable conversation, interprets decoded command
// lines, authorizes them against the forum store, and produces response
// lines. Its lifecycle:
//
//	unauthenticated → awaiting-password → idle ⇄ awaiting-transfer → terminated
package session

import (
	"context"
	"fmt"
	"strings"

	"udpforum/internal/common"
	"udpforum/internal/logging"
	"udpforum/internal/protocol"
	"udpforum/internal/server/auth"
	"udpforum/internal/server/store"
	"udpforum/internal/server/transfer"
)

// State of the session lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAwaitingPassword
	StateIdle
	StateAwaitingTransfer
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingPassword:
		return "awaiting-password"
	case StateIdle:
		return "idle"
	case StateAwaitingTransfer:
		return "awaiting-transfer"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Transport is the reliable conversation the session speaks over.
// *rdt.Conn satisfies it; tests use an in-memory fake.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Verifier is the slice of the authentication manager the session needs.
type Verifier interface {
	Known(ctx context.Context, username string) bool
	Verify(ctx context.Context, username, password string) (auth.Outcome, error)
}

// Transfers is the slice of the transfer coordinator the session needs.
type Transfers interface {
	BeginUpload(ctx context.Context, title, filename, username string) (*transfer.Pending, error)
	BeginDownload(ctx context.Context, title, filename string) (*transfer.Pending, error)
	Purge(title string) error
}

// Registry tracks which usernames are bound to a live session, so one
// account cannot be logged in twice concurrently.
type Registry interface {
	InUse(username string) bool
	Claim(username string) bool
	Release(username string)
}

// Session drives one client endpoint.
type Session struct {
	endpoint  string
	tr        Transport
	users     Verifier
	store     *store.Store
	transfers Transfers
	registry  Registry
	logger    logging.Logger

	state       State
	username    string
	pendingUser string

	// transfer in flight, set by UPD/DWN until the coordinator reports.
	pending     *transfer.Pending
	pendingDone func(size int64) string
}

func New(endpoint string, tr Transport, users Verifier, st *store.Store, tf Transfers, reg Registry, l logging.Logger) *Session {
	return &Session{
		endpoint:  endpoint,
		tr:        tr,
		users:     users,
		store:     st,
		transfers: tf,
		registry:  reg,
		logger:    l.With("module", "session", "endpoint", endpoint),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Username returns the bound username, or "" before authentication.
func (s *Session) Username() string {
	return s.username
}

// Run processes the conversation until the client exits, the transport
// declares the peer gone, or ctx is cancelled. It always releases the
// session's resources before returning.
func (s *Session) Run(ctx context.Context) {
	defer s.teardown()

	for s.state != StateTerminated {
		payload, err := s.tr.Recv(ctx)
		if err != nil {
			s.logger.Info(ctx, "conversation over", "reason", err, "state", s.state.String())
			return
		}

		reply, exit := s.Handle(ctx, string(payload))
		if reply != "" {
			if err := s.tr.Send(ctx, []byte(reply)); err != nil {
				s.logger.Warn(ctx, "response undeliverable", "err", err)
				return
			}
		}

		if s.pending != nil {
			completion := s.awaitTransfer(ctx)
			s.pending, s.pendingDone = nil, nil
			s.state = StateIdle
			if err := s.tr.Send(ctx, []byte(completion)); err != nil {
				s.logger.Warn(ctx, "transfer report undeliverable", "err", err)
				return
			}
		}

		if exit {
			s.state = StateTerminated
		}
	}
}

func (s *Session) awaitTransfer(ctx context.Context) string {
	s.state = StateAwaitingTransfer
	size, err := s.pending.Wait(ctx)
	if err != nil {
		s.logger.Warn(ctx, "transfer failed", "err", err)
		return protocol.Errf(protocol.KindTransfer, "%s", err)
	}
	return s.pendingDone(size)
}

func (s *Session) teardown() {
	if s.username != "" {
		s.registry.Release(s.username)
		s.username = ""
	}
	s.state = StateTerminated
	_ = s.tr.Close()
}

// Handle interprets one payload line in the current state and returns the
// response plus whether the session should terminate after sending it.
func (s *Session) Handle(ctx context.Context, line string) (reply string, exit bool) {
	switch s.state {
	case StateUnauthenticated:
		return s.handleUsername(ctx, line), false
	case StateAwaitingPassword:
		return s.handlePassword(ctx, line), false
	case StateIdle:
		return s.handleCommand(ctx, line)
	default:
		return protocol.Errf(protocol.KindMalformed, "not ready for commands"), false
	}
}

func (s *Session) handleUsername(ctx context.Context, line string) string {
	username := strings.TrimSpace(line)
	if username == "" || strings.Contains(username, " ") {
		return protocol.Errf(protocol.KindAuth, "invalid username")
	}
	if s.registry.InUse(username) {
		return protocol.Errf(protocol.KindAuth, "username %s is already logged in", username)
	}
	s.pendingUser = username
	s.state = StateAwaitingPassword
	if s.users.Known(ctx, username) {
		return protocol.OK("known user")
	}
	return protocol.OK("new user")
}

func (s *Session) handlePassword(ctx context.Context, line string) string {
	username := s.pendingUser
	s.pendingUser = ""
	s.state = StateUnauthenticated

	outcome, err := s.users.Verify(ctx, username, line)
	if err != nil {
		s.logger.Error(ctx, "credential check failed", "err", err)
		return protocol.Errf(protocol.KindInternal, "authentication unavailable")
	}
	if outcome == auth.Rejected {
		return protocol.Errf(protocol.KindAuth, "invalid password")
	}
	if !s.registry.Claim(username) {
		return protocol.Errf(protocol.KindAuth, "username %s is already logged in", username)
	}

	s.username = username
	s.state = StateIdle
	s.logger.Info(ctx, "user authenticated", "user", username, "new", outcome == auth.Created)
	if outcome == auth.Created {
		return protocol.OK("account created, welcome %s", username)
	}
	return protocol.OK("welcome back %s", username)
}

func (s *Session) handleCommand(ctx context.Context, line string) (string, bool) {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		return protocol.ErrResponse(err), false
	}

	switch cmd.Verb {
	case protocol.VerbExit:
		s.logger.Info(ctx, "user logged out", "user", s.username)
		return protocol.OK("goodbye %s", s.username), true

	case protocol.VerbCreate:
		if err := s.store.CreateThread(ctx, cmd.Title, s.username); err != nil {
			return protocol.ErrResponse(err), false
		}
		return protocol.OK("thread %s created", cmd.Title), false

	case protocol.VerbList:
		titles := s.store.ListThreads(ctx)
		if len(titles) == 0 {
			return protocol.OK("no threads"), false
		}
		return protocol.OKBody(fmt.Sprintf("%d threads", len(titles)), titles), false

	case protocol.VerbMessage:
		pos, err := s.store.AppendMessage(ctx, cmd.Title, s.username, cmd.Text)
		if err != nil {
			return protocol.ErrResponse(err), false
		}
		return protocol.OK("message %d posted to %s", pos, cmd.Title), false

	case protocol.VerbEdit:
		if err := s.store.EditMessage(ctx, cmd.Title, cmd.Position, s.username, cmd.Text); err != nil {
			return protocol.ErrResponse(err), false
		}
		return protocol.OK("message %d edited in %s", cmd.Position, cmd.Title), false

	case protocol.VerbDelete:
		if err := s.store.DeleteMessage(ctx, cmd.Title, cmd.Position, s.username); err != nil {
			return protocol.ErrResponse(err), false
		}
		return protocol.OK("message %d deleted from %s", cmd.Position, cmd.Title), false

	case protocol.VerbRead:
		view, err := s.store.ReadThread(ctx, cmd.Title)
		if err != nil {
			return protocol.ErrResponse(err), false
		}
		return renderThread(view), false

	case protocol.VerbRemove:
		files, err := s.store.RemoveThread(ctx, cmd.Title, s.username)
		if err != nil {
			return protocol.ErrResponse(err), false
		}
		if len(files) > 0 {
			if err := s.transfers.Purge(cmd.Title); err != nil {
				s.logger.Error(ctx, "purging thread files", "thread", cmd.Title, "err", err)
			}
		}
		return protocol.OK("thread %s removed", cmd.Title), false

	case protocol.VerbUpload:
		p, err := s.transfers.BeginUpload(ctx, cmd.Title, cmd.Filename, s.username)
		if err != nil {
			return protocol.ErrResponse(err), false
		}
		s.pending = p
		title, filename := cmd.Title, cmd.Filename
		s.pendingDone = func(size int64) string {
			return protocol.OK("file %s uploaded to %s (%d bytes)", filename, title, size)
		}
		return protocol.OK("%d %s", p.Port, p.Ticket), false

	case protocol.VerbDownload:
		p, err := s.transfers.BeginDownload(ctx, cmd.Title, cmd.Filename)
		if err != nil {
			return protocol.ErrResponse(err), false
		}
		s.pending = p
		filename := cmd.Filename
		s.pendingDone = func(size int64) string {
			return protocol.OK("file %s sent (%d bytes)", filename, size)
		}
		return protocol.OK("%d %d %s", p.Port, p.Size, p.Ticket), false

	default:
		return protocol.ErrResponse(fmt.Errorf("%w: unhandled verb", common.ErrMalformed)), false
	}
}

func renderThread(view store.ThreadView) string {
	if len(view.Messages) == 0 && len(view.Files) == 0 {
		return protocol.OK("thread %s is empty", view.Title)
	}
	lines := make([]string, 0, len(view.Messages)+len(view.Files))
	for _, m := range view.Messages {
		line := fmt.Sprintf("%d %s: %s", m.Position, m.Author, m.Body)
		if m.Edited {
			line += " (edited)"
		}
		lines = append(lines, line)
	}
	for _, f := range view.Files {
		lines = append(lines, fmt.Sprintf("%s uploaded %s", f.Uploader, f.Name))
	}
	return protocol.OKBody("thread "+view.Title, lines)
}
