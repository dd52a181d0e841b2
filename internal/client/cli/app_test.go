package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udpforum/internal/client/config"
)

// stubConv scripts the server side of a conversation.
type stubConv struct {
	sent      []string
	replies   []string
	recvs     []string
	uploads   []string
	downloads []string
	closed    bool
}

func (s *stubConv) Do(ctx context.Context, line string) (string, error) {
	s.sent = append(s.sent, line)
	if len(s.replies) == 0 {
		return "", io.EOF
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func (s *stubConv) Recv(ctx context.Context) (string, error) {
	if len(s.recvs) == 0 {
		return "", io.EOF
	}
	r := s.recvs[0]
	s.recvs = s.recvs[1:]
	return r, nil
}

func (s *stubConv) Upload(ctx context.Context, port int, ticket, path string) (int64, error) {
	s.uploads = append(s.uploads, fmt.Sprintf("%d %s %s", port, ticket, path))
	return 5, nil
}

func (s *stubConv) Download(ctx context.Context, port int, size int64, ticket, filename string) (string, error) {
	s.downloads = append(s.downloads, fmt.Sprintf("%d %d %s %s", port, size, ticket, filename))
	return filepath.Join("downloads", filename), nil
}

func (s *stubConv) Close() error {
	s.closed = true
	return nil
}

func stubPassword(t *testing.T, pw string) {
	t.Helper()
	orig := getPassword
	t.Cleanup(func() { getPassword = orig })
	getPassword = func(w io.Writer) ([]byte, error) { return []byte(pw), nil }
}

func newTestApp(conv *stubConv, input string, out *bytes.Buffer) *App {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return &App{config: cfg, conv: conv, reader: bufio.NewReader(strings.NewReader(input)), out: out}
}

func TestLogin_NewUser(t *testing.T) {
	stubPassword(t, "hunter2")
	conv := &stubConv{replies: []string{"OK new user", "OK account created, welcome alice"}}
	var out bytes.Buffer
	a := newTestApp(conv, "alice\n", &out)

	require.NoError(t, a.Login(context.Background()))
	assert.Equal(t, "alice", a.userName)
	assert.True(t, a.isLoggedIn())
	assert.Equal(t, []string{"alice", "hunter2"}, conv.sent)
	assert.Contains(t, out.String(), "OK new user")
	assert.Contains(t, out.String(), "welcome alice")
}

func TestLogin_RetriesAfterRejection(t *testing.T) {
	stubPassword(t, "pw")
	conv := &stubConv{replies: []string{
		"OK known user", "ERR AUTH invalid password",
		"OK known user", "OK welcome back alice",
	}}
	var out bytes.Buffer
	a := newTestApp(conv, "alice\nalice\n", &out)

	require.NoError(t, a.Login(context.Background()))
	assert.Equal(t, "alice", a.userName)
	assert.Contains(t, out.String(), "ERR AUTH invalid password")
}

func TestRun_CommandLoop(t *testing.T) {
	stubPassword(t, "pw")
	conv := &stubConv{replies: []string{
		"OK new user", "OK account created, welcome alice",
		"OK thread Lunch created",
		"OK 1 threads\nLunch",
		"ERR EXISTS thread Lunch: already exists",
		"OK goodbye alice",
	}}
	var out bytes.Buffer
	a := newTestApp(conv, "alice\nCRT Lunch\nLST\nCRT Lunch\nXIT\n", &out)

	a.Run(context.Background())

	assert.Equal(t, []string{"alice", "pw", "CRT Lunch", "LST", "CRT Lunch", "XIT"}, conv.sent)
	assert.Contains(t, out.String(), "OK thread Lunch created")
	assert.Contains(t, out.String(), "Lunch")
	assert.Contains(t, out.String(), "ERR EXISTS")
	assert.Contains(t, out.String(), "OK goodbye alice")
	assert.True(t, conv.closed, "Run must close the conversation")
}

func TestRun_UploadFlow(t *testing.T) {
	stubPassword(t, "pw")

	dir := t.TempDir()
	local := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(local, []byte("hello"), 0o600))

	conv := &stubConv{
		replies: []string{
			"OK new user", "OK account created, welcome alice",
			"OK 9000 tik.et.0",
			"OK goodbye alice",
		},
		recvs: []string{"OK file notes.txt uploaded to Lunch (5 bytes)"},
	}
	var out bytes.Buffer
	a := newTestApp(conv, fmt.Sprintf("alice\nUPD Lunch %s\nXIT\n", local), &out)

	a.Run(context.Background())

	require.Len(t, conv.uploads, 1)
	assert.Equal(t, fmt.Sprintf("9000 tik.et.0 %s", local), conv.uploads[0])
	assert.Contains(t, out.String(), "uploaded to Lunch (5 bytes)")
}

func TestRun_UploadSkippedWhenLocalFileMissing(t *testing.T) {
	stubPassword(t, "pw")
	conv := &stubConv{replies: []string{
		"OK new user", "OK account created, welcome alice",
		"OK goodbye alice",
	}}
	var out bytes.Buffer
	a := newTestApp(conv, "alice\nUPD Lunch nosuchfile.txt\nXIT\n", &out)

	a.Run(context.Background())

	// The command is never sent when the local file cannot be read.
	assert.Equal(t, []string{"alice", "pw", "XIT"}, conv.sent)
	assert.Empty(t, conv.uploads)
	assert.Contains(t, out.String(), "cannot read local file")
}

func TestRun_DownloadFlow(t *testing.T) {
	stubPassword(t, "pw")
	conv := &stubConv{
		replies: []string{
			"OK new user", "OK account created, welcome alice",
			"OK 9001 7 tik.et.1",
			"OK goodbye alice",
		},
		recvs: []string{"OK file menu.txt sent (7 bytes)"},
	}
	var out bytes.Buffer
	a := newTestApp(conv, "alice\nDWN Lunch menu.txt\nXIT\n", &out)

	a.Run(context.Background())

	require.Len(t, conv.downloads, 1)
	assert.Equal(t, "9001 7 tik.et.1 menu.txt", conv.downloads[0])
	assert.Contains(t, out.String(), "saved to")
	assert.Contains(t, out.String(), "sent (7 bytes)")
}
