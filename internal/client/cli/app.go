// Package cli implements the interactive forum client: the login exchange,
// the command loop, and the local side of file transfers.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"udpforum/internal/client/client"
	"udpforum/internal/client/config"
	"udpforum/internal/protocol"
)

// conversation defines the minimal network surface the CLI needs. The real
// client.Client satisfies this interface; tests can provide a lightweight
// stub.
type conversation interface {
	Do(ctx context.Context, line string) (string, error)
	Recv(ctx context.Context) (string, error)
	Upload(ctx context.Context, port int, ticket, path string) (int64, error)
	Download(ctx context.Context, port int, size int64, ticket, filename string) (string, error)
	Close() error
}

type App struct {
	config   *config.Config
	conv     conversation
	reader   *bufio.Reader
	out      io.Writer
	userName string
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	conv, err := client.Dial(ctx, c)
	if err != nil {
		return nil, err
	}
	return &App{config: c, conv: conv, reader: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}

// getPassword is a test seam so the command loop can be driven without a
// terminal.
var getPassword = GetPassword

// Login runs the three step authentication exchange: username, server
// verdict (known or new user), then password. It loops until a login
// succeeds or input ends.
func (a *App) Login(ctx context.Context) error {
	for {
		username, err := GetSimpleText(a.reader, "Enter username", a.out)
		if err != nil {
			return err
		}

		reply, err := a.conv.Do(ctx, username)
		if err != nil {
			return err
		}
		head, _, ok := protocol.ParseResponse(reply)
		fmt.Fprintln(a.out, head)
		if !ok {
			continue
		}

		password, err := getPassword(a.out)
		if err != nil {
			return err
		}
		reply, err = a.conv.Do(ctx, string(password))
		if err != nil {
			return err
		}
		head, _, ok = protocol.ParseResponse(reply)
		fmt.Fprintln(a.out, head)
		if ok {
			a.userName = username
			return nil
		}
	}
}

// Run drives the whole session: login, then the command loop until the
// user exits or the server goes away.
func (a *App) Run(ctx context.Context) {
	defer a.conv.Close()

	fmt.Fprintln(a.out, "UDP Forum (type 'help' for commands)")

	if err := a.Login(ctx); err != nil {
		fmt.Fprintln(a.out, "login aborted:", err)
		return
	}

	for {
		fmt.Fprintf(a.out, "forum (%s) > ", a.userName)
		line, err := a.reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		verb := strings.ToUpper(strings.Fields(line)[0])
		switch verb {
		case "HELP":
			fmt.Fprintln(a.out, "Available commands: CRT LST MSG RDT EDT DLT UPD DWN RMV XIT")

		case "UPD":
			a.upload(ctx, line)

		case "DWN":
			a.download(ctx, line)

		case "XIT":
			reply, err := a.conv.Do(ctx, line)
			if err != nil {
				fmt.Fprintln(a.out, "connection lost:", err)
				return
			}
			fmt.Fprintln(a.out, reply)
			return

		default:
			reply, err := a.conv.Do(ctx, line)
			if err != nil {
				fmt.Fprintln(a.out, "connection lost:", err)
				return
			}
			fmt.Fprintln(a.out, reply)
		}
	}
}

// upload sends the UPD command, then streams the named local file to the
// transfer port from the reply and prints the server's completion report.
func (a *App) upload(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		fmt.Fprintln(a.out, "Usage: UPD threadtitle filename")
		return
	}
	filename := fields[2]
	if _, err := os.Stat(filename); err != nil {
		fmt.Fprintln(a.out, "cannot read local file:", err)
		return
	}

	reply, err := a.conv.Do(ctx, line)
	if err != nil {
		fmt.Fprintln(a.out, "connection lost:", err)
		return
	}
	head, _, ok := protocol.ParseResponse(reply)
	if !ok {
		fmt.Fprintln(a.out, head)
		return
	}

	parts := strings.Fields(head)
	if len(parts) != 3 {
		fmt.Fprintln(a.out, "unexpected transfer reply:", head)
		return
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		fmt.Fprintln(a.out, "unexpected transfer reply:", head)
		return
	}

	if _, err := a.conv.Upload(ctx, port, parts[2], filename); err != nil {
		fmt.Fprintln(a.out, "upload failed:", err)
	}

	// The server reports the final outcome over the command channel either
	// way; on a stream failure that report is the TRANSFER error.
	completion, err := a.conv.Recv(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "connection lost:", err)
		return
	}
	fmt.Fprintln(a.out, completion)
}

// download sends the DWN command, then receives the file bytes from the
// transfer port in the reply and prints the server's completion report.
func (a *App) download(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		fmt.Fprintln(a.out, "Usage: DWN threadtitle filename")
		return
	}

	reply, err := a.conv.Do(ctx, line)
	if err != nil {
		fmt.Fprintln(a.out, "connection lost:", err)
		return
	}
	head, _, ok := protocol.ParseResponse(reply)
	if !ok {
		fmt.Fprintln(a.out, head)
		return
	}

	parts := strings.Fields(head)
	if len(parts) != 4 {
		fmt.Fprintln(a.out, "unexpected transfer reply:", head)
		return
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		fmt.Fprintln(a.out, "unexpected transfer reply:", head)
		return
	}
	size, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		fmt.Fprintln(a.out, "unexpected transfer reply:", head)
		return
	}

	path, err := a.conv.Download(ctx, port, size, parts[3], fields[2])
	if err != nil {
		fmt.Fprintln(a.out, "download failed:", err)
	} else {
		fmt.Fprintln(a.out, "saved to", path)
	}

	completion, err := a.conv.Recv(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "connection lost:", err)
		return
	}
	fmt.Fprintln(a.out, completion)
}
