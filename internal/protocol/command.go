package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"udpforum/internal/common"
)

// Verb identifies a forum command. Verbs are the three-letter tokens the
// client sends as the first word of a command line.
type Verb string

const (
	VerbCreate   Verb = "CRT"
	VerbList     Verb = "LST"
	VerbMessage  Verb = "MSG"
	VerbDelete   Verb = "DLT"
	VerbRead     Verb = "RDT"
	VerbEdit     Verb = "EDT"
	VerbUpload   Verb = "UPD"
	VerbDownload Verb = "DWN"
	VerbRemove   Verb = "RMV"
	VerbExit     Verb = "XIT"
)

// Command is a decoded command line. Only the fields required by the verb
// are populated.
type Command struct {
	Verb     Verb
	Title    string
	Position int
	Text     string
	Filename string
}

// ParseCommand decodes a space-delimited command line. Errors wrap
// common.ErrMalformed so callers can map them to a MALFORMED response.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, fmt.Errorf("%w: empty line", common.ErrMalformed)
	}

	head, rest, _ := strings.Cut(line, " ")
	cmd := Command{Verb: Verb(strings.ToUpper(head))}
	rest = strings.TrimSpace(rest)

	switch cmd.Verb {
	case VerbList, VerbExit:
		if rest != "" {
			return Command{}, fmt.Errorf("%w: %s takes no arguments", common.ErrMalformed, cmd.Verb)
		}
		return cmd, nil

	case VerbCreate, VerbRead, VerbRemove:
		if rest == "" || strings.Contains(rest, " ") {
			return Command{}, fmt.Errorf("%w: usage: %s threadtitle", common.ErrMalformed, cmd.Verb)
		}
		cmd.Title = rest
		return cmd, nil

	case VerbMessage:
		title, text, ok := strings.Cut(rest, " ")
		if !ok || title == "" || text == "" {
			return Command{}, fmt.Errorf("%w: usage: MSG threadtitle message", common.ErrMalformed)
		}
		cmd.Title, cmd.Text = title, text
		return cmd, nil

	case VerbDelete:
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("%w: usage: DLT threadtitle messagenumber", common.ErrMalformed)
		}
		pos, err := parsePosition(fields[1])
		if err != nil {
			return Command{}, err
		}
		cmd.Title, cmd.Position = fields[0], pos
		return cmd, nil

	case VerbEdit:
		title, rest2, ok := strings.Cut(rest, " ")
		if !ok {
			return Command{}, fmt.Errorf("%w: usage: EDT threadtitle messagenumber message", common.ErrMalformed)
		}
		posStr, text, ok := strings.Cut(strings.TrimSpace(rest2), " ")
		if !ok || title == "" || text == "" {
			return Command{}, fmt.Errorf("%w: usage: EDT threadtitle messagenumber message", common.ErrMalformed)
		}
		pos, err := parsePosition(posStr)
		if err != nil {
			return Command{}, err
		}
		cmd.Title, cmd.Position, cmd.Text = title, pos, text
		return cmd, nil

	case VerbUpload, VerbDownload:
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("%w: usage: %s threadtitle filename", common.ErrMalformed, cmd.Verb)
		}
		cmd.Title, cmd.Filename = fields[0], fields[1]
		return cmd, nil

	default:
		return Command{}, fmt.Errorf("%w: unknown command %q", common.ErrMalformed, head)
	}
}

func parsePosition(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: invalid message number %q", common.ErrMalformed, s)
	}
	return n, nil
}
