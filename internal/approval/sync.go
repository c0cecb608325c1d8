package approval

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

// TTYPrompter draws a boxed ASCII prompt and reads a single unbuffered
// keystroke (spec.md §4.3's synchronous variant).
type TTYPrompter struct {
	in  *os.File
	out io.Writer
}

// NewTTYPrompter wires the prompter to the process's real stdin/stdout.
func NewTTYPrompter() *TTYPrompter {
	return &TTYPrompter{in: os.Stdin, out: os.Stdout}
}

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("3")).
	Padding(0, 1)

// PromptUser draws the request and blocks for one keystroke: y/a/n/d map to
// ALLOW_ONCE / ALLOW_ALWAYS / DENY_ONCE / DENY_ALWAYS; anything else denies
// once.
func (p *TTYPrompter) PromptUser(req ports.PermissionRequest) (ports.PermissionResponse, ports.PermissionScope) {
	dangerTag := ""
	if req.IsDangerous {
		dangerTag = color.New(color.FgRed, color.Bold).Sprint(" [DANGEROUS]")
	}
	body := fmt.Sprintf(
		"%s%s\n%s\n\n[y] allow once  [a] allow always  [n] deny once  [d] deny always",
		req.ToolName, dangerTag, req.Description,
	)
	fmt.Fprintln(p.out, boxStyle.Render(body))

	key, err := p.readKey()
	if err != nil {
		return ports.RespDenyOnce, ports.ScopeOnce
	}

	switch key {
	case 'y':
		return ports.RespAllowOnce, ports.ScopeOnce
	case 'a':
		return ports.RespAllowAlways, ports.ScopeSession
	case 'n':
		return ports.RespDenyOnce, ports.ScopeOnce
	case 'd':
		return ports.RespDenyAlways, ports.ScopeSession
	default:
		return ports.RespDenyOnce, ports.ScopeOnce
	}
}

// Decide implements ports.PermissionDriver.
func (p *TTYPrompter) Decide(req ports.PermissionRequest) (ports.PermissionResponse, ports.PermissionScope) {
	return p.PromptUser(req)
}

// readKey reads exactly one keystroke in raw mode, falling back to a
// buffered single-byte read when stdin is not a terminal (tests, pipes).
func (p *TTYPrompter) readKey() (byte, error) {
	fd := int(p.in.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return readOneByte(p.in)
		}
		defer term.Restore(fd, oldState)
		buf := make([]byte, 1)
		if _, err := p.in.Read(buf); err != nil {
			return 0, err
		}
		return lower(buf[0]), nil
	}
	return readOneByte(p.in)
}

func readOneByte(r io.Reader) (byte, error) {
	reader := bufio.NewReader(r)
	b, err := reader.ReadByte()
	if err != nil {
		return 0, err
	}
	return lower(b), nil
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
