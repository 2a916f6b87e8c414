// Package console provides the styled terminal output used by the
// subcommands: status lines, numbered selection menus, and yes/no
// confirmation prompts.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	menuStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("79"))
	markStyle    = lipgloss.NewStyle().Bold(true)
)

// Console writes styled messages and reads interactive answers.
type Console struct {
	out io.Writer
	in  *bufio.Reader
}

// New creates a console on stdout/stdin.
func New() *Console {
	return &Console{out: os.Stdout, in: bufio.NewReader(os.Stdin)}
}

// NewWith creates a console on explicit streams, for tests.
func NewWith(out io.Writer, in io.Reader) *Console {
	return &Console{out: out, in: bufio.NewReader(in)}
}

func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Errorf prints a red "Error:" line. Continuation lines are indented.
func (c *Console) Errorf(format string, args ...any) {
	lines := strings.Split(fmt.Sprintf(format, args...), "\n")
	fmt.Fprintf(c.out, "%s %s\n", errorStyle.Render("Error:"), lines[0])
	for _, line := range lines[1:] {
		fmt.Fprintf(c.out, "       %s\n", line)
	}
}

func (c *Console) Warningf(format string, args ...any) {
	fmt.Fprintln(c.out, warningStyle.Render(fmt.Sprintf(format, args...)))
}

func (c *Console) Successf(format string, args ...any) {
	fmt.Fprintln(c.out, successStyle.Render(fmt.Sprintf(format, args...)))
}

func (c *Console) Infof(format string, args ...any) {
	fmt.Fprintln(c.out, infoStyle.Render(fmt.Sprintf(format, args...)))
}

// Mark prints a colored block followed by a message, used for per-item
// status lines (green = done, red = missing).
func (c *Console) Mark(ok bool, format string, args ...any) {
	block := successStyle.Render("█")
	if !ok {
		block = errorStyle.Render("█")
	}
	fmt.Fprintf(c.out, "%s %s\n", block, fmt.Sprintf(format, args...))
}

// Choose prints a numbered menu and reads an index from the input
// until a valid one is given.
func (c *Console) Choose(prompt string, options []string) (int, error) {
	for n, opt := range options {
		fmt.Fprintf(c.out, "%s %s\n", markStyle.Render(fmt.Sprintf("%2d :", n)), menuStyle.Render(opt))
	}
	for {
		fmt.Fprintf(c.out, "%s ", prompt)
		line, err := c.in.ReadString('\n')
		if err != nil {
			return 0, fmt.Errorf("read selection: %w", err)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || idx < 0 || idx >= len(options) {
			c.Warningf("pick a number between 0 and %d", len(options)-1)
			continue
		}
		return idx, nil
	}
}

// Pause waits for the user to press enter.
func (c *Console) Pause() error {
	if _, err := c.in.ReadString('\n'); err != nil {
		return fmt.Errorf("read pause: %w", err)
	}
	return nil
}

// Confirm asks a y/n question and returns whether the answer was yes.
func (c *Console) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(c.out, "%s (y/n) : ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	return strings.TrimSpace(line) == "y", nil
}
