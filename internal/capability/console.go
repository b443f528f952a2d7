package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gookit/color"

	"chatrelay/internal/session"
	"chatrelay/util"
)

const (
	connectFailedNotice = "Could not connect to server."
	disconnectedNotice  = "Disconnected from server."
	echoPrefix          = "Me: "
)

// Console is the interactive chat client: typed lines go to the relay,
// received lines are printed.
type Console struct {
	In  io.Reader
	Out io.Writer

	// Echo prints each sent line back as "Me: <text>".
	Echo bool

	// Color enables ANSI styling of notices and the echo prefix.
	Color bool

	mu sync.Mutex
}

// NewConsole returns a Console reading in and printing to out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{In: in, Out: out}
}

// Line prints a received line verbatim.
func (c *Console) Line(text string) {
	c.println(text)
}

// ConnectFailed prints the connection failure notice.
func (c *Console) ConnectFailed(err error) {
	c.println(c.style(connectFailedNotice, color.FgRed, color.OpBold))
}

// Disconnected prints a notice when the relay goes away.
func (c *Console) Disconnected(err error) {
	msg := disconnectedNotice
	if err != nil {
		msg = fmt.Sprintf("%s (%v)", disconnectedNotice, err)
	}
	c.println(c.style(msg, color.FgYellow))
}

// Handle sends every non-blank input line until input ends, the
// session disconnects, or ctx is cancelled.
func (c *Console) Handle(ctx context.Context, sess *session.Session) error {
	defer finish(sess)

	inputDone := make(chan error, 1)
	go func() { inputDone <- c.pump(sess) }()

	select {
	case err := <-inputDone:
		return err
	case <-sess.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (c *Console) pump(sess *session.Session) error {
	reader := util.NewLineReader(c.In, 0)
	for {
		line, err := reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := sess.Send(line); err != nil {
			return err
		}
		if c.Echo {
			c.println(c.style(echoPrefix, color.FgCyan) + line)
		}
	}
}

func (c *Console) style(s string, opts ...color.Color) string {
	if !c.Color {
		return s
	}
	return color.New(opts...).Render(s)
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.Out, s)
}
