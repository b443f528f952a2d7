package capability

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"chatrelay/internal/session"
	"chatrelay/util"
)

// Exec puts a child process in the chat: every received line is
// written to its stdin and every line it prints is sent to the relay.
// Either Program (-e) or Command (-c) must be set.
type Exec struct {
	Program string // -e: execute a program directly
	Command string // -c: execute via the system shell
	Stderr  io.Writer

	logger *util.Logger
	stdinR *io.PipeReader
	stdinW *io.PipeWriter
}

// NewExec returns an Exec for program or command.
func NewExec(program, command string, logger *util.Logger) *Exec {
	r, w := io.Pipe()
	return &Exec{
		Program: program,
		Command: command,
		Stderr:  os.Stderr,
		logger:  logger.Named("exec"),
		stdinR:  r,
		stdinW:  w,
	}
}

// Line forwards a received line to the child's stdin.  It blocks until
// the child reads it; once the child has exited the line is dropped.
func (e *Exec) Line(text string) {
	if err := util.WriteLine(e.stdinW, text); err != nil {
		e.logger.Debug("dropping %q: %v", text, err)
	}
}

// ConnectFailed logs the failure; the child is never started.
func (e *Exec) ConnectFailed(err error) {
	e.logger.Error("could not connect to server: %v", err)
}

// Disconnected gives the child EOF on stdin.
func (e *Exec) Disconnected(err error) {
	if err != nil {
		e.logger.Verbose("disconnected: %v", err)
	}
	e.stdinW.Close() //nolint:errcheck
}

// Handle starts the child and relays its output until it exits.  A
// session that disconnects first kills the child.
func (e *Exec) Handle(ctx context.Context, sess *session.Session) error {
	defer finish(sess)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd, err := e.command(ctx)
	if err != nil {
		return err
	}
	cmd.Stderr = e.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	e.logger.Debug("starting %s", cmd.String())
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec %q: %w", cmd.Path, err)
	}

	// Copied by hand so that Wait does not block on a pending Line.
	go func() {
		io.Copy(stdin, e.stdinR) //nolint:errcheck
		stdin.Close()            //nolint:errcheck
	}()

	go func() {
		select {
		case <-sess.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	reader := util.NewLineReader(stdout, 0)
	for {
		line, err := reader.ReadLine()
		if err != nil {
			break
		}
		if err := sess.Send(line); err != nil {
			cancel()
			break
		}
	}

	waitErr := cmd.Wait()
	e.stdinR.Close() //nolint:errcheck
	if ctx.Err() != nil {
		return nil
	}
	if waitErr != nil {
		return fmt.Errorf("exec %q: %w", cmd.Path, waitErr)
	}
	return nil
}

func (e *Exec) command(ctx context.Context) (*exec.Cmd, error) {
	switch {
	case e.Command != "":
		if runtime.GOOS == "windows" {
			return exec.CommandContext(ctx, "cmd.exe", "/C", e.Command), nil
		}
		return exec.CommandContext(ctx, "/bin/sh", "-c", e.Command), nil
	case e.Program != "":
		return exec.CommandContext(ctx, e.Program), nil
	default:
		return nil, fmt.Errorf("no command specified for exec mode")
	}
}
