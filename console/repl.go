package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// RunREPL reads console lines from in and submits each one to the host
// context. It returns on EOF, on "exit" or "quit", or when ctx is done.
// A prompt is shown only when stdin is a terminal.
func (c *Console) RunREPL(ctx context.Context, in io.Reader) error {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- scanner.Err()
	}()

	for {
		if interactive {
			c.prompt()
		}
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errCh:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "exit", "quit":
				return nil
			}
			if err := c.Submit(line); err != nil {
				return err
			}
		}
	}
}

func (c *Console) prompt() {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprint(c.out, c.printer.InfoString("%s > ", c.AppName))
}
