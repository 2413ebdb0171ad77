package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// terminalInput answers agent questions from the terminal. It is only
// available when stdin is a TTY; otherwise agents see user input as
// unavailable and must work without it.
type terminalInput struct {
	reader *bufio.Reader
}

func newTerminalInput() *terminalInput {
	return &terminalInput{reader: bufio.NewReader(os.Stdin)}
}

func (t *terminalInput) Available() bool {
	return isatty.IsTerminal(os.Stdin.Fd())
}

func (t *terminalInput) Fetch(ctx context.Context, prompt string) (string, error) {
	fmt.Printf("\n%s %s\n> ", color.CyanString("agent asks:"), prompt)

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := t.reader.ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(res.line), nil
	}
}
