package dap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// rawRead is one event from the background serial reader goroutine: a
// chunk of bytes, or a terminal error.
type rawRead struct {
	data []byte
	err  error
}

// runAssembler is component C. It merges two sources into one line
// stream — raw bytes off the serial port, and locally-echoed commands
// rendered to their on-wire text — and hands whole lines to the parser as
// soon as they're available, retaining at most one partial trailing line.
func runAssembler(
	ctx context.Context,
	log *logrus.Entry,
	port io.Reader,
	echoIn <-chan Command,
	events chan<- Event,
	lineEnding LineEnding,
) error {
	raw := make(chan rawRead)
	readerDone := make(chan struct{})
	defer close(readerDone)
	go readSerial(port, raw, readerDone)

	p := newParser(log)
	buf := make([]byte, 0, LineBufferCapacity)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case command, ok := <-echoIn:
			if !ok {
				return ErrChannelClosed
			}
			buf = append(buf, FormatCommand(command)...)
			buf = append(buf, lineEnding.String()...)

		case chunk, ok := <-raw:
			if !ok {
				return ErrChannelClosed
			}
			if chunk.err != nil {
				return fmt.Errorf("dap: serial read failed: %w", chunk.err)
			}
			buf = append(buf, chunk.data...)
		}

		var err error
		buf, err = drainLines(ctx, p, buf, events)
		if err != nil {
			return err
		}
	}
}

// drainLines forwards every complete '\n'-terminated line in buf to the
// parser (trimmed of surrounding ASCII whitespace, including a preceding
// '\r'; empty lines are skipped), and returns the retained partial tail.
func drainLines(ctx context.Context, p *parser, buf []byte, events chan<- Event) ([]byte, error) {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return buf, nil
		}

		line := strings.TrimSpace(string(buf[:idx]))
		buf = buf[idx+1:]

		if line == "" {
			continue
		}
		if err := p.processLine(ctx, line, events); err != nil {
			return buf, err
		}
	}
}

// readSerial runs in its own goroutine for the lifetime of the Assembler,
// feeding raw reads into out until either the port errs out or done is
// closed.
func readSerial(port io.Reader, out chan<- rawRead, done <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- rawRead{data: chunk}:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case out <- rawRead{err: err}:
			case <-done:
			}
			return
		}
	}
}
