package dap

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// parserState tags the two states of the response parser.
type parserState int

const (
	stateWaitForCommand parserState = iota
	stateWaitForResponse
)

// parser is the two-state response reassembly machine. It is owned
// exclusively by the Assembler goroutine; no synchronization is required.
type parser struct {
	log   *logrus.Entry
	state parserState

	// valid only in stateWaitForResponse
	pending        Command
	linesRemaining int
}

func newParser(log *logrus.Entry) *parser {
	return &parser{log: log, state: stateWaitForCommand}
}

// processLine interprets one already-trimmed, non-empty line and emits
// zero or more events on events. The only blocking point is the event
// send, which also watches ctx for cancellation.
func (p *parser) processLine(ctx context.Context, line string, events chan<- Event) error {
	switch p.state {
	case stateWaitForCommand:
		return p.processCommandLine(ctx, line, events)
	default:
		return p.processResponseLine(ctx, line, events)
	}
}

func (p *parser) processCommandLine(ctx context.Context, line string, events chan<- Event) error {
	tokens := strings.Fields(line)
	if len(tokens) == 0 || tokens[0] != Prompt {
		// Banner, timestamp, blank prompt or unrelated chatter: ignored.
		return nil
	}

	command, ok := CommandFromTokens(tokens[1:])
	if !ok {
		return nil
	}

	switch command.Kind {
	case KindWrite:
		event := Event{Kind: KindWrite, Address: command.Address, Data: command.Data}
		p.log.WithField("event", event).Debug("write event")
		return sendEvent(ctx, events, event)

	default: // KindRead
		p.log.WithField("command", command).Debug("awaiting response")
		p.pending = command
		p.linesRemaining = int(ceilDiv(command.NBytes, MaxBytesPerLine))
		p.state = stateWaitForResponse
		return nil
	}
}

func (p *parser) processResponseLine(ctx context.Context, line string, events chan<- Event) error {
	bytesSegment, ok := splitHexDump(line)
	if !ok {
		// Malformed dump: abandon the response, no event emitted.
		p.log.WithField("line", line).Debug("malformed response line, abandoning")
		p.state = stateWaitForCommand
		return nil
	}

	words, err := decodeHexDumpWords(bytesSegment)
	if err != nil {
		// Data corruption: the driver is desynchronized from the target.
		return err
	}

	base := p.pending.Address
	for idx, word := range words {
		event := Event{Kind: KindRead, Address: base + uint32(idx)*4, Data: word}
		p.log.WithField("event", event).Debug("read event")
		if err := sendEvent(ctx, events, event); err != nil {
			return err
		}
	}

	p.linesRemaining--
	if p.linesRemaining > 0 {
		p.pending.Address += MaxBytesPerLine
		p.pending.NBytes -= MaxBytesPerLine
		return nil
	}

	p.state = stateWaitForCommand
	return nil
}

func sendEvent(ctx context.Context, events chan<- Event, event Event) error {
	select {
	case events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ceilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}
