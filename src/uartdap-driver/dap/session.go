package dap

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// Port is the opaque full-duplex byte transport UartDap drives: any
// ordered, reliable byte stream (the reference implementation is an
// asynchronous serial port opened 8N1 at a configured baud rate by the
// transport package). UartDap treats port opening/configuration as
// outside its concern; it is handed an already-open Port.
type Port interface {
	io.Reader
	io.Writer
}

// UartDap is the host-side UART Debug Access Port session. It owns port
// exclusively for the lifetime of one Run call; Run spawns the Command
// Splitter, Serial Transmitter and Byte-to-Line Assembler (which embeds
// the Response Parser, invoked synchronously per line) and waits for the
// first of them to terminate.
type UartDap struct {
	port       Port
	echo       Echo
	lineEnding LineEnding
	log        *logrus.Entry
}

// New builds a session bound to an already-open transport. log may be
// nil, in which case a standalone entry with output discarded is used.
func New(port Port, echo Echo, lineEnding LineEnding, log *logrus.Entry) *UartDap {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = logrus.NewEntry(discard)
	}
	return &UartDap{port: port, echo: echo, lineEnding: lineEnding, log: log}
}

// Run drives the session to completion: it is consumed by exactly one
// call. Commands submitted on commands are transmitted in order. Run
// returns as soon as any one of the three components terminates,
// cancelling the other two; a clean shutdown is triggered by closing
// commands, which unwinds the splitter first. Run does not wait for the
// transmitter to drain: a command still queued for transmission when
// commands closes may never reach the wire.
func (d *UartDap) Run(ctx context.Context, commands <-chan Command, events chan<- Event) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	echo := make(chan Command, 1)
	serialTx := make(chan Command, 1)

	results := make(chan error, 3)

	go func() {
		results <- runSplitter(ctx, d.log.WithField("component", "splitter"), commands, echo, serialTx, d.echo)
	}()
	go func() {
		results <- runTransmitter(ctx, d.log.WithField("component", "transmitter"), d.port, serialTx, d.lineEnding)
	}()
	go func() {
		results <- runAssembler(ctx, d.log.WithField("component", "assembler"), d.port, echo, events, d.lineEnding)
	}()

	// First termination, success or error, ends the session and cancels
	// the rest via the deferred cancel().
	err := <-results
	return err
}
