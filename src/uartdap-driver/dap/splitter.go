package dap

import (
	"context"

	"github.com/sirupsen/logrus"
)

// runSplitter is component A. It pulls each application Command from
// commands and, for Echo::Local, duplicates it onto echoOut before always
// forwarding it onto serialOut — in that order, so the echo path always
// observes a command no later than the serial path. Ordering on serialOut
// equals the input order. It terminates cleanly when commands closes.
func runSplitter(
	ctx context.Context,
	log *logrus.Entry,
	commands <-chan Command,
	echoOut chan<- Command,
	serialOut chan<- Command,
	echo Echo,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case command, ok := <-commands:
			if !ok {
				return nil
			}
			log.WithField("command", command).Debug("received command")

			if echo == EchoLocal {
				if err := sendCommand(ctx, echoOut, command); err != nil {
					return err
				}
			}
			if err := sendCommand(ctx, serialOut, command); err != nil {
				return err
			}
		}
	}
}

func sendCommand(ctx context.Context, out chan<- Command, command Command) error {
	select {
	case out <- command:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
