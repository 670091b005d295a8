package dap

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// runTransmitter is component B. For each Command received, it formats
// the command to its canonical text form, writes it, then writes the
// configured line ending; both writes complete before the next command is
// formatted. It owns port exclusively for its lifetime.
func runTransmitter(
	ctx context.Context,
	log *logrus.Entry,
	port io.Writer,
	commands <-chan Command,
	lineEnding LineEnding,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case command, ok := <-commands:
			if !ok {
				return nil
			}

			text := FormatCommand(command)
			log.WithField("data", text).Debug("transmitting serial")

			if _, err := io.WriteString(port, text); err != nil {
				return fmt.Errorf("dap: serial write failed: %w", err)
			}
			if _, err := io.WriteString(port, lineEnding.String()); err != nil {
				return fmt.Errorf("dap: serial write failed: %w", err)
			}
		}
	}
}
