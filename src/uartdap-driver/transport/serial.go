// Package transport opens the physical serial link UartDap drives. It is
// kept outside the dap package deliberately: UartDap treats the link as
// an opaque full-duplex byte transport and never sets port parameters
// itself.
package transport

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Port is a full-duplex byte transport that can also be closed. It
// satisfies dap.Port by embedding io.Reader/io.Writer.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// OpenSerial opens path at baud, 8 data bits, no parity, one stop bit —
// the only configuration UartDap's wire protocol assumes.
func OpenSerial(log *logrus.Entry, path string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	log.WithField("path", path).WithField("baud", baud).Info("opening serial port")
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: could not open %s: %w", path, err)
	}

	// Flush anything the OS buffered from before we were listening.
	if err := port.ResetInputBuffer(); err != nil {
		log.WithError(err).Debug("could not reset input buffer")
	}

	return port, nil
}
