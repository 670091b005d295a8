// Command uartsim models a target's debug shell over a real serial
// device, so uartdap (or a developer) can be exercised without hardware.
// Flags mirror the bring-up server fixture this protocol was derived
// from: baud rate, target OS, line ending and echo behavior.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/uartdap/driver/src/uartdap-driver/dap"
	"github.com/uartdap/driver/src/uartdap-driver/sim"
	"github.com/uartdap/driver/src/uartdap-driver/transport"
)

func main() {
	var (
		baud        = flag.Int("baud-rate", 115200, "serial baud rate")
		targetFlag  = flag.String("os", "vxworks", "simulated target OS: vxworks or integrity")
		lineEndFlag = flag.String("line-ending", "lf", "line ending: lf or crlf")
		echo        = flag.Bool("echo", false, "echo received command lines before acting on them")
		logLevel    = flag.String("log-level", "info", "logrus level: debug, info, warn, error")
	)
	flag.IntVar(baud, "b", 115200, "shorthand for -baud-rate")
	flag.Parse()

	device := flag.Arg(0)
	if device == "" {
		fmt.Fprintln(os.Stderr, "usage: uartsim [flags] <device>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}
	entry := logrus.NewEntry(log)

	target, err := parseTarget(*targetFlag)
	if err != nil {
		entry.WithError(err).Fatal("invalid -os")
	}
	lineEnding, err := parseLineEnding(*lineEndFlag)
	if err != nil {
		entry.WithError(err).Fatal("invalid -line-ending")
	}

	port, err := transport.OpenSerial(entry, device, *baud)
	if err != nil {
		entry.WithError(err).Fatal("could not open device")
	}
	defer port.Close()

	model := sim.NewModel(time.Now().UnixNano())
	if err := sim.Serve(entry, port, target, *echo, lineEnding, model); err != nil {
		entry.WithError(err).Fatal("simulator exited")
	}
}

func parseTarget(s string) (dap.Target, error) {
	switch s {
	case "vxworks":
		return dap.TargetVxWorks, nil
	case "integrity":
		return dap.TargetIntegrity, nil
	default:
		return 0, fmt.Errorf("unknown target %q", s)
	}
}

func parseLineEnding(s string) (dap.LineEnding, error) {
	switch s {
	case "lf":
		return dap.LF, nil
	case "crlf":
		return dap.CRLF, nil
	default:
		return 0, fmt.Errorf("unknown line ending %q", s)
	}
}
