// Command uartdap drives a UART Debug Access Port session against a real
// serial device: commands are read line-by-line from stdin in the same
// "mr kernel <addr> [nbytes]" / "mw kernel <addr> <data>" grammar the
// target itself accepts, and decoded events are logged and, if -http is
// set, fanned out to WebSocket subscribers of a small monitor dashboard.
// If -load-image is set, a binary image is pulled over TFTP and written
// into target memory before stdin commands are accepted.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/uartdap/driver/src/uartdap-driver/dap"
	"github.com/uartdap/driver/src/uartdap-driver/image"
	"github.com/uartdap/driver/src/uartdap-driver/monitor"
	"github.com/uartdap/driver/src/uartdap-driver/service"
	"github.com/uartdap/driver/src/uartdap-driver/transport"
)

func main() {
	var (
		baud        = flag.Int("baud-rate", 115200, "serial baud rate")
		echoFlag    = flag.String("echo", "local", "echo mode: local or remote")
		lineEndFlag = flag.String("line-ending", "lf", "outbound line ending: lf or crlf")
		targetFlag  = flag.String("target", "vxworks", "target OS, informational: vxworks or integrity")
		httpAddr    = flag.String("http", "", "if set, serve the monitor dashboard on this address (e.g. :8472)")
		logLevel    = flag.String("log-level", "info", "logrus level: debug, info, warn, error")
		serviceName = flag.String("service-action", "", "OS service control action: install, uninstall, start, stop, restart (default: run in foreground)")
		loadImage   = flag.String("load-image", "", "if set, pull <tftp-host:port>/<remote-file> and write it into target memory before accepting stdin commands")
		loadAddr    = flag.String("load-addr", "0x0", "base target address -load-image is written to")
	)
	flag.IntVar(baud, "b", 115200, "shorthand for -baud-rate")
	flag.Parse()

	device := flag.Arg(0)
	if device == "" {
		fmt.Fprintln(os.Stderr, "usage: uartdap [flags] <device>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}
	entry := logrus.NewEntry(log)

	echo, err := parseEcho(*echoFlag)
	if err != nil {
		entry.WithError(err).Fatal("invalid -echo")
	}
	lineEnding, err := parseLineEnding(*lineEndFlag)
	if err != nil {
		entry.WithError(err).Fatal("invalid -line-ending")
	}
	target, err := parseTarget(*targetFlag)
	if err != nil {
		entry.WithError(err).Fatal("invalid -target")
	}

	var imageLoad *imageLoadSpec
	if *loadImage != "" {
		imageLoad, err = parseImageLoadSpec(*loadImage, *loadAddr)
		if err != nil {
			entry.WithError(err).Fatal("invalid -load-image")
		}
	}

	runner := func(ctx context.Context) error {
		return run(ctx, entry.WithField("target", target), device, *baud, echo, lineEnding, *httpAddr, imageLoad)
	}

	if err := service.Control(entry, "uartdap", "UART Debug Access Port", "Drives a target debug console over UART.", *serviceName, runner); err != nil {
		entry.WithError(err).Fatal("service control failed")
	}
}

// imageLoadSpec describes a TFTP image to pull and write into target memory
// before the session starts accepting stdin commands.
type imageLoadSpec struct {
	tftpAddr   string
	remoteFile string
	baseAddr   uint32
}

// parseImageLoadSpec parses the -load-image "host:port/remote-file" and
// -load-addr flags into an imageLoadSpec.
func parseImageLoadSpec(loadImage, loadAddr string) (*imageLoadSpec, error) {
	tftpAddr, remoteFile, ok := strings.Cut(loadImage, "/")
	if !ok || tftpAddr == "" || remoteFile == "" {
		return nil, fmt.Errorf("expected <tftp-host:port>/<remote-file>, got %q", loadImage)
	}
	baseAddr, err := dap.ParseBasedInt(loadAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid -load-addr %q: %w", loadAddr, err)
	}
	return &imageLoadSpec{tftpAddr: tftpAddr, remoteFile: remoteFile, baseAddr: baseAddr}, nil
}

func run(ctx context.Context, log *logrus.Entry, device string, baud int, echo dap.Echo, lineEnding dap.LineEnding, httpAddr string, imageLoad *imageLoadSpec) error {
	port, err := transport.OpenWithBackoff(ctx, log, device, baud)
	if err != nil {
		return fmt.Errorf("uartdap: could not open %s: %w", device, err)
	}
	defer port.Close()

	mon := monitor.New(log)
	defer mon.Shutdown()
	mon.PublishConnected(device)

	if httpAddr != "" {
		server := &http.Server{Addr: httpAddr, Handler: mon}
		go func() {
			log.WithField("address", httpAddr).Info("serving monitor dashboard")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("monitor server failed")
			}
		}()
		go func() {
			<-ctx.Done()
			server.Close()
		}()
	}

	commands := make(chan dap.Command, 1)
	events := make(chan dap.Event, 1)

	go logEvents(ctx, log, mon, events)
	go monitorResources(ctx, log)

	done := make(chan error, 1)
	session := dap.New(port, echo, lineEnding, log)
	go func() { done <- session.Run(ctx, commands, events) }()

	if imageLoad != nil {
		if err := loadImageOverTFTP(ctx, log, commands, imageLoad); err != nil {
			log.WithError(err).Error("image load failed")
		}
	}

	go readCommands(ctx, log, commands)

	err = <-done
	mon.PublishDisconnected()
	return err
}

// loadImageOverTFTP pulls imageLoad's remote file into a temporary file and
// writes it into target memory through commands, blocking until done. It
// runs before readCommands starts so that it, not stdin, is the only sender
// until it returns.
func loadImageOverTFTP(ctx context.Context, log *logrus.Entry, commands chan<- dap.Command, spec *imageLoadSpec) error {
	tmp, err := os.CreateTemp("", "uartdap-image-*")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	log.WithFields(logrus.Fields{"tftpAddr": spec.tftpAddr, "remoteFile": spec.remoteFile}).Info("pulling image over TFTP")
	if err := image.Pull(spec.tftpAddr, spec.remoteFile, tmpPath); err != nil {
		return err
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("could not read pulled image: %w", err)
	}

	log.WithFields(logrus.Fields{"bytes": len(data), "baseAddr": fmt.Sprintf("0x%x", spec.baseAddr)}).Info("writing image into target memory")
	return image.Load(ctx, commands, spec.baseAddr, data)
}

// readCommands parses stdin lines in the target's own command grammar and
// forwards them to commands until stdin closes or ctx is cancelled.
func readCommands(ctx context.Context, log *logrus.Entry, commands chan<- dap.Command) {
	defer close(commands)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		command, ok := dap.CommandFromTokens(strings.Fields(line))
		if !ok {
			log.WithField("line", line).Warn("could not parse command")
			continue
		}
		select {
		case commands <- command:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Error("stdin read failed")
	}
}

func logEvents(ctx context.Context, log *logrus.Entry, mon *monitor.Handle, events <-chan dap.Event) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			log.WithField("event", event).Info("event")
			mon.Publish(event)
		case <-ctx.Done():
			return
		}
	}
}

func monitorResources(ctx context.Context, log *logrus.Entry) {
	var m runtime.MemStats
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runtime.ReadMemStats(&m)
			log.WithField("sysMem", m.Sys/1024).WithField("routines", runtime.NumGoroutine()).Info("monitoring runtime")
		case <-ctx.Done():
			return
		}
	}
}

func parseEcho(s string) (dap.Echo, error) {
	switch s {
	case "local":
		return dap.EchoLocal, nil
	case "remote":
		return dap.EchoRemote, nil
	default:
		return 0, fmt.Errorf("unknown echo mode %q", s)
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
