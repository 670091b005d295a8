// Package sim implements a target debug-shell simulator: a development
// aid that speaks the same wire protocol dap.UartDap decodes, so the
// driver can be exercised without real target hardware.
package sim

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/uartdap/driver/src/uartdap-driver/dap"
)

// Model is the in-memory state of a simulated target: a sparse memory
// image, returning pseudo-random data for addresses never written.
type Model struct {
	mem map[uint32]uint32
	rng *rand.Rand
}

// NewModel returns an empty memory model in which every read of a
// never-written address returns a fresh value from a PRNG seeded with
// seed; those values are not stored.
func NewModel(seed int64) *Model {
	return &Model{
		mem: make(map[uint32]uint32),
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (m *Model) read(addr uint32) uint32 {
	if data, ok := m.mem[addr]; ok {
		return data
	}
	return m.rng.Uint32()
}

func (m *Model) write(addr, data uint32) {
	m.mem[addr] = data
}

// Serve models target's debug shell on port, reading command lines and
// writing prompt/response lines, until port's reader returns an error
// (including io.EOF when the peer disconnects). If echo is set, the
// simulator re-transmits every command line it receives before acting on
// it, mimicking a target whose shell echoes user input.
func Serve(log *logrus.Entry, port io.ReadWriter, target dap.Target, echo bool, lineEnding dap.LineEnding, model *Model) error {
	scanner := bufio.NewScanner(port)

	prompt := promptFor(target)

	if err := transmitLine(port, lineEnding, fmt.Sprintf("Modeling %s", target)); err != nil {
		return err
	}
	if err := transmit(port, prompt); err != nil {
		return err
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		log.WithField("line", line).Debug("simulator received")

		if echo {
			if err := transmitLine(port, lineEnding, line); err != nil {
				return err
			}
		}

		if line == "exit" {
			return nil
		}

		response, ok := model.process(line)
		if ok && response != "" {
			if err := transmitLine(port, lineEnding, response); err != nil {
				return err
			}
		}
		if err := transmit(port, prompt); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("sim: serial read failed: %w", err)
	}
	return io.EOF
}

// promptFor returns the prompt string a real target's debug shell would
// print for target. dap.Prompt ("DEBUG>") is the fixed token the parser
// matches against, independent of this: VxWorks targets are modeled here
// for wire fidelity, but driving one for real requires a parser that
// recognizes its own prompt, which is out of scope for this dev aid.
func promptFor(target dap.Target) string {
	switch target {
	case dap.TargetVxWorks:
		return "-> "
	default:
		return dap.Prompt + " "
	}
}

// process interprets one command line (without the prompt prefix) and
// returns the response line to print, or ok == false for unrecognized
// input (the simulator stays silent, the way unrelated chatter on a real
// target would be ignored by the parser).
func (m *Model) process(line string) (response string, ok bool) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return "", false
	}

	if tokens[0] == "help" || tokens[0] == "h" || tokens[0] == "?" {
		return "Available commands: mr kernel <addr> [nbytes], mw kernel <addr> <data>, exit", true
	}

	command, matched := dap.CommandFromTokens(tokens)
	if !matched {
		return "", false
	}

	switch command.Kind {
	case dap.KindWrite:
		m.write(command.Address, command.Data)
		return "", true
	default:
		return m.dumpLines(command.Address, command.NBytes), true
	}
}

// dumpLines renders the hex-dump response for a read of nbytes starting
// at addr, one line per dap.MaxBytesPerLine bytes, in the exact shape the
// parser decodes: "<addr-hex>: <bb> <bb> ... |<gutter>|". The gutter
// content is never interpreted by the parser (it only locates " |"), so a
// fixed placeholder is used regardless of byte count.
func (m *Model) dumpLines(addr, nbytes uint32) string {
	const gutter = "--------"

	var lines []string

	for remaining := nbytes; remaining > 0; {
		n := remaining
		if n > dap.MaxBytesPerLine {
			n = dap.MaxBytesPerLine
		}

		var tokens []string
		lineAddr := addr
		for emitted := uint32(0); emitted < n; {
			dword := m.read(lineAddr)
			for bi := 0; bi < 4 && emitted < n; bi++ {
				tokens = append(tokens, fmt.Sprintf("%02x", byte(dword>>(8*bi))))
				emitted++
			}
			lineAddr += 4
		}

		lines = append(lines, fmt.Sprintf("%x: %s |%s|", addr, strings.Join(tokens, " "), gutter))

		addr += dap.MaxBytesPerLine
		remaining -= n
	}

	return strings.Join(lines, "\n")
}

func transmit(w io.Writer, s string) error {
	_, err := io.WriteString(w, s)
	return err
}

func transmitLine(w io.Writer, lineEnding dap.LineEnding, s string) error {
	return transmit(w, s+lineEnding.String())
}
