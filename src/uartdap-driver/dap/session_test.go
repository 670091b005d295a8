package dap

import (
	"context"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

// runOnPty opens a PTY pair, runs a UartDap session on the slave side and
// returns the master end for the test to act as the simulated target.
func runOnPty(t *testing.T) (master *ptyMaster, commands chan Command, events chan Event) {
	t.Helper()

	m, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { m.Close(); slave.Close() })

	commands = make(chan Command, 1)
	events = make(chan Event, 1)

	d := New(slave, EchoLocal, LF, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, commands, events) }()
	t.Cleanup(func() {
		close(commands)
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("Run did not return after commands was closed")
		}
	})

	return &ptyMaster{t: t, f: m}, commands, events
}

// ptyMaster is a tiny helper around the PTY master file descriptor for
// readable test call sites.
type ptyMaster struct {
	t *testing.T
	f interface {
		Read([]byte) (int, error)
		Write([]byte) (int, error)
	}
}

func (p *ptyMaster) writeString(s string) {
	p.t.Helper()
	_, err := p.f.Write([]byte(s))
	require.NoError(p.t, err)
}

// expectLine reads until it has accumulated len(want) bytes or a
// deadline passes; a PTY write can arrive split across more than one
// Read, since the transmitter writes the command text and its line
// ending as two separate calls.
func (p *ptyMaster) expectLine(want string) {
	p.t.Helper()
	deadline := time.After(time.Second)
	got := make([]byte, 0, len(want))
	chunk := make([]byte, len(want))

	for len(got) < len(want) {
		read := make(chan int, 1)
		errs := make(chan error, 1)
		go func() {
			n, err := p.f.Read(chunk)
			if err != nil {
				errs <- err
				return
			}
			read <- n
		}()

		select {
		case n := <-read:
			got = append(got, chunk[:n]...)
		case err := <-errs:
			require.NoError(p.t, err)
		case <-deadline:
			p.t.Fatalf("timeout waiting for %q, got %q so far", want, got)
		}
	}
	require.Equal(p.t, want, string(got))
}

func TestSession_PerformsWriteCommand(t *testing.T) {
	master, commands, events := runOnPty(t)

	master.writeString("DEBUG> ")
	time.Sleep(50 * time.Millisecond)

	commands <- WriteCommand(0x600df00d, 0xa5a5a5a5)

	select {
	case e := <-events:
		require.Equal(t, Event{Kind: KindWrite, Address: 0x600df00d, Data: 0xa5a5a5a5}, e)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for write event")
	}

	master.expectLine("mw kernel 0x600df00d 0xa5a5a5a5\n")
}

func TestSession_PerformsReadCommand(t *testing.T) {
	master, commands, events := runOnPty(t)

	master.writeString("DEBUG> ")
	time.Sleep(50 * time.Millisecond)

	commands <- ReadCommand(0x600df00d, 20)
	master.expectLine("mr kernel 0x600df00d 20\n")

	master.writeString("600df00d: 5a 5a 5a 5a  01 02 03 04  05 06 07 08  09 0a 0b 0c |-------|\n")

	want := []Event{
		{Kind: KindRead, Address: 0x600df00d, Data: 0x5a5a5a5a},
		{Kind: KindRead, Address: 0x600df011, Data: 0x04030201},
		{Kind: KindRead, Address: 0x600df015, Data: 0x08070605},
		{Kind: KindRead, Address: 0x600df019, Data: 0x0c0b0a09},
	}
	for _, w := range want {
		select {
		case e := <-events:
			require.Equal(t, w, e)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %v", w)
		}
	}

	master.writeString("600df01d: 0d 0e 0f 10                                        |-------|\n")
	select {
	case e := <-events:
		require.Equal(t, Event{Kind: KindRead, Address: 0x600df01d, Data: 0x100f0e0d}, e)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for final read event")
	}
}

func TestSession_EndsWhenCommandsCloses(t *testing.T) {
	// runOnPty's cleanup closes commands and waits for Run to return; a
	// hang here would fail via the cleanup's own timeout.
	runOnPty(t)
}
