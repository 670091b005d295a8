// Package image handles the embedded bring-up workflow of side-loading a
// binary memory image over TFTP alongside the UART debug console: Pull
// and Push move a raw image to/from a TFTP server, and Load walks a
// fetched image into target memory by reusing the core's own dap.Command
// write path, one word at a time, instead of inventing a second
// memory-write mechanism.
package image

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/pin/tftp"

	"github.com/uartdap/driver/src/uartdap-driver/dap"
)

// Pull fetches remoteFile from the TFTP server at addr ("host:port") and
// writes it to localPath.
func Pull(addr, remoteFile, localPath string) error {
	client, err := tftp.NewClient(addr)
	if err != nil {
		return fmt.Errorf("image: could not create TFTP client: %w", err)
	}

	receiver, err := client.Receive(remoteFile, "octet")
	if err != nil {
		return fmt.Errorf("image: TFTP receive of %s failed: %w", remoteFile, err)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("image: could not create %s: %w", localPath, err)
	}
	defer out.Close()

	if _, err := receiver.WriteTo(out); err != nil {
		return fmt.Errorf("image: TFTP transfer of %s failed: %w", remoteFile, err)
	}
	return nil
}

// Push sends localPath to the TFTP server at addr as remoteFile.
func Push(addr, localPath, remoteFile string) error {
	client, err := tftp.NewClient(addr)
	if err != nil {
		return fmt.Errorf("image: could not create TFTP client: %w", err)
	}

	in, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("image: could not open %s: %w", localPath, err)
	}
	defer in.Close()

	sender, err := client.Send(remoteFile, "octet")
	if err != nil {
		return fmt.Errorf("image: TFTP send of %s failed: %w", remoteFile, err)
	}

	if _, err := sender.ReadFrom(in); err != nil {
		return fmt.Errorf("image: TFTP transfer of %s failed: %w", remoteFile, err)
	}
	return nil
}

// Load walks data into target memory starting at baseAddr, submitting one
// dap.WriteCommand per 32-bit word (little-endian, matching the wire
// convention the parser decodes reads with). A trailing partial word is
// zero-padded in its high bytes. It returns when all words have been
// submitted or ctx is cancelled.
func Load(ctx context.Context, commands chan<- dap.Command, baseAddr uint32, data []byte) error {
	for offset := 0; offset < len(data); offset += 4 {
		var word [4]byte
		copy(word[:], data[offset:])
		command := dap.WriteCommand(baseAddr+uint32(offset), binary.LittleEndian.Uint32(word[:]))

		select {
		case commands <- command:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
