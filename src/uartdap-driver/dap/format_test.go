package dap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatCommand(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
		want string
	}{
		{"read", ReadCommand(0x600df00d, 20), "mr kernel 0x600df00d 20"},
		{"write", WriteCommand(0x600df00d, 0xa5a5a5a5), "mw kernel 0x600df00d 0xa5a5a5a5"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, FormatCommand(c.cmd))
		})
	}
}

func TestCommandFromTokens(t *testing.T) {
	cases := []struct {
		name   string
		tokens []string
		want   Command
		ok     bool
	}{
		{"read default nbytes", []string{"mr", "kernel", "0x600df00d"}, ReadCommand(0x600df00d, 0), true},
		{"read explicit nbytes", []string{"mr", "kernel", "0x600df00d", "20"}, ReadCommand(0x600df00d, 20), true},
		{"write", []string{"mw", "kernel", "0x600df00d", "0xa5a5a5a5"}, WriteCommand(0x600df00d, 0xa5a5a5a5), true},
		{"not kernel", []string{"mr", "other", "0x1"}, Command{}, false},
		{"unknown verb", []string{"mz", "kernel", "0x1"}, Command{}, false},
		{"too few tokens", []string{"mr"}, Command{}, false},
		{"bad address", []string{"mr", "kernel", "not-a-number"}, Command{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := CommandFromTokens(c.tokens)
			require.Equal(t, c.ok, ok)
			if c.ok {
				require.Equal(t, c.want, got)
			}
		})
	}
}

func TestParseBasedInt(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
	}{
		{"20", 20},
		{"0x600df00d", 0x600df00d},
		{"0X10", 0x10},
		{"0b101", 0b101},
	}
	for _, c := range cases {
		got, err := ParseBasedInt(c.in)
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}

	_, err := ParseBasedInt("not-a-number")
	require.Error(t, err)
}

func TestSplitHexDump(t *testing.T) {
	segment, ok := splitHexDump("600df00d: 5a 5a 5a 5a |-------|")
	require.True(t, ok)
	require.Equal(t, "5a 5a 5a 5a", segment)

	_, ok = splitHexDump("no delimiters here")
	require.False(t, ok)

	_, ok = splitHexDump("missing colon 5a 5a |-------|")
	require.False(t, ok)
}

func TestDecodeHexDumpWords(t *testing.T) {
	words, err := decodeHexDumpWords("5a 5a 5a 5a  01 02 03 04")
	require.NoError(t, err)
	require.Equal(t, []uint32{0x5a5a5a5a, 0x04030201}, words)

	// A trailing incomplete group is silently dropped.
	words, err = decodeHexDumpWords("01 02 03 04 05 06")
	require.NoError(t, err)
	require.Equal(t, []uint32{0x04030201}, words)

	_, err = decodeHexDumpWords("01 zz 03 04")
	require.ErrorIs(t, err, ErrMalformedHex)
}
