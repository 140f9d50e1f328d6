package utils

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// expectFixed mirrors the padding rules: short input is left-padded, long
// input keeps its leading bytes.
func expectFixed(t *testing.T, input string, width int) []byte {
	t.Helper()
	digits := strings.TrimPrefix(input, "0x")
	if len(digits) < 2*width {
		digits = strings.Repeat("0", 2*width-len(digits)) + digits
	}
	want, err := hex.DecodeString(digits[:2*width])
	require.NoError(t, err)
	return want
}

func isHex(s string) bool {
	_, err := hex.DecodeString(strings.Repeat("0", len(s)%2) + s)
	return err == nil
}

// FuzzHexToBytes32 checks that HexToBytes32 never panics and that valid hex
// decodes with left padding or truncation to 32 bytes.
// Run with: go test -fuzz=FuzzHexToBytes32 -fuzztime=30s ./pkg/utils/
func FuzzHexToBytes32(f *testing.F) {
	f.Add("")
	f.Add("0x")
	f.Add("0x1")
	f.Add("0xabc")                                                                // odd length, left-padded
	f.Add("0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef")   // exact
	f.Add("1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdefff00") // leading bytes kept
	f.Add("0xGGGG")
	f.Add("0x" + strings.Repeat("ab", 500))

	f.Fuzz(func(t *testing.T, input string) {
		result, err := HexToBytes32(input)
		digits := strings.TrimPrefix(input, "0x")
		if len(digits) <= 64 && isHex(digits) {
			require.NoError(t, err)
		}
		if err == nil {
			require.Equal(t, expectFixed(t, input, 32), result[:])
		}
	})
}

// FuzzHexToBytes20 applies the same properties to 20-byte addresses.
// Run with: go test -fuzz=FuzzHexToBytes20 -fuzztime=30s ./pkg/utils/
func FuzzHexToBytes20(f *testing.F) {
	f.Add("")
	f.Add("0xdead")
	f.Add("0x1234567890abcdef12345678901234567890abcd")
	f.Add("0x1234567890abcdef12345678901234567890abcdeeee")
	f.Add("zz")

	f.Fuzz(func(t *testing.T, input string) {
		result, err := HexToBytes20(input)
		digits := strings.TrimPrefix(input, "0x")
		if len(digits) <= 40 && isHex(digits) {
			require.NoError(t, err)
		}
		if err == nil {
			require.Equal(t, expectFixed(t, input, 20), result[:])
		}
	})
}
