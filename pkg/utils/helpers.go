package utils

import (
	"encoding/hex"
	"strings"
)

// hexToFixed decodes hexStr (with or without 0x prefix) into dst. Short input
// is left-padded with zeros; long input keeps its leading bytes.
func hexToFixed(hexStr string, dst []byte) error {
	hexStr = strings.TrimPrefix(hexStr, "0x")
	width := 2 * len(dst)
	if len(hexStr) < width {
		hexStr = strings.Repeat("0", width-len(hexStr)) + hexStr
	}
	_, err := hex.Decode(dst, []byte(hexStr[:width]))
	return err
}

// HexToBytes32 converts a hex string to a 32-byte array, e.g. a block or transaction hash.
func HexToBytes32(hexStr string) ([32]byte, error) {
	var out [32]byte
	if err := hexToFixed(hexStr, out[:]); err != nil {
		return [32]byte{}, err
	}
	return out, nil
}

// HexToBytes20 converts a hex string to a 20-byte array, e.g. an address.
func HexToBytes20(hexStr string) ([20]byte, error) {
	var out [20]byte
	if err := hexToFixed(hexStr, out[:]); err != nil {
		return [20]byte{}, err
	}
	return out, nil
}
