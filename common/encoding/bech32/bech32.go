// Package bech32 implements Bech32 (BIP 173) encoding and the address
// checks used for chain account addresses such as "juno1...".
package bech32

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// Encode encodes 8-bits per byte data into a Bech32 string with the given
// human readable part.
func Encode(hrp string, data []byte) (string, error) {
	converted, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("bech32: encoding failed: %w", err)
	}
	return bech32.Encode(hrp, converted)
}

// Decode decodes a Bech32 string into its human readable part and
// 8-bits per byte data.
func Decode(text string) (string, []byte, error) {
	hrp, data, err := bech32.Decode(text)
	if err != nil {
		return "", nil, fmt.Errorf("bech32: decoding failed: %w", err)
	}
	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("bech32: decoding failed: %w", err)
	}
	return hrp, converted, nil
}

// ValidateAddress checks that addr is a well-formed lower-case Bech32
// account address. If hrp is non-empty the address must use that prefix.
func ValidateAddress(addr, hrp string) error {
	if addr != strings.ToLower(addr) {
		return fmt.Errorf("bech32: address '%s' is not lower case", addr)
	}
	prefix, data, err := Decode(addr)
	if err != nil {
		return err
	}
	if hrp != "" && prefix != hrp {
		return fmt.Errorf("bech32: address '%s' has prefix '%s', expected '%s'", addr, prefix, hrp)
	}
	if len(data) == 0 {
		return fmt.Errorf("bech32: address '%s' has no payload", addr)
	}
	return nil
}
