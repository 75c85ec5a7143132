package values

import (
	"encoding/binary"
	"fmt"
)

// alphabet is the base-85 character set used by value-index tokens. It
// matches Python's base64.b85decode alphabet exactly (digits, upper,
// lower, then 23 symbol characters) — not the Adobe/btoa alphabet used by
// encoding/ascii85 in the standard library, and not any Z85 variant, so it
// cannot be decoded by a stdlib call or a corpus library; see DESIGN.md.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz!#$%&()*+-;<=>?@^_`{|}~"

const padChar = '~' // last alphabet character, decode value 84

var decodeTable [256]int8

func init() {
	for i := range decodeTable {
		decodeTable[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		decodeTable[alphabet[i]] = int8(i)
	}
}

// decodeBytes decodes a base-85 token into its raw byte representation,
// following the same 5-characters-to-4-bytes grouping and trailing-pad
// trimming as Python's base64.b85decode.
func decodeBytes(token string) ([]byte, error) {
	padding := (5 - len(token)%5) % 5
	padded := make([]byte, len(token)+padding)
	copy(padded, token)
	for i := len(token); i < len(padded); i++ {
		padded[i] = padChar
	}

	out := make([]byte, 0, len(padded)/5*4)
	var buf [4]byte
	for i := 0; i < len(padded); i += 5 {
		chunk := padded[i : i+5]
		var acc uint64
		for j, c := range chunk {
			v := decodeTable[c]
			if v < 0 {
				return nil, fmt.Errorf("bad base85 character %q at position %d", c, i+j)
			}
			acc = acc*85 + uint64(v)
		}
		if acc > 0xFFFFFFFF {
			return nil, fmt.Errorf("base85 overflow in group starting at byte %d", i)
		}
		binary.BigEndian.PutUint32(buf[:], uint32(acc))
		out = append(out, buf[:]...)
	}
	if padding > 0 {
		out = out[:len(out)-padding]
	}
	return out, nil
}

// DecodeToken decodes a value-index token into the integer it addresses
// in values.json's ordered array.
func DecodeToken(token string) (uint64, error) {
	raw, err := decodeBytes(token)
	if err != nil {
		return 0, fmt.Errorf("decode token %q: %w", token, err)
	}
	var n uint64
	for _, b := range raw {
		n = n<<8 | uint64(b)
	}
	return n, nil
}
