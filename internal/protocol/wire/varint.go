package wire

import "io"

// Varint encoding: unsigned base-128 with continuation bit, identical to
// LEB128 unsigned. Each byte carries 7 value bits; the high bit is set on
// every byte except the last.

// maxVarintLen is the maximum number of bytes a uint64 varint can occupy.
const maxVarintLen = 10

// AppendUvarint appends the varint encoding of n to dst and returns the
// extended slice. The encoding is minimal: no redundant trailing bytes.
func AppendUvarint(dst []byte, n uint64) []byte {
	for n >= 0x80 {
		dst = append(dst, byte(n&0x7F)|0x80)
		n >>= 7
	}
	return append(dst, byte(n))
}

// Uvarint decodes a varint from the start of data and returns the value and
// the number of bytes consumed.
//
// Returns ErrIncompleteVarint if data ends before a byte with the
// continuation bit clear, and ErrVarintOverflow if the encoding does not fit
// in 64 bits.
func Uvarint(data []byte) (uint64, int, error) {
	var value uint64
	var shift uint

	for i, b := range data {
		if i == maxVarintLen {
			return 0, 0, ErrVarintOverflow
		}
		if shift == 63 && b > 1 {
			return 0, 0, ErrVarintOverflow
		}
		value |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
	}

	return 0, 0, ErrIncompleteVarint
}

// ReadUvarint decodes a varint from r one byte at a time. It is used for the
// frame header, where the payload length is not yet known and the varint must
// be consumed directly from the transport.
func ReadUvarint(r io.Reader) (uint64, error) {
	var value uint64
	var shift uint
	var buf [1]byte

	for i := 0; ; i++ {
		if i == maxVarintLen {
			return 0, ErrVarintOverflow
		}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, classifyTransportError(err)
		}
		b := buf[0]
		if shift == 63 && b > 1 {
			return 0, ErrVarintOverflow
		}
		value |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
	}
}
