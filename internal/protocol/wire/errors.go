package wire

import "errors"

// Framing errors. Any of these is fatal to the connection that produced it:
// the read loop aborts and the connection is closed without a response.
var (
	// ErrInvalidMagic indicates the first byte of a frame was not MagicByte.
	ErrInvalidMagic = errors.New("wire: invalid magic byte")

	// ErrIncompleteVarint indicates the buffer ended before a terminating
	// varint byte (continuation bit clear) was found.
	ErrIncompleteVarint = errors.New("wire: incomplete varint")

	// ErrVarintOverflow indicates a varint encoded a value wider than 64 bits.
	ErrVarintOverflow = errors.New("wire: varint overflows uint64")

	// ErrOutOfRangeNibble indicates a type tag or field index above 15.
	ErrOutOfRangeNibble = errors.New("wire: nibble value out of range")

	// ErrUnsupportedFieldType indicates a payload value whose Go type has no
	// wire representation, or a type tag with no decoder.
	ErrUnsupportedFieldType = errors.New("wire: unsupported field type")

	// ErrUnknownField indicates a field index with no dictionary entry.
	ErrUnknownField = errors.New("wire: unknown field index")

	// ErrInvalidOpCode indicates an op-code varint outside the single-byte
	// range the protocol reserves for operations.
	ErrInvalidOpCode = errors.New("wire: invalid op code")

	// ErrPayloadTooLarge indicates a declared payload length above the
	// protocol's frame size limit.
	ErrPayloadTooLarge = errors.New("wire: payload too large")
)

// Transport errors. Fatal to the connection only; the server keeps serving
// other connections.
var (
	// ErrConnectionClosed indicates the transport closed mid-frame.
	ErrConnectionClosed = errors.New("wire: connection closed")

	// ErrReadTimeout indicates the read deadline expired mid-frame. The frame
	// cannot be resynchronized, so the connection must be terminated.
	ErrReadTimeout = errors.New("wire: read timeout")
)
