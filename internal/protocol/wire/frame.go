package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// Frame wire layout, in order:
//
//	magic (1 byte, 0x1D)
//	op_code (varint)
//	payload_length (varint, byte count of everything that follows)
//	payload_length bytes of field records
//
// Only business-payload fields are encoded; the op code is the sole piece of
// protocol metadata.

// maxPayloadLength bounds the declared payload length to protect the server
// from a malicious or corrupt header. Chat payloads are small.
const maxPayloadLength = 1 << 20 // 1 MiB

// Frame is one decoded protocol message.
type Frame struct {
	Op      OpCode
	Payload Payload
}

// NewFrame returns a frame with the given op and no fields.
func NewFrame(op OpCode) *Frame {
	return &Frame{Op: op}
}

// Encode serializes the frame. Output is deterministic given the payload's
// field insertion order.
func (f *Frame) Encode() ([]byte, error) {
	var fieldData []byte
	var err error
	for _, field := range f.Payload.Fields() {
		fieldData, err = appendField(fieldData, field)
		if err != nil {
			return nil, fmt.Errorf("encode frame %s: %w", f.Op, err)
		}
	}

	buf := make([]byte, 0, 3+len(fieldData))
	buf = append(buf, MagicByte)
	buf = AppendUvarint(buf, uint64(f.Op))
	buf = AppendUvarint(buf, uint64(len(fieldData)))
	return append(buf, fieldData...), nil
}

// Decode reads exactly one frame from r.
//
// The caller is responsible for arming a read deadline on the underlying
// connection; a deadline expiring mid-frame surfaces as ErrReadTimeout and a
// transport closure as ErrConnectionClosed. Both are connection-fatal: decode
// never returns a partially-populated frame.
func Decode(r io.Reader) (*Frame, error) {
	var magic [1]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, classifyTransportError(err)
	}
	if magic[0] != MagicByte {
		return nil, fmt.Errorf("%w: got 0x%02X", ErrInvalidMagic, magic[0])
	}

	op, err := ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("read op code: %w", err)
	}
	if op > 0xFF {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOpCode, op)
	}

	length, err := ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("read payload length: %w", err)
	}
	if length > maxPayloadLength {
		return nil, fmt.Errorf("%w: declared payload length %d", ErrPayloadTooLarge, length)
	}

	fieldData := make([]byte, length)
	if _, err := io.ReadFull(r, fieldData); err != nil {
		return nil, classifyTransportError(err)
	}

	payload, err := parseFields(fieldData)
	if err != nil {
		return nil, fmt.Errorf("decode frame payload: %w", err)
	}

	return &Frame{Op: OpCode(op), Payload: *payload}, nil
}

// classifyTransportError maps raw socket errors onto the protocol's transport
// error taxonomy. Short reads are retried inside io.ReadFull; by the time an
// error reaches here the connection is unusable.
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrReadTimeout, err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return ErrConnectionClosed
	}

	return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
}
