package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame() *Frame {
	f := NewFrame(OpSendMessage)
	f.Payload.Add(FieldSender, "alice").
		Add(FieldRecipient, "bob").
		Add(FieldMessage, "hello there")
	return f
}

func TestFrameEncode(t *testing.T) {
	t.Run("StartsWithMagicByte", func(t *testing.T) {
		data, err := sampleFrame().Encode()
		require.NoError(t, err)
		assert.Equal(t, byte(MagicByte), data[0])
	})

	t.Run("IsDeterministicGivenFieldOrder", func(t *testing.T) {
		first, err := sampleFrame().Encode()
		require.NoError(t, err)
		second, err := sampleFrame().Encode()
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("EncodesEmptyPayload", func(t *testing.T) {
		data, err := NewFrame(OpListAccounts).Encode()
		require.NoError(t, err)
		assert.Equal(t, []byte{MagicByte, byte(OpListAccounts), 0x00}, data)
	})

	t.Run("DeclaredLengthCoversAllFieldRecords", func(t *testing.T) {
		data, err := sampleFrame().Encode()
		require.NoError(t, err)

		// magic + op varint + length varint precede the payload
		length, n, err := Uvarint(data[2:])
		require.NoError(t, err)
		assert.Equal(t, uint64(len(data)-2-n), length)
	})
}

func TestFrameDecode(t *testing.T) {
	t.Run("RoundTripsAllValueTypes", func(t *testing.T) {
		original := NewFrame(OpOk)
		original.Payload.Add(FieldMessage, "done").
			Add(FieldUnreadCount, uint64(42)).
			Add(FieldMessageIDs, []string{"m1", "m2", "m3"})

		data, err := original.Encode()
		require.NoError(t, err)

		decoded, err := Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, original.Op, decoded.Op)
		assert.Equal(t, original.Payload.Fields(), decoded.Payload.Fields())
	})

	t.Run("FailsOnInvalidMagic", func(t *testing.T) {
		data, err := sampleFrame().Encode()
		require.NoError(t, err)
		data[0] = 0x42

		_, err = Decode(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("FailsOnTruncatedPayload", func(t *testing.T) {
		data, err := sampleFrame().Encode()
		require.NoError(t, err)

		// Truncating anywhere before the declared payload length must fail;
		// a partially-populated frame is never returned.
		for cut := 1; cut < len(data); cut++ {
			_, err := Decode(bytes.NewReader(data[:len(data)-cut]))
			assert.Error(t, err, "truncated by %d bytes", cut)
		}
	})

	t.Run("TruncationMidPayloadIsConnectionClosed", func(t *testing.T) {
		data, err := sampleFrame().Encode()
		require.NoError(t, err)

		_, err = Decode(bytes.NewReader(data[:len(data)-1]))
		assert.ErrorIs(t, err, ErrConnectionClosed)
	})

	t.Run("FailsOnEmptyStream", func(t *testing.T) {
		_, err := Decode(bytes.NewReader(nil))
		assert.ErrorIs(t, err, ErrConnectionClosed)
	})

	t.Run("FailsOnOversizedDeclaredLength", func(t *testing.T) {
		buf := []byte{MagicByte, byte(OpOk)}
		buf = AppendUvarint(buf, maxPayloadLength+1)

		_, err := Decode(bytes.NewReader(buf))
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
	})

	t.Run("FailsOnHostileListCount", func(t *testing.T) {
		tag, err := PackTag(TypeStringList, FieldMessageIDs)
		require.NoError(t, err)

		// A tiny frame declaring a gigantic item count must surface as a
		// decode error on that connection, never as a panic.
		record := append([]byte{tag}, AppendUvarint(nil, 1<<62)...)
		buf := []byte{MagicByte, byte(OpDeleteMessages)}
		buf = AppendUvarint(buf, uint64(len(record)))
		buf = append(buf, record...)

		_, err = Decode(bytes.NewReader(buf))
		assert.ErrorIs(t, err, ErrIncompleteVarint)
	})

	t.Run("FailsOnOpCodeBeyondOneByte", func(t *testing.T) {
		buf := []byte{MagicByte}
		buf = AppendUvarint(buf, 300) // op code
		buf = AppendUvarint(buf, 0)   // payload length

		_, err := Decode(bytes.NewReader(buf))
		assert.ErrorIs(t, err, ErrInvalidOpCode)
	})

	t.Run("SurfacesReadTimeoutFromDeadline", func(t *testing.T) {
		_, err := Decode(timeoutReader{})
		assert.ErrorIs(t, err, ErrReadTimeout)
	})
}

// timeoutReader simulates a connection whose read deadline expired.
type timeoutReader struct{}

func (timeoutReader) Read([]byte) (int, error) {
	return 0, timeoutError{}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
