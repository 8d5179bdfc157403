// Package wire implements the dittochat binary wire protocol.
//
// A frame is a magic byte (0x1D), an op-code varint, a payload-length varint,
// and a sequence of field records. Each record starts with a tag byte whose
// high nibble is the value type and whose low nibble indexes a fixed field
// dictionary; the value follows as a varint-length-prefixed payload.
//
// The codec is strict: any decode failure aborts the frame and is fatal to
// the connection. It never returns a partially-constructed frame.
package wire
