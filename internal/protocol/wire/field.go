package wire

import (
	"fmt"
	"unicode/utf8"
)

// The tag byte packs the value type in the high nibble and the field index in
// the low nibble, so the field dictionary can never exceed 16 live entries.
// Growing past that requires a wire format revision, not a bigger table.

// FieldType is the high nibble of a tag byte.
type FieldType uint8

const (
	// TypeInteger is a varint value, prefixed by a varint length of the
	// encoding. The length is redundant but keeps field records uniformly
	// skippable.
	TypeInteger FieldType = 0

	// TypeString is a UTF-8 string: varint byte length, then raw bytes.
	TypeString FieldType = 1

	// TypeStringList is a list of UTF-8 strings: varint item count, then a
	// varint byte length and raw bytes per item.
	TypeStringList FieldType = 2
)

// FieldID is the low nibble of a tag byte: an index into the field
// dictionary. One table serves both encode and decode.
type FieldID uint8

const (
	FieldUsername         FieldID = 0
	FieldHashedPassword   FieldID = 1
	FieldSessionStatus    FieldID = 2
	FieldMessages         FieldID = 3
	FieldMessageID        FieldID = 4
	FieldRecipient        FieldID = 5
	FieldSender           FieldID = 6
	FieldMessage          FieldID = 7
	FieldRead             FieldID = 8
	FieldTimestamp        FieldID = 9
	FieldNumberOfMessages FieldID = 10
	FieldMessageIDs       FieldID = 11
	FieldStatus           FieldID = 12
	FieldUnreadCount      FieldID = 13
)

var fieldNames = [...]string{
	FieldUsername:         "username",
	FieldHashedPassword:   "hashed_password",
	FieldSessionStatus:    "session_status",
	FieldMessages:         "messages",
	FieldMessageID:        "message_id",
	FieldRecipient:        "recipient",
	FieldSender:           "sender",
	FieldMessage:          "message",
	FieldRead:             "read",
	FieldTimestamp:        "timestamp",
	FieldNumberOfMessages: "number_of_messages",
	FieldMessageIDs:       "message_ids",
	FieldStatus:           "status",
	FieldUnreadCount:      "unread_count",
}

func (id FieldID) String() string {
	if int(id) < len(fieldNames) {
		return fieldNames[id]
	}
	return "unknown"
}

// Valid reports whether id has a dictionary entry.
func (id FieldID) Valid() bool {
	return int(id) < len(fieldNames)
}

// PackTag packs a type tag and a field index into a single byte's two
// nibbles. Either value above 15 fails with ErrOutOfRangeNibble.
func PackTag(typ FieldType, id FieldID) (byte, error) {
	if typ > 15 || id > 15 {
		return 0, fmt.Errorf("%w: type=%d index=%d", ErrOutOfRangeNibble, typ, id)
	}
	return byte(typ)<<4 | byte(id), nil
}

// UnpackTag splits a tag byte back into its type and field-index nibbles.
func UnpackTag(b byte) (FieldType, FieldID) {
	return FieldType(b >> 4), FieldID(b & 0x0F)
}

// Field is one business-payload entry of a frame. Value must be an int,
// int64, uint64, string, or []string; anything else fails at encode time with
// ErrUnsupportedFieldType.
type Field struct {
	ID    FieldID
	Value any
}

// Payload is the ordered list of fields in a frame. Order is preserved so
// encoding is deterministic given insertion order, which a map could not
// guarantee.
type Payload struct {
	fields []Field
}

// Add appends a field and returns the payload for chaining.
func (p *Payload) Add(id FieldID, value any) *Payload {
	p.fields = append(p.fields, Field{ID: id, Value: value})
	return p
}

// Fields returns the fields in insertion order.
func (p *Payload) Fields() []Field {
	return p.fields
}

// Len returns the number of fields.
func (p *Payload) Len() int {
	return len(p.fields)
}

func (p *Payload) lookup(id FieldID) (any, bool) {
	for _, f := range p.fields {
		if f.ID == id {
			return f.Value, true
		}
	}
	return nil, false
}

// Uint returns the integer field with the given id.
func (p *Payload) Uint(id FieldID) (uint64, bool) {
	v, ok := p.lookup(id)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case uint64:
		return n, true
	case int:
		return uint64(n), true
	case int64:
		return uint64(n), true
	}
	return 0, false
}

// String returns the string field with the given id.
func (p *Payload) String(id FieldID) (string, bool) {
	v, ok := p.lookup(id)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringList returns the string-list field with the given id.
func (p *Payload) StringList(id FieldID) ([]string, bool) {
	v, ok := p.lookup(id)
	if !ok {
		return nil, false
	}
	l, ok := v.([]string)
	return l, ok
}

// appendField encodes one field record (tag byte + length-prefixed value)
// onto dst.
func appendField(dst []byte, f Field) ([]byte, error) {
	switch v := f.Value.(type) {
	case int:
		return appendIntegerField(dst, f.ID, uint64(v))
	case int64:
		return appendIntegerField(dst, f.ID, uint64(v))
	case uint64:
		return appendIntegerField(dst, f.ID, v)
	case string:
		return appendStringField(dst, f.ID, v)
	case []string:
		return appendStringListField(dst, f.ID, v)
	default:
		return nil, fmt.Errorf("%w: field %s has type %T", ErrUnsupportedFieldType, f.ID, f.Value)
	}
}

func appendIntegerField(dst []byte, id FieldID, v uint64) ([]byte, error) {
	tag, err := PackTag(TypeInteger, id)
	if err != nil {
		return nil, err
	}
	encoded := AppendUvarint(nil, v)
	dst = append(dst, tag)
	dst = AppendUvarint(dst, uint64(len(encoded)))
	return append(dst, encoded...), nil
}

func appendStringField(dst []byte, id FieldID, v string) ([]byte, error) {
	tag, err := PackTag(TypeString, id)
	if err != nil {
		return nil, err
	}
	dst = append(dst, tag)
	dst = AppendUvarint(dst, uint64(len(v)))
	return append(dst, v...), nil
}

func appendStringListField(dst []byte, id FieldID, items []string) ([]byte, error) {
	tag, err := PackTag(TypeStringList, id)
	if err != nil {
		return nil, err
	}
	dst = append(dst, tag)
	dst = AppendUvarint(dst, uint64(len(items)))
	for _, item := range items {
		dst = AppendUvarint(dst, uint64(len(item)))
		dst = append(dst, item...)
	}
	return dst, nil
}

// parseFields decodes the concatenated field records of a payload. Any
// malformed record aborts the parse; a partially-decoded payload is never
// returned.
func parseFields(data []byte) (*Payload, error) {
	payload := &Payload{}

	for len(data) > 0 {
		typ, id := UnpackTag(data[0])
		if !id.Valid() {
			return nil, fmt.Errorf("%w: index %d", ErrUnknownField, id)
		}
		data = data[1:]

		switch typ {
		case TypeInteger:
			length, n, err := Uvarint(data)
			if err != nil {
				return nil, fmt.Errorf("field %s length: %w", id, err)
			}
			data = data[n:]
			if uint64(len(data)) < length {
				return nil, fmt.Errorf("field %s value: %w", id, ErrIncompleteVarint)
			}
			value, n, err := Uvarint(data[:length])
			if err != nil {
				return nil, fmt.Errorf("field %s value: %w", id, err)
			}
			data = data[n:]
			payload.Add(id, value)

		case TypeString:
			s, rest, err := parseString(data, id)
			if err != nil {
				return nil, err
			}
			data = rest
			payload.Add(id, s)

		case TypeStringList:
			count, n, err := Uvarint(data)
			if err != nil {
				return nil, fmt.Errorf("field %s item count: %w", id, err)
			}
			data = data[n:]
			// Every item costs at least one length byte, so a count beyond
			// the remaining bytes can never be satisfied. Checking here keeps
			// a hostile count from sizing the allocation below.
			if count > uint64(len(data)) {
				return nil, fmt.Errorf("field %s: item count %d exceeds remaining payload: %w", id, count, ErrIncompleteVarint)
			}
			items := make([]string, 0, count)
			for range count {
				s, rest, err := parseString(data, id)
				if err != nil {
					return nil, err
				}
				data = rest
				items = append(items, s)
			}
			payload.Add(id, items)

		default:
			return nil, fmt.Errorf("%w: type tag %d", ErrUnsupportedFieldType, typ)
		}
	}

	return payload, nil
}

func parseString(data []byte, id FieldID) (string, []byte, error) {
	length, n, err := Uvarint(data)
	if err != nil {
		return "", nil, fmt.Errorf("field %s length: %w", id, err)
	}
	data = data[n:]
	if uint64(len(data)) < length {
		return "", nil, fmt.Errorf("field %s: string truncated: %w", id, ErrIncompleteVarint)
	}
	raw := data[:length]
	if !utf8.Valid(raw) {
		return "", nil, fmt.Errorf("field %s: invalid UTF-8: %w", id, ErrUnsupportedFieldType)
	}
	return string(raw), data[length:], nil
}
