package iokit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// NewPayloadBuilder instantiates a new PayloadBuilder.
func NewPayloadBuilder() *PayloadBuilder {
	return &PayloadBuilder{}
}

// PayloadBuilder helps build injected data and other binary sequences
// by implementing the "builder pattern".
//
// Errors are sticky: once a method fails, the remaining calls are
// no-ops and Build returns the first error.
//
// For methods that take endianness as an optional argument,
// the default is little endian. The default endianness can
// be overridden using SetEndianness.
type PayloadBuilder struct {
	buf bytes.Buffer
	bo  binary.ByteOrder
	err error
}

// SetEndianness sets the default endianness for the methods that take
// endianness as an optional argument.
func (o *PayloadBuilder) SetEndianness(order binary.ByteOrder) *PayloadBuilder {
	o.bo = order

	return o
}

func (o *PayloadBuilder) getEndianness(optOrder ...binary.ByteOrder) binary.ByteOrder {
	switch len(optOrder) {
	case 0:
		if o.bo == nil {
			return binary.LittleEndian
		}
		return o.bo
	case 1:
		return optOrder[0]
	default:
		panic("only one binary.ByteOrder may be specified")
	}
}

// Uint16 writes an unsigned 16-bit integer to the payload.
func (o *PayloadBuilder) Uint16(u uint16, optOrder ...binary.ByteOrder) *PayloadBuilder {
	b := make([]byte, 2)

	o.getEndianness(optOrder...).PutUint16(b, u)

	return o.Bytes(b)
}

// Uint32 writes an unsigned 32-bit integer to the payload.
// The endianness can be specified by the optOrder argument.
// If the optOrder argument is unspecified, the default
// endianness set by SetEndianness will be used.
func (o *PayloadBuilder) Uint32(u uint32, optOrder ...binary.ByteOrder) *PayloadBuilder {
	b := make([]byte, 4)

	o.getEndianness(optOrder...).PutUint32(b, u)

	return o.Bytes(b)
}

// Uint64 writes an unsigned 64-bit integer to the payload.
// The endianness can be specified by the optOrder argument.
// If the optOrder argument is unspecified, the default
// endianness set by SetEndianness will be used.
func (o *PayloadBuilder) Uint64(u uint64, optOrder ...binary.ByteOrder) *PayloadBuilder {
	b := make([]byte, 8)

	o.getEndianness(optOrder...).PutUint64(b, u)

	return o.Bytes(b)
}

// Bytes writes the specified []byte to the payload.
func (o *PayloadBuilder) Bytes(b []byte) *PayloadBuilder {
	if o.err != nil {
		return o
	}

	o.buf.Write(b)

	return o
}

// Byte writes the specified byte to the payload.
func (o *PayloadBuilder) Byte(b byte) *PayloadBuilder {
	if o.err != nil {
		return o
	}

	o.buf.WriteByte(b)

	return o
}

// String writes the specified string to the payload.
func (o *PayloadBuilder) String(str string) *PayloadBuilder {
	if o.err != nil {
		return o
	}

	o.buf.WriteString(str)

	return o
}

// CString writes b followed by a NUL terminator.
func (o *PayloadBuilder) CString(b []byte) *PayloadBuilder {
	return o.Bytes(b).Byte(0)
}

// RepeatByte writes b to the payload count times.
func (o *PayloadBuilder) RepeatByte(b byte, count int) *PayloadBuilder {
	if o.err != nil {
		return o
	}

	if count < 0 {
		o.err = fmt.Errorf("repeat count is negative (%d)", count)
		return o
	}

	o.buf.Write(bytes.Repeat([]byte{b}, count))

	return o
}

// PadTo writes zero bytes until the payload is size bytes long.
// It fails if the payload is already longer than size.
func (o *PayloadBuilder) PadTo(size int) *PayloadBuilder {
	if o.err != nil {
		return o
	}

	if o.buf.Len() > size {
		o.err = fmt.Errorf("payload is %d bytes which exceeds pad size of %d",
			o.buf.Len(), size)
		return o
	}

	return o.RepeatByte(0, size-o.buf.Len())
}

// AlignTo writes zero bytes until the payload's length is a multiple
// of alignment. An alignment of 0 or 1 is a no-op.
func (o *PayloadBuilder) AlignTo(alignment int) *PayloadBuilder {
	if o.err != nil {
		return o
	}

	if alignment < 0 {
		o.err = fmt.Errorf("alignment is negative (%d)", alignment)
		return o
	}

	if alignment <= 1 {
		return o
	}

	return o.PadTo(AlignUp(o.buf.Len(), alignment))
}

// Len returns the current length of the payload.
func (o *PayloadBuilder) Len() int {
	return o.buf.Len()
}

// BuildOrExit calls Build. It calls DefaultExitFn if an error occurs.
func (o *PayloadBuilder) BuildOrExit() []byte {
	b, err := o.Build()
	if err != nil {
		DefaultExitFn(fmt.Errorf("iokit.payloadbuilder: failed to build payload - %w", err))
	}

	return b
}

// Build returns a copy of the payload.
func (o *PayloadBuilder) Build() ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}

	if o.buf.Len() == 0 {
		return nil, errors.New("payload is empty")
	}

	return bytes.Clone(o.buf.Bytes()), nil
}
