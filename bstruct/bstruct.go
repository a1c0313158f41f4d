// Package bstruct encodes fixed-layout structs, such as executable
// header records, into bytes. Fields are written in declaration order
// with no padding between them.
package bstruct

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
)

// Byter is implemented by field types that know how to encode
// themselves.
type Byter interface {
	ToBytes(binary.ByteOrder) []byte
}

// FieldInfo describes a field after it was encoded.
type FieldInfo struct {
	Index  int
	Name   string
	Type   string
	Offset int
	Value  []byte
}

// StructToBytesOrExit calls StructToBytes. It calls DefaultExitFn
// if an error occurs.
func StructToBytesOrExit(s interface{}, bo binary.ByteOrder, optFn func(FieldInfo) error) []byte {
	b, err := StructToBytes(s, bo, optFn)
	if err != nil {
		DefaultExitFn(fmt.Errorf("bstruct: failed to encode struct - %w", err))
	}

	return b
}

// StructToBytes encodes s, which must be a struct or a pointer to one.
//
// Supported field types are Byter, the unsigned integer types and
// byte arrays (e.g., a [8]byte name field). If optFn is non-nil,
// it is called after each field is encoded.
func StructToBytes(s interface{}, bo binary.ByteOrder, optFn func(FieldInfo) error) ([]byte, error) {
	if s == nil {
		return nil, errors.New("struct is nil")
	}

	structValue := reflect.ValueOf(s)
	if structValue.Kind() == reflect.Ptr {
		if structValue.IsNil() {
			return nil, errors.New("struct pointer is nil")
		}

		structValue = structValue.Elem()
	}

	if structValue.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected a struct - got %s", structValue.Kind())
	}

	structType := structValue.Type()

	var b []byte

	for i := 0; i < structValue.NumField(); i++ {
		field := structType.Field(i)
		fieldValue := structValue.Field(i)

		at := len(b)

		switch t := fieldValue.Interface().(type) {
		case Byter:
			b = append(b, t.ToBytes(bo)...)
		case uint8:
			b = append(b, t)
		case uint16:
			b = append(b, make([]byte, 2)...)
			bo.PutUint16(b[len(b)-2:], t)
		case uint32:
			b = append(b, make([]byte, 4)...)
			bo.PutUint32(b[len(b)-4:], t)
		case uint64:
			b = append(b, make([]byte, 8)...)
			bo.PutUint64(b[len(b)-8:], t)
		default:
			if fieldValue.Kind() == reflect.Array && field.Type.Elem().Kind() == reflect.Uint8 {
				for j := 0; j < fieldValue.Len(); j++ {
					b = append(b, byte(fieldValue.Index(j).Uint()))
				}

				break
			}

			return nil, fmt.Errorf("unsupported data type %T for field %q (index %d)",
				t, field.Name, i)
		}

		if optFn != nil {
			err := optFn(FieldInfo{
				Index:  i,
				Name:   field.Name,
				Type:   field.Type.String(),
				Offset: at,
				Value:  b[at:],
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return b, nil
}

// Size returns the encoded size of s without encoding it.
func Size(s interface{}) (int, error) {
	b, err := StructToBytes(s, binary.LittleEndian, nil)
	if err != nil {
		return 0, err
	}

	return len(b), nil
}
