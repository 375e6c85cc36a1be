/*
Copyright 2025 The Strife.ML Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package codec implements the symmetric byte-cursor serialization used for
// samples and model weights.
//
// A type opts in by implementing Serializable on its pointer receiver. The same
// Serialize method both writes and reads: in write mode each field method
// appends the value, in read mode it overwrites the value from the buffer.
//
//	func (f *Features) Serialize(s *codec.Serializer) {
//		s.Float64s(&f.Values, "values")
//	}
//
// Reading past the end of the buffer sets a sticky error flag instead of
// failing; callers check HadError once the whole object was visited.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnexpectedEnd is returned by Unmarshal when decoding ran past the buffer end.
	ErrUnexpectedEnd = errors.New("codec: read past end of buffer")
	// ErrInvalidOffset is returned by Seek for an offset outside the buffer.
	ErrInvalidOffset = errors.New("codec: invalid read offset")
)

// Serializable is implemented by types that can write and read themselves
// against a Serializer.
type Serializable interface {
	Serialize(s *Serializer)
}

// Pointer constrains a type parameter to *T implementing Serializable.
type Pointer[T any] interface {
	*T
	Serializable
}

// Serializer is a byte cursor in either write or read mode.
type Serializer struct {
	bytes    []byte
	reading  bool
	offset   int
	hadError bool
	schema   *Schema
}

// NewWriter returns a Serializer in write mode. When schema is non-nil every
// named field records its type and offset into it.
func NewWriter(schema *Schema) *Serializer {
	return &Serializer{schema: schema}
}

// NewReader returns a Serializer reading data from the start.
func NewReader(data []byte) *Serializer {
	return &Serializer{bytes: data, reading: true}
}

// IsReading reports whether the serializer is in read mode.
func (s *Serializer) IsReading() bool { return s.reading }

// HadError reports whether a read ran past the end of the buffer.
func (s *Serializer) HadError() bool { return s.hadError }

// Bytes returns the underlying buffer.
func (s *Serializer) Bytes() []byte { return s.bytes }

// Offset returns the current read offset.
func (s *Serializer) Offset() int { return s.offset }

// Remaining returns the number of unread bytes.
func (s *Serializer) Remaining() int {
	if !s.reading {
		return 0
	}
	return len(s.bytes) - s.offset
}

// Seek moves the read offset.
func (s *Serializer) Seek(offset int) error {
	if offset < 0 || offset >= len(s.bytes) {
		return fmt.Errorf("%w: %d (buffer size %d)", ErrInvalidOffset, offset, len(s.bytes))
	}
	s.offset = offset
	return nil
}

// AddBytes appends p in write mode, or fills p from the buffer in read mode.
func (s *Serializer) AddBytes(p []byte) {
	if s.hadError {
		return
	}
	if !s.reading {
		s.bytes = append(s.bytes, p...)
		return
	}
	if b := s.take(len(p)); b != nil {
		copy(p, b)
	}
}

// take consumes n bytes in read mode. It returns nil and sets the sticky
// error when fewer than n bytes remain.
func (s *Serializer) take(n int) []byte {
	if s.hadError {
		return nil
	}
	if n > len(s.bytes)-s.offset {
		s.offset = len(s.bytes)
		s.hadError = true
		return nil
	}
	b := s.bytes[s.offset : s.offset+n]
	s.offset += n
	return b
}

func (s *Serializer) record(name, typ string) {
	if s.schema != nil && !s.reading && name != "" {
		s.schema.add(name, typ, len(s.bytes))
	}
}

// Bool serializes a bool as one byte.
func (s *Serializer) Bool(v *bool, name string) *Serializer {
	s.record(name, TypeBool)
	if !s.reading {
		var b byte
		if *v {
			b = 1
		}
		s.bytes = append(s.bytes, b)
		return s
	}
	if b := s.take(1); b != nil {
		*v = b[0] != 0
	}
	return s
}

// Uint8 serializes a single byte.
func (s *Serializer) Uint8(v *uint8, name string) *Serializer {
	s.record(name, TypeUint8)
	if !s.reading {
		s.bytes = append(s.bytes, *v)
		return s
	}
	if b := s.take(1); b != nil {
		*v = b[0]
	}
	return s
}

// Int32 serializes a little-endian int32.
func (s *Serializer) Int32(v *int32, name string) *Serializer {
	s.record(name, TypeInt32)
	u := uint32(*v)
	s.u32(&u)
	if s.reading {
		*v = int32(u)
	}
	return s
}

// Uint32 serializes a little-endian uint32.
func (s *Serializer) Uint32(v *uint32, name string) *Serializer {
	s.record(name, TypeUint32)
	s.u32(v)
	return s
}

// Int64 serializes a little-endian int64.
func (s *Serializer) Int64(v *int64, name string) *Serializer {
	s.record(name, TypeInt64)
	u := uint64(*v)
	s.u64(&u)
	if s.reading {
		*v = int64(u)
	}
	return s
}

// Int serializes an int as a little-endian int64.
func (s *Serializer) Int(v *int, name string) *Serializer {
	s.record(name, TypeInt64)
	u := uint64(int64(*v))
	s.u64(&u)
	if s.reading {
		*v = int(int64(u))
	}
	return s
}

// Float32 serializes an IEEE-754 float32.
func (s *Serializer) Float32(v *float32, name string) *Serializer {
	s.record(name, TypeFloat32)
	u := math.Float32bits(*v)
	s.u32(&u)
	if s.reading {
		*v = math.Float32frombits(u)
	}
	return s
}

// Float64 serializes an IEEE-754 float64.
func (s *Serializer) Float64(v *float64, name string) *Serializer {
	s.record(name, TypeFloat64)
	u := math.Float64bits(*v)
	s.u64(&u)
	if s.reading {
		*v = math.Float64frombits(u)
	}
	return s
}

// String serializes a uint32 length followed by the raw bytes.
func (s *Serializer) String(v *string, name string) *Serializer {
	s.record(name, TypeString)
	if !s.reading {
		n := uint32(len(*v))
		s.u32(&n)
		s.bytes = append(s.bytes, *v...)
		return s
	}
	var n uint32
	s.u32(&n)
	if b := s.take(int(n)); b != nil {
		*v = string(b)
	}
	return s
}

// ByteSlice serializes a uint32 length followed by the raw bytes. An empty
// slice reads back as nil.
func (s *Serializer) ByteSlice(v *[]byte, name string) *Serializer {
	s.record(name, TypeBytes)
	if !s.reading {
		n := uint32(len(*v))
		s.u32(&n)
		s.bytes = append(s.bytes, *v...)
		return s
	}
	var n uint32
	s.u32(&n)
	b := s.take(int(n))
	switch {
	case b == nil:
	case n == 0:
		*v = nil
	default:
		*v = append((*v)[:0], b...)
	}
	return s
}

// Float64s serializes a uint32 count followed by the values. An empty slice
// reads back as nil.
func (s *Serializer) Float64s(v *[]float64, name string) *Serializer {
	s.record(name, TypeFloat64s)
	if !s.reading {
		n := uint32(len(*v))
		s.u32(&n)
		for _, f := range *v {
			s.bytes = binary.LittleEndian.AppendUint64(s.bytes, math.Float64bits(f))
		}
		return s
	}
	var n uint32
	s.u32(&n)
	if s.hadError {
		return s
	}
	// Reject counts the buffer cannot hold before allocating.
	if uint64(n)*8 > uint64(s.Remaining()) {
		s.take(s.Remaining() + 1)
		return s
	}
	if n == 0 {
		*v = nil
		return s
	}
	out := make([]float64, n)
	for i := range out {
		b := s.take(8)
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	*v = out
	return s
}

func (s *Serializer) u32(v *uint32) {
	if s.hadError {
		return
	}
	if !s.reading {
		s.bytes = binary.LittleEndian.AppendUint32(s.bytes, *v)
		return
	}
	if b := s.take(4); b != nil {
		*v = binary.LittleEndian.Uint32(b)
	}
}

func (s *Serializer) u64(v *uint64) {
	if s.hadError {
		return
	}
	if !s.reading {
		s.bytes = binary.LittleEndian.AppendUint64(s.bytes, *v)
		return
	}
	if b := s.take(8); b != nil {
		*v = binary.LittleEndian.Uint64(b)
	}
}

// Enum serializes an integer-backed enumeration as an int32.
func Enum[T ~int | ~int8 | ~int16 | ~int32 | ~uint8 | ~uint16](s *Serializer, v *T, name string) *Serializer {
	s.record(name, TypeEnum)
	u := uint32(int32(*v))
	s.u32(&u)
	if s.reading && !s.hadError {
		*v = T(int32(u))
	}
	return s
}

// Marshal writes v into a fresh buffer.
func Marshal(v Serializable) []byte {
	w := NewWriter(nil)
	v.Serialize(w)
	return w.Bytes()
}

// Unmarshal reads v from data.
func Unmarshal(data []byte, v Serializable) error {
	r := NewReader(data)
	v.Serialize(r)
	if r.HadError() {
		return ErrUnexpectedEnd
	}
	return nil
}
