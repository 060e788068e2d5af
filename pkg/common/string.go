package common

import (
	"bytes"
	"unsafe"

	"github.com/daviszhen/udo/pkg/util"
)

// StringInlineLimit is the longest content stored inline in a String.
const StringInlineLimit = 12

// String is a small-string-optimized string value usable as a tuple field.
// Content of up to StringInlineLimit bytes lives inline; longer content is
// referenced through an external pointer whose bytes must outlive the
// String. The value is trivially copyable together with its host tuple.
type String struct {
	length uint32
	inline [StringInlineLimit]byte
	extern unsafe.Pointer
}

// MakeString copies short content inline and retains a pointer for long
// content. The caller keeps ownership of the referenced bytes.
func MakeString(data []byte) String {
	var s String
	s.length = uint32(len(data))
	if s.length <= StringInlineLimit {
		copy(s.inline[:], data)
	} else {
		s.extern = util.BytesSliceToPointer(data)
	}
	return s
}

func MakeStringFrom(str string) String {
	return MakeString(util.UnsafeStringToBytes(str))
}

func (s *String) Size() int {
	return int(s.length)
}

// Bytes returns a view of the content. The view stays valid as long as the
// host tuple (and, for long strings, the external bytes) lives.
func (s *String) Bytes() []byte {
	if s.length <= StringInlineLimit {
		return s.inline[:s.length]
	}
	return util.PointerToSlice[byte](s.extern, int(s.length))
}

func (s *String) String() string {
	return string(s.Bytes())
}

func (s *String) Equal(o *String) bool {
	if s.length != o.length {
		return false
	}
	return bytes.Equal(s.Bytes(), o.Bytes())
}

func (s *String) EqualStr(str string) bool {
	return bytes.Equal(s.Bytes(), util.UnsafeStringToBytes(str))
}

func (s *String) Less(o *String) bool {
	return bytes.Compare(s.Bytes(), o.Bytes()) < 0
}
