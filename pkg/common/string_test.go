package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringInline(t *testing.T) {
	s := MakeStringFrom("lifestyle")
	assert.Equal(t, 9, s.Size())
	assert.Equal(t, "lifestyle", s.String())

	boundary := MakeStringFrom("abcdefghijkl")
	assert.Equal(t, StringInlineLimit, boundary.Size())
	assert.Equal(t, "abcdefghijkl", boundary.String())
}

func TestStringExternal(t *testing.T) {
	content := strings.Repeat("database ", 4)
	s := MakeStringFrom(content)
	assert.Equal(t, len(content), s.Size())
	assert.Equal(t, content, s.String())

	// Copying the value must keep the content readable.
	cp := s
	assert.Equal(t, content, cp.String())
	assert.True(t, s.Equal(&cp))
}

func TestStringCompare(t *testing.T) {
	a := MakeStringFrom("abc")
	b := MakeStringFrom("abd")
	assert.True(t, a.Less(&b))
	assert.False(t, b.Less(&a))
	assert.False(t, a.Equal(&b))
	assert.True(t, a.EqualStr("abc"))

	long := MakeStringFrom("this is longer than twelve bytes")
	short := MakeStringFrom("this")
	assert.False(t, long.Equal(&short))
}
