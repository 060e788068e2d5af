package csvx

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pointRow struct {
	x       float64
	y       float64
	payload uint64
}

func bindPointRow(s *FieldScanner, tuple *pointRow) {
	tuple.x = ParseFloat64(s.Next())
	tuple.y = ParseFloat64(s.Next())
	tuple.payload = ParseUint64(s.Next())
}

func writeCsv(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseSmallFile(t *testing.T) {
	lines := []string{"x,y,payload"}
	for i := 0; i < 100; i++ {
		lines = append(lines, fmt.Sprintf("%d.5,%d.25,%d", i, i*2, i))
	}
	path := writeCsv(t, lines)

	input, err := Parse(path, 4, bindPointRow)
	require.NoError(t, err)
	require.Equal(t, uint64(100), input.Size())

	seen := make(map[uint64]pointRow)
	input.ForEach(func(v *pointRow) {
		seen[v.payload] = *v
	})
	require.Equal(t, 100, len(seen))
	assert.Equal(t, 3.5, seen[3].x)
	assert.Equal(t, 6.25, seen[3].y)
}

func TestParseLargeFileCrossesMorsels(t *testing.T) {
	// Enough rows that several 64 KiB morsels are claimed.
	lines := []string{"x,y,payload"}
	const n = 50000
	for i := 0; i < n; i++ {
		lines = append(lines, fmt.Sprintf("%d,%d,%d", i, i, i))
	}
	path := writeCsv(t, lines)

	input, err := Parse(path, 8, bindPointRow)
	require.NoError(t, err)
	require.Equal(t, uint64(n), input.Size())

	seen := make(map[uint64]bool)
	input.ForEach(func(v *pointRow) {
		seen[v.payload] = true
	})
	// No row lost or duplicated at any morsel boundary.
	assert.Equal(t, n, len(seen))
}

func TestParseSentinels(t *testing.T) {
	lines := []string{
		"x,y,payload",
		"bogus,2.0,3",
		"1.0,,oops",
	}
	path := writeCsv(t, lines)

	input, err := Parse(path, 2, bindPointRow)
	require.NoError(t, err)
	require.Equal(t, uint64(2), input.Size())

	input.ForEach(func(v *pointRow) {
		if v.payload == 3 {
			assert.True(t, math.IsNaN(v.x))
			assert.Equal(t, 2.0, v.y)
		} else {
			assert.Equal(t, uint64(math.MaxUint64), v.payload)
			assert.True(t, math.IsNaN(v.y))
			assert.Equal(t, 1.0, v.x)
		}
	})
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse("/nonexistent/input.csv", 2, bindPointRow)
	assert.Error(t, err)
}

func TestParseNoTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte("x,y,payload\n1,2,3\n4,5,6"), 0o644))

	input, err := Parse(path, 2, bindPointRow)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), input.Size())
}
