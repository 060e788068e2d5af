// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package csvx

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/udo/pkg/storage"
	"github.com/daviszhen/udo/pkg/util"
)

const (
	pageSize = 4096
	// sizePerThread is the morsel one worker claims per read.
	sizePerThread = pageSize * 16
)

// ParseUint64 parses a decimal field; malformed fields become the
// MaxUint64 sentinel.
func ParseUint64(field []byte) uint64 {
	v, err := strconv.ParseUint(string(field), 10, 64)
	if err != nil {
		return math.MaxUint64
	}
	return v
}

// ParseFloat64 parses a float field; malformed fields become NaN.
func ParseFloat64(field []byte) float64 {
	v, err := strconv.ParseFloat(string(field), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// FieldScanner yields the comma-separated fields of one line.
type FieldScanner struct {
	line []byte
	pos  int
}

func (s *FieldScanner) Next() []byte {
	if s.pos > len(s.line) {
		return nil
	}
	rest := s.line[s.pos:]
	idx := bytes.IndexByte(rest, ',')
	if idx < 0 {
		s.pos = len(s.line) + 1
		return rest
	}
	s.pos += idx + 1
	return rest[:idx]
}

// Parse reads a headered CSV file into a ParallelChunkedStorage using
// one worker per thread. The file is split into morsels claimed through
// a shared offset; every worker reads one extra page of overlap, skips
// the partial first line of its morsel and parses through the first
// newline past the morsel end. bind fills one tuple from one line.
func Parse[T any](fileName string, numThreads int, bind func(s *FieldScanner, tuple *T)) (*storage.ParallelChunkedStorage[T], error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed opening %s: %w", fileName, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat(%s) failed: %w", fileName, err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%s has unsupported file type, should be a regular file", fileName)
	}
	fileSize := uint64(stat.Size())

	if numThreads <= 0 {
		numThreads = 1
	}

	input := &storage.ParallelChunkedStorage[T]{}
	var currentOffset atomic.Uint64

	g := new(errgroup.Group)
	for threadId := uint32(0); threadId < uint32(numThreads); threadId++ {
		g.Go(func() error {
			ref := input.CreateLocalStorage(threadId)

			// One additional page so the last line of the morsel can be
			// read to its end.
			buffer := util.GAlloc.Alloc(sizePerThread + pageSize)
			defer util.GAlloc.Free(buffer)

			for {
				localOffset := currentOffset.Add(sizePerThread) - sizePerThread
				if localOffset >= fileSize {
					return nil
				}

				maxBytesToRead := fileSize - localOffset
				bytesToRead := min(uint64(sizePerThread+pageSize), maxBytesToRead)
				data := buffer[:bytesToRead]
				if n, err := file.ReadAt(data, int64(localOffset)); err != nil && n < len(data) {
					return fmt.Errorf("read(%s) at %d failed: %w", fileName, localOffset, err)
				}

				forwardToNextLine := func(offset uint64) uint64 {
					idx := bytes.IndexByte(data[offset:], '\n')
					if idx < 0 {
						return uint64(len(data))
					}
					return offset + uint64(idx) + 1
				}

				// Skips the header line in the morsel at offset zero and
				// the partial first line everywhere else.
				offsetBegin := forwardToNextLine(0)
				var offsetEnd uint64
				if maxBytesToRead < sizePerThread {
					// The end of the file; read it to the end.
					offsetEnd = maxBytesToRead
				} else {
					offsetEnd = forwardToNextLine(sizePerThread)
				}

				for pos := offsetBegin; pos < offsetEnd; {
					// A final line without a trailing newline ends at the
					// morsel end.
					lineEnd := offsetEnd
					if idx := bytes.IndexByte(data[pos:offsetEnd], '\n'); idx >= 0 {
						lineEnd = pos + uint64(idx)
					}
					if lineEnd > pos {
						var tuple T
						scanner := FieldScanner{line: data[pos:lineEnd]}
						bind(&scanner, &tuple)
						ref.Storage().Append(tuple)
					}
					pos = lineEnd + 1
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return input, nil
}
