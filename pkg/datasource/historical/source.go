// Package historical reads daily bar history from a flat binary file through
// a memory map. Files hold fixed-size DailyBar records sorted by day, which
// keeps range lookups a binary search away without loading the whole file.
package historical

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/exp/mmap"
)

var ErrEof = errors.New("EOF")

// DailyBar is the on-disk record: one trading day of OHLCV. Fields are fixed
// width so the record can be reinterpreted in place from the mapped file.
type DailyBar struct {
	Day    int64 // unix seconds, UTC midnight of the trading day
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

const barSize = int64(unsafe.Sizeof(DailyBar{}))

// Source reads DailyBar records by index from a memory-mapped file.
type Source struct {
	dataSourceName string
	reader         *mmap.ReaderAt
	bufferPool     *sync.Pool
}

func NewSource(dataSourceName string) *Source {
	return &Source{
		dataSourceName: dataSourceName,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buffer := make([]byte, barSize)
				return &buffer
			},
		},
	}
}

func (s *Source) Open() error {
	var err error
	s.reader, err = mmap.Open(s.dataSourceName)
	if err != nil {
		return fmt.Errorf("unable to open data source %q: %w", s.dataSourceName, err)
	}
	return nil
}

func (s *Source) Close() {
	_ = s.reader.Close()
}

// Read fills bar with the record at index. Returns ErrEof past the last
// record.
func (s *Source) Read(index int64, bar *DailyBar) error {
	buffer := s.bufferPool.Get().(*[]byte)
	defer s.bufferPool.Put(buffer)

	n, err := s.reader.ReadAt(*buffer, index*barSize)
	if err != nil && err != io.EOF {
		return fmt.Errorf("unable to read: %w", err)
	}
	if int64(n) < barSize {
		return ErrEof
	}

	*bar = *(*DailyBar)(unsafe.Pointer(&(*buffer)[0])) // #nosec G103
	return nil
}

// EntryCount returns the number of records in the backing file.
func (s *Source) EntryCount() (int64, error) {
	fileInfo, err := os.Stat(s.dataSourceName)
	if err != nil {
		return 0, fmt.Errorf("unable to get data source %q stats: %w", s.dataSourceName, err)
	}

	totalSize := fileInfo.Size()
	if totalSize%barSize != 0 {
		return 0, fmt.Errorf("file size is not a multiple of entry size")
	}

	return totalSize / barSize, nil
}

// WriteBars appends bars to w in the on-disk record layout. Callers are
// responsible for keeping the file sorted by day.
func WriteBars(w io.Writer, bars []DailyBar) error {
	for _, b := range bars {
		if err := binary.Write(w, binary.LittleEndian, b); err != nil {
			return fmt.Errorf("write bar: %w", err)
		}
	}
	return nil
}
