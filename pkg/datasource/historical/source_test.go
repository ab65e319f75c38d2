package historical

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, bars []DailyBar) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteBars(f, bars))
	require.NoError(t, f.Close())
	return path
}

func testBars(n int) []DailyBar {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]DailyBar, n)
	for i := range bars {
		price := 100 + float64(i)
		bars[i] = DailyBar{
			Day:    day.AddDate(0, 0, i).Unix(),
			Open:   price - 0.5,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 1000 + float64(i),
		}
	}
	return bars
}

func TestSource_RoundTrip(t *testing.T) {
	bars := testBars(10)
	source := NewSource(writeTestFile(t, bars))
	require.NoError(t, source.Open())
	defer source.Close()

	count, err := source.EntryCount()
	require.NoError(t, err)
	require.EqualValues(t, 10, count)

	var bar DailyBar
	for i := range bars {
		require.NoError(t, source.Read(int64(i), &bar))
		require.Equal(t, bars[i], bar)
	}

	require.True(t, errors.Is(source.Read(int64(len(bars)), &bar), ErrEof))
}

func TestSource_RejectsTruncatedFile(t *testing.T) {
	path := writeTestFile(t, testBars(3))
	require.NoError(t, os.Truncate(path, 10))

	source := NewSource(path)
	_, err := source.EntryCount()
	require.Error(t, err)
}

func TestBarReader_RangeSelection(t *testing.T) {
	bars := testBars(30)
	source := NewSource(writeTestFile(t, bars))
	require.NoError(t, source.Open())
	defer source.Close()

	from := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)

	series, err := NewBarReader(source, from, to).ReadSeries()
	require.NoError(t, err)
	require.Len(t, series, 10)
	require.NoError(t, series.Validate())

	require.Equal(t, from, series[0].Time)
	require.Equal(t, to, series[len(series)-1].Time)

	f, ok := series[0].Close.Float64()
	require.True(t, ok)
	require.InDelta(t, 110, f, 1e-9)
}

func TestBarReader_EmptyRange(t *testing.T) {
	source := NewSource(writeTestFile(t, testBars(5)))
	require.NoError(t, source.Open())
	defer source.Close()

	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2030, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewBarReader(source, from, to).ReadSeries()
	require.Error(t, err)
}
