package historical

import (
	"fmt"
	"time"

	"github.com/govalues/decimal"

	"github.com/yeseoLee/Quant/pkg/common"
)

// BarReader loads the closes of a date range from a Source into a
// common.PriceSeries. The start index is found by binary search on the day
// stamp, relying on the file being sorted.
type BarReader struct {
	source *Source
	from   int64
	to     int64
}

func NewBarReader(source *Source, from, to time.Time) *BarReader {
	return &BarReader{
		source: source,
		from:   from.Unix(),
		to:     to.Unix(),
	}
}

// ReadSeries reads every bar in [from, to] in day order.
func (r *BarReader) ReadSeries() (common.PriceSeries, error) {
	entryCount, err := r.source.EntryCount()
	if err != nil {
		return nil, fmt.Errorf("error getting entry count: %w", err)
	}
	if entryCount == 0 {
		return nil, fmt.Errorf("data source is empty")
	}

	idx, err := r.lookupStartIndex(entryCount)
	if err != nil {
		return nil, err
	}

	var series common.PriceSeries
	var bar DailyBar
	for ; idx < entryCount; idx++ {
		if err := r.source.Read(idx, &bar); err != nil {
			return nil, fmt.Errorf("error reading entry at index %d: %w", idx, err)
		}
		if bar.Day > r.to {
			break
		}
		closePrice, err := decimal.NewFromFloat64(bar.Close)
		if err != nil {
			return nil, fmt.Errorf("invalid close at index %d: %w", idx, err)
		}
		series = append(series, common.PricePoint{
			Time:  time.Unix(bar.Day, 0).UTC(),
			Close: closePrice,
		})
	}

	if len(series) == 0 {
		return nil, fmt.Errorf("no entries in requested range")
	}
	return series, nil
}

func (r *BarReader) lookupStartIndex(entryCount int64) (int64, error) {
	var entry DailyBar

	low := int64(0)
	high := entryCount - 1
	for low <= high {
		mid := (low + high) / 2

		if err := r.source.Read(mid, &entry); err != nil {
			return 0, fmt.Errorf("error reading entry at index %d: %w", mid, err)
		}

		if entry.Day < r.from {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	if low >= entryCount {
		return 0, fmt.Errorf("no entry found with day >= from")
	}
	return low, nil
}
