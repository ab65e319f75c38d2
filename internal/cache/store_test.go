package cache

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yeseoLee/Quant/pkg/datasource/synthetic"
	"github.com/yeseoLee/Quant/pkg/models/lppl"
)

// Small windows and iteration counts keep the embedded fits fast; the cache
// behaves the same whether the windows converge or not.
var testCfg = lppl.MultiWindowConfig{
	MinWindow:     40,
	MaxWindow:     60,
	Step:          10,
	MaxIterations: 30,
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestGetOrCompute_CacheRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	gen := synthetic.GBM{StartPrice: 100, Mu: 0.05, Sigma: 0.2}
	series := gen.Series(rand.New(rand.NewSource(3)), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 60)

	first, err := store.GetOrCompute(ctx, "TEST", series, testCfg, false)
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, 3, first.Statistics.TotalWindows)

	second, err := store.GetOrCompute(ctx, "TEST", series, testCfg, false)
	require.NoError(t, err)
	require.True(t, second.Cached)

	require.Equal(t, first.ConfidenceIndicator, second.ConfidenceIndicator)
	require.Equal(t, first.State, second.State)
	require.Equal(t, first.Statistics, second.Statistics)
	require.Equal(t, first.WindowRange, second.WindowRange)
	require.Len(t, second.DetailedResults, len(first.DetailedResults))
	for i, w := range second.DetailedResults {
		require.Equal(t, first.DetailedResults[i].WindowSize, w.WindowSize)
		require.Equal(t, first.DetailedResults[i].Success, w.Success)
		require.Equal(t, first.DetailedResults[i].IsBubble, w.IsBubble)
		if w.Success {
			require.NotNil(t, w.Params)
			require.Equal(t, *first.DetailedResults[i].Params, *w.Params)
		}
	}
}

func TestGetOrCompute_ForceRecompute(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	gen := synthetic.GBM{StartPrice: 100, Mu: 0.05, Sigma: 0.2}
	series := gen.Series(rand.New(rand.NewSource(3)), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 60)

	_, err := store.GetOrCompute(ctx, "TEST", series, testCfg, false)
	require.NoError(t, err)

	forced, err := store.GetOrCompute(ctx, "TEST", series, testCfg, true)
	require.NoError(t, err)
	require.False(t, forced.Cached)

	// The forced run replaced the stored row, not duplicated it.
	cached, err := store.GetOrCompute(ctx, "TEST", series, testCfg, false)
	require.NoError(t, err)
	require.True(t, cached.Cached)
}

func TestGetOrCompute_DistinctKeys(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	gen := synthetic.GBM{StartPrice: 100, Mu: 0.05, Sigma: 0.2}
	series := gen.Series(rand.New(rand.NewSource(3)), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 60)

	_, err := store.GetOrCompute(ctx, "TEST", series, testCfg, false)
	require.NoError(t, err)

	// A different step is a different key, so the cache misses.
	otherStep := testCfg
	otherStep.Step = 20
	miss, err := store.GetOrCompute(ctx, "TEST", series, otherStep, false)
	require.NoError(t, err)
	require.False(t, miss.Cached)

	// A different symbol misses too.
	miss, err = store.GetOrCompute(ctx, "OTHER", series, testCfg, false)
	require.NoError(t, err)
	require.False(t, miss.Cached)
}

func TestInvalidateAndInfo(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	gen := synthetic.GBM{StartPrice: 100, Mu: 0.05, Sigma: 0.2}
	series := gen.Series(rand.New(rand.NewSource(3)), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 60)

	res, err := store.GetOrCompute(ctx, "TEST", series, testCfg, false)
	require.NoError(t, err)

	info, err := store.Info(ctx, "TEST")
	require.NoError(t, err)
	require.Equal(t, res.State, info.State)
	require.Equal(t, testCfg.Step, info.Step)
	end, _ := series.EndTime()
	require.Equal(t, end.Format(dateLayout), info.AnalysisDate)

	deleted, err := store.Invalidate(ctx, "TEST")
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	_, err = store.Info(ctx, "TEST")
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestGetOrCompute_EmptySeries(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetOrCompute(context.Background(), "TEST", nil, testCfg, false)
	require.Error(t, err)
}
