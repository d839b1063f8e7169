package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kamar-Folarin/feed-sync/internal/config"
)

func TestProcessItems_AllBatches(t *testing.T) {
	p := NewProcessor[int](&config.BatchConfig{Size: 3, Workers: 2})

	var mu sync.Mutex
	var seen []int
	err := p.ProcessItems(context.Background(), []int{1, 2, 3, 4, 5, 6, 7}, func(_ context.Context, batch []int) error {
		mu.Lock()
		defer mu.Unlock()
		assert.LessOrEqual(t, len(batch), 3)
		seen = append(seen, batch...)
		return nil
	}, nil, nil)

	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7}, seen)

	progress := <-p.GetProgress()
	assert.Equal(t, 3, progress.TotalBatches)
	assert.Equal(t, 3, progress.ProcessedBatches)
	assert.Equal(t, 7, progress.ProcessedItems)
}

func TestProcessItems_Empty(t *testing.T) {
	p := NewProcessor[string](&config.BatchConfig{Size: 10, Workers: 1})

	called := false
	err := p.ProcessItems(context.Background(), nil, func(context.Context, []string) error {
		called = true
		return nil
	}, nil, nil)

	require.NoError(t, err)
	assert.False(t, called)
}

func TestProcessItems_RetriesThenSucceeds(t *testing.T) {
	p := NewProcessor[int](&config.BatchConfig{Size: 10, Workers: 1, MaxRetries: 2})

	var calls atomic.Int32
	err := p.ProcessItems(context.Background(), []int{1}, func(context.Context, []int) error {
		if calls.Add(1) < 3 {
			return errors.New("flaky")
		}
		return nil
	}, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestProcessItems_NonRetryableReportsFailure(t *testing.T) {
	permanent := errors.New("permanent")
	p := NewProcessor[int](&config.BatchConfig{Size: 1, Workers: 1, MaxRetries: 5})
	p.ShouldRetry = func(err error) bool { return !errors.Is(err, permanent) }

	var calls atomic.Int32
	var failed [][]int
	err := p.ProcessItems(context.Background(), []int{1, 2}, func(_ context.Context, batch []int) error {
		calls.Add(1)
		if batch[0] == 1 {
			return permanent
		}
		return nil
	}, func(batch []int, _ error) {
		failed = append(failed, batch)
	}, nil)

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, [][]int{{1}}, failed)
}

func TestProcessItems_StopCancelsRemaining(t *testing.T) {
	fatal := errors.New("fatal")
	p := NewProcessor[int](&config.BatchConfig{Size: 1, Workers: 1})

	var processed []int
	err := p.ProcessItems(context.Background(), []int{1, 2, 3}, func(_ context.Context, batch []int) error {
		processed = append(processed, batch[0])
		if batch[0] == 1 {
			return fatal
		}
		return nil
	}, nil, func(err error) bool { return errors.Is(err, fatal) })

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, []int{1}, processed)
}
