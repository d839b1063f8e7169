package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Kamar-Folarin/feed-sync/internal/config"
)

// Progress reports how far a ProcessItems call got
type Progress struct {
	TotalBatches     int       `json:"total_batches"`
	ProcessedBatches int       `json:"processed_batches"`
	FailedBatches    int       `json:"failed_batches"`
	TotalItems       int       `json:"total_items"`
	ProcessedItems   int       `json:"processed_items"`
	StartTime        time.Time `json:"start_time"`
	LastUpdateTime   time.Time `json:"last_update_time"`
	Errors           []error   `json:"-"`
}

// Processor handles batch processing of items
type Processor[T any] struct {
	config     *config.BatchConfig
	statusChan chan *Progress
	mu         sync.Mutex
	// ShouldRetry decides whether a failed batch is attempted again.
	// When nil every error is retried.
	ShouldRetry func(err error) bool
}

// NewProcessor creates a new batch processor
func NewProcessor[T any](cfg *config.BatchConfig) *Processor[T] {
	return &Processor[T]{
		config:     cfg,
		statusChan: make(chan *Progress, 1),
	}
}

// ProcessItems splits items into batches and runs processFn over them with
// the configured number of workers. Each failed batch is reported to
// onFailure (when set) and processing continues with the remaining batches
// unless stop returns true for the error. The first error is returned.
func (p *Processor[T]) ProcessItems(
	ctx context.Context,
	items []T,
	processFn func(ctx context.Context, batch []T) error,
	onFailure func(batch []T, err error),
	stop func(err error) bool,
) error {
	totalItems := len(items)
	if totalItems == 0 {
		return nil
	}

	batchSize := p.config.Size
	if batchSize <= 0 {
		batchSize = 100
	}
	workers := p.config.Workers
	if workers <= 0 {
		workers = 1
	}

	totalBatches := (totalItems + batchSize - 1) / batchSize
	progress := &Progress{
		TotalBatches:   totalBatches,
		TotalItems:     totalItems,
		StartTime:      time.Now(),
		LastUpdateTime: time.Now(),
	}
	p.updateProgress(progress)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerChan := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var processErr error
	var mu sync.Mutex

	for i := 0; i < totalBatches; i++ {
		select {
		case <-ctx.Done():
			wg.Wait()
			mu.Lock()
			defer mu.Unlock()
			if processErr != nil {
				return processErr
			}
			progress.Errors = append(progress.Errors, ctx.Err())
			p.updateProgress(progress)
			return ctx.Err()
		case workerChan <- struct{}{}:
		}

		start := i * batchSize
		end := min(start+batchSize, totalItems)
		batch := items[start:end]

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-workerChan }()

			err := p.processBatchWithRetry(ctx, batch, processFn)

			mu.Lock()
			defer mu.Unlock()
			progress.LastUpdateTime = time.Now()
			if err != nil {
				if processErr == nil {
					processErr = err
				}
				progress.FailedBatches++
				progress.Errors = append(progress.Errors, err)
				p.updateProgress(progress)
				if onFailure != nil {
					onFailure(batch, err)
				}
				if stop != nil && stop(err) {
					cancel()
				}
				return
			}
			progress.ProcessedBatches++
			progress.ProcessedItems += len(batch)
			p.updateProgress(progress)
		}()

		if p.config.BatchDelay > 0 && i < totalBatches-1 {
			select {
			case <-ctx.Done():
			case <-time.After(p.config.BatchDelay):
			}
		}
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	p.updateProgress(progress)
	return processErr
}

// GetProgress returns the latest progress snapshot channel
func (p *Processor[T]) GetProgress() <-chan *Progress {
	return p.statusChan
}

// processBatchWithRetry processes a batch with retry logic
func (p *Processor[T]) processBatchWithRetry(ctx context.Context, batch []T, processFn func(ctx context.Context, batch []T) error) error {
	var lastErr error
	for retry := 0; retry <= p.config.MaxRetries; retry++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := processFn(ctx, batch)
		if err == nil {
			return nil
		}
		lastErr = err
		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			return err
		}

		if retry < p.config.MaxRetries {
			backoff := time.Duration(float64(p.config.BatchDelay) * float64(retry+1))
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("failed to process batch after %d retries: %w", p.config.MaxRetries, lastErr)
}

// updateProgress publishes a copy of the current progress, replacing any unread value
func (p *Processor[T]) updateProgress(progress *Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := *progress
	snapshot.Errors = append([]error(nil), progress.Errors...)
	select {
	case p.statusChan <- &snapshot:
	default:
		select {
		case <-p.statusChan:
		default:
		}
		p.statusChan <- &snapshot
	}
}
