package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CopyFn abstracts a backend's bulk insert. Implementations insert rows
// (aligned to columns) and return the number of rows inserted.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// BatchStats summarizes a LoadBatches run.
type BatchStats struct {
	Rows    int64
	Batches int64
}

// LoadBatches drains rows from in, groups them into batches of batchSize
// and calls copyFn for each non-empty batch. It returns the rows reported by
// copyFn and the first error encountered.
//
// Cancellation: returns ctx.Err() when canceled. Progress is logged at debug
// level on each successful flush.
func LoadBatches(
	ctx context.Context,
	logger *slog.Logger,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
) (BatchStats, error) {
	var stats BatchStats
	if batchSize <= 0 {
		return stats, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return stats, fmt.Errorf("copyFn must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var (
		batch     = make([][]any, 0, batchSize)
		start     = time.Now()
		lastFlush = start
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		stats.Rows += n

		// The backend must not retain rows after returning, so the
		// backing array is reused.
		batch = batch[:0]

		if err != nil {
			logger.Error("copy batch failed", "batch", stats.Batches+1, "rows", n, "total", stats.Rows, "error", err)
			return err
		}

		stats.Batches++
		now := time.Now()
		since := now.Sub(lastFlush)
		rps := float64(0)
		if since > 0 {
			rps = float64(n) / since.Seconds()
		}
		logger.Debug("copy batch",
			"batch", stats.Batches,
			"rows", n,
			"total", stats.Rows,
			"rps", int64(rps),
			"elapsed", now.Sub(start).Truncate(time.Millisecond),
		)
		lastFlush = now
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()

		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return stats, err
				}
				return stats, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}
	}
}
