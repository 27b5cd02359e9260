package pipeline

import (
	"context"
	"fmt"

	"github.com/agentic-research/commentprep/internal/queue"
	"github.com/agentic-research/commentprep/internal/retry"
	"github.com/agentic-research/commentprep/internal/sanitize"
	"github.com/agentic-research/commentprep/internal/store"
)

// Writer stores sanitized bodies for a whole batch at once.
type Writer interface {
	WriteSanitized(ctx context.Context, results []store.Result) error
}

// Worker sanitizes leased batches. It holds no per-batch state and can be
// shared by all worker goroutines.
type Worker struct {
	writer    Writer
	sanitizer *sanitize.Sanitizer
	retry     retry.Policy
}

func NewWorker(w Writer, s *sanitize.Sanitizer, policy retry.Policy) *Worker {
	return &Worker{writer: w, sanitizer: s, retry: policy}
}

// Process transforms every row in b and writes all results in one batched
// update. The transform is total, so only the write is retried.
func (w *Worker) Process(ctx context.Context, b queue.Batch) error {
	if len(b.Rows) == 0 {
		return nil
	}
	results := make([]store.Result, len(b.Rows))
	for i, r := range b.Rows {
		results[i] = store.Result{RowID: r.RowID, Sanitized: w.sanitizer.Transform(r.Body)}
	}
	err := w.retry.Do(ctx, "write sanitized", func(ctx context.Context) error {
		return w.writer.WriteSanitized(ctx, results)
	})
	if err != nil {
		return fmt.Errorf("batch %d: %w", b.Seq, err)
	}
	return nil
}
