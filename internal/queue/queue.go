// Package queue implements the store-resident work queue. A row is unclaimed
// while is_locked = 0; leasing it flips the flag to 1 before any work starts,
// and nothing in the pipeline ever flips it back.
//
// Leases must be issued by a single goroutine: selecting and claiming are two
// statements, and exclusivity holds only because no other lease runs between
// them.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/agentic-research/commentprep/internal/retry"
	"github.com/agentic-research/commentprep/internal/store"
)

// DefaultLeaseSize is the number of rows per lease.
const DefaultLeaseSize = 10_000

// ErrDoubleClaim means a lease returned a row this queue already handed out.
var ErrDoubleClaim = errors.New("row leased twice")

// Source is the store side of the queue.
type Source interface {
	SelectUnclaimed(ctx context.Context, limit int) ([]store.Row, error)
	Claim(ctx context.Context, rowIDs []int64) error
}

// Batch is a set of claimed rows. Seq numbers leases from 1.
type Batch struct {
	Seq  int
	Rows []store.Row
}

// Queue leases bounded batches of unclaimed rows.
type Queue struct {
	src   Source
	limit int
	retry retry.Policy

	seq int
	// ledger holds every rowid leased by this queue, so exclusivity is
	// checked rather than assumed.
	ledger *roaring64.Bitmap
}

// New returns a Queue leasing up to limit rows at a time.
func New(src Source, limit int, policy retry.Policy) *Queue {
	if limit <= 0 {
		limit = DefaultLeaseSize
	}
	return &Queue{src: src, limit: limit, retry: policy, ledger: roaring64.New()}
}

// Limit is the lease size.
func (q *Queue) Limit() int { return q.limit }

// LeaseNext selects up to Limit unclaimed rows and claims them. exhausted is
// true once a lease comes back short, meaning no unclaimed rows remain.
func (q *Queue) LeaseNext(ctx context.Context) (Batch, bool, error) {
	var rows []store.Row
	err := q.retry.Do(ctx, "select unclaimed", func(ctx context.Context) error {
		var err error
		rows, err = q.src.SelectUnclaimed(ctx, q.limit)
		return err
	})
	if err != nil {
		return Batch{}, false, fmt.Errorf("lease: %w", err)
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		if q.ledger.Contains(uint64(r.RowID)) {
			return Batch{}, false, fmt.Errorf("lease: row %d (%s): %w", r.RowID, r.Name, ErrDoubleClaim)
		}
		ids[i] = r.RowID
	}

	if len(ids) > 0 {
		err = q.retry.Do(ctx, "claim", func(ctx context.Context) error {
			return q.src.Claim(ctx, ids)
		})
		if err != nil {
			return Batch{}, false, fmt.Errorf("lease: %w", err)
		}
		for _, id := range ids {
			q.ledger.Add(uint64(id))
		}
	}

	q.seq++
	return Batch{Seq: q.seq, Rows: rows}, len(rows) < q.limit, nil
}

// Claimed is the number of distinct rows leased so far.
func (q *Queue) Claimed() uint64 {
	return q.ledger.GetCardinality()
}
