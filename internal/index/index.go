// Package index builds the secondary indexes over the comments table. Builds
// are exclusive, so they run once, sequentially, after the bulk load.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentic-research/commentprep/internal/store"
)

// Defaults are the lookups later passes need: parent reference, external
// identifier and queue flag.
var Defaults = []store.Index{
	{Name: "comments_parent_id", Column: "parent_id"},
	{Name: "comments_name", Column: "name"},
	{Name: "comments_is_locked", Column: "is_locked"},
}

// Target creates one index.
type Target interface {
	BuildIndex(ctx context.Context, ix store.Index, ifAbsent bool) error
}

// Options configure a Builder.
type Options struct {
	// IfAbsent makes builds idempotent. Without it, building an index that
	// already exists is an error.
	IfAbsent bool
	// Indexes overrides Defaults.
	Indexes []store.Index
	Logger  *slog.Logger
}

// Builder creates a fixed list of indexes.
type Builder struct {
	target  Target
	indexes []store.Index
	opts    Options
	logger  *slog.Logger
}

func NewBuilder(target Target, opts Options) *Builder {
	indexes := opts.Indexes
	if len(indexes) == 0 {
		indexes = Defaults
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{target: target, indexes: indexes, opts: opts, logger: logger}
}

// BuildAll creates every index in order and stops at the first failure.
func (b *Builder) BuildAll(ctx context.Context) error {
	for _, ix := range b.indexes {
		start := time.Now()
		b.logger.Info("building index", "index", ix.Name, "column", ix.Column)
		if err := b.target.BuildIndex(ctx, ix, b.opts.IfAbsent); err != nil {
			return fmt.Errorf("build indexes: %w", err)
		}
		b.logger.Info("index ready", "index", ix.Name, "elapsed", time.Since(start).Round(time.Millisecond))
	}
	return nil
}
