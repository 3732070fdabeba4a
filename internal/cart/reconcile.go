package cart

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/cartstore/pkg/logger"
	"github.com/utafrali/cartstore/pkg/tracing"
)

const tracerName = "github.com/utafrali/cartstore/internal/cart"

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Key     string `json:"cartKey"`
	Checked int    `json:"checked"`
	Failed  int    `json:"failed"`
	Changed int    `json:"changed"`
	// Applied reports whether the refreshed lines replaced the cart.
	Applied bool `json:"applied"`
	// Discarded reports that the identity changed while lookups were in flight.
	Discarded bool `json:"discarded"`
}

// Mount starts the one-time background reconciliation of the lines present now.
// Later calls do nothing and return the same channel, which is closed when the
// pass completes.
func (s *Store) Mount(ctx context.Context) <-chan struct{} {
	s.mountOnce.Do(func() {
		go func() {
			defer close(s.mounted)
			s.Reconcile(ctx)
		}()
	})
	return s.mounted
}

// Reconcile refreshes the stock of every line from the catalog. Lookups run
// concurrently and fail independently; a failed lookup leaves its line's stock
// unchanged. Fetched stock is written onto the current lines, matched by id,
// in one update that is persisted once. Quantities are not clamped here.
func (s *Store) Reconcile(ctx context.Context) ReconcileResult {
	ctx, span := tracing.Start(ctx, tracerName, "cart.Reconcile")
	defer span.End()

	s.mu.Lock()
	key, generation := s.key, s.generation
	lines := s.lines.Clone()
	s.mu.Unlock()

	ctx = logger.WithCartKey(ctx, key)
	result := ReconcileResult{Key: key, Checked: len(lines)}
	if s.catalog == nil || len(lines) == 0 {
		return result
	}

	lookupCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	stocks := make([]*int, len(lines))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, line := range lines {
		g.Go(func() error {
			stock, ok := s.lookupStock(lookupCtx, line.ID)
			if ok {
				stocks[i] = &stock
			}
			return nil
		})
	}
	_ = g.Wait()

	fetched := make(map[string]int, len(lines))
	for i, stock := range stocks {
		if stock == nil {
			result.Failed++
			continue
		}
		fetched[lines[i].ID] = *stock
	}

	// Stock is applied to the lines as they are now, so edits made while the
	// lookups ran are kept. Lines removed in the meantime are skipped.
	var ch *change
	s.mu.Lock()
	if s.key != key || s.generation != generation {
		result.Discarded = true
	} else {
		refreshed := s.lines.Clone()
		for i := range refreshed {
			stock, ok := fetched[refreshed[i].ID]
			if ok && refreshed[i].Stock != stock {
				refreshed[i].Stock = stock
				result.Changed++
			}
		}
		if result.Changed > 0 {
			s.lines = refreshed
			ch = s.commit(ctx, "reconcile", false)
			result.Applied = true
		}
	}
	s.mu.Unlock()
	s.publish(ctx, ch)

	span.SetAttributes(
		attribute.Int("cart.lines", result.Checked),
		attribute.Int("cart.lookups_failed", result.Failed),
		attribute.Int("cart.lines_changed", result.Changed),
	)

	s.log(ctx).InfoContext(ctx, "stock reconciliation finished",
		slog.Int("checked", result.Checked),
		slog.Int("failed", result.Failed),
		slog.Int("changed", result.Changed),
		slog.Bool("applied", result.Applied),
		slog.Bool("discarded", result.Discarded),
		slog.Duration("duration", time.Since(start)),
	)

	return result
}

// lookupStock fetches the catalog stock for one product. Negative stock is
// reported as zero.
func (s *Store) lookupStock(ctx context.Context, id string) (int, bool) {
	product, err := s.catalog.GetProductByID(ctx, id)
	if err != nil {
		reconcileLookupsTotal.WithLabelValues(outcomeFailed).Inc()
		s.log(ctx).WarnContext(ctx, "stock lookup failed",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	if product == nil {
		reconcileLookupsTotal.WithLabelValues(outcomeMissing).Inc()
		return 0, false
	}
	stock, ok := product.Stock()
	if !ok {
		reconcileLookupsTotal.WithLabelValues(outcomeMissing).Inc()
		s.log(ctx).WarnContext(ctx, "catalog reported no stock",
			slog.String("product_id", id),
		)
		return 0, false
	}
	reconcileLookupsTotal.WithLabelValues(outcomeOK).Inc()
	return max(stock, 0), true
}
