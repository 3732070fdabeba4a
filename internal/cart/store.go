package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/cartstore/internal/catalog"
	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/identity"
	"github.com/utafrali/cartstore/internal/notify"
	"github.com/utafrali/cartstore/internal/storage"
	"github.com/utafrali/cartstore/pkg/logger"
)

// DefaultReconcileConcurrency is the default bound on concurrent catalog lookups.
const DefaultReconcileConcurrency = 8

// Observer is told about every persisted change to the cart.
type Observer interface {
	CartUpdated(ctx context.Context, key string, lines domain.Lines) error
	CartCleared(ctx context.Context, key string) error
}

// Deps holds the collaborators of a Store. KV and Identity are required.
type Deps struct {
	KV       storage.KV
	Identity identity.Provider
	Catalog  catalog.Lookup
	Sink     notify.Sink
	Observer Observer
	Logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithReconcileConcurrency bounds the number of concurrent catalog lookups.
func WithReconcileConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithReconcileTimeout bounds one reconciliation pass. Zero means no timeout.
func WithReconcileTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// Store owns the cart of the currently active identity.
//
// All mutations run under one mutex and persist the snapshot before the lock is
// released, so sequential calls observe each other in issuance order.
// Notifications and observer events are delivered after the lock is released.
type Store struct {
	kv       storage.KV
	identity identity.Provider
	catalog  catalog.Lookup
	sink     notify.Sink
	observer Observer
	logger   *slog.Logger

	concurrency int
	timeout     time.Duration

	mu    sync.Mutex
	key   string
	lines domain.Lines
	// generation increments on every identity change.
	generation uint64

	unsubscribe func()

	mountOnce sync.Once
	mounted   chan struct{}
}

// NewStore creates the store, seeds it from the snapshot of the current identity
// and subscribes to identity changes.
func NewStore(ctx context.Context, deps Deps, opts ...Option) (*Store, error) {
	if deps.KV == nil {
		return nil, errors.New("cart store: storage is required")
	}
	if deps.Identity == nil {
		return nil, errors.New("cart store: identity provider is required")
	}
	if deps.Sink == nil {
		deps.Sink = notify.Discard
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Store{
		kv:          deps.KV,
		identity:    deps.Identity,
		catalog:     deps.Catalog,
		sink:        deps.Sink,
		observer:    deps.Observer,
		logger:      deps.Logger,
		concurrency: DefaultReconcileConcurrency,
		lines:       domain.Lines{},
		mounted:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Subscribing under the lock makes an identity change that races with
	// seeding wait until the seed is in place.
	s.mu.Lock()
	s.unsubscribe = deps.Identity.Subscribe(s.handleIdentityChange)
	s.key = domain.KeyFor(deps.Identity.Current())
	s.lines = s.load(ctx, s.key)
	cartLines.Set(float64(len(s.lines)))
	key, seeded := s.key, len(s.lines)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "cart store initialized",
		slog.String("cart_key", key),
		slog.Int("lines", seeded),
	)

	return s, nil
}

// Close stops following identity changes.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// change describes a persisted mutation to report to the observer.
type change struct {
	key     string
	lines   domain.Lines
	cleared bool
}

// AddItem adds quantity of item to the cart. The quantity is taken as given;
// only clamping bounds it. An existing line keeps its own stock as the
// ceiling and never drops below zero, and a new line is inserted only when
// at least one unit fits.
func (s *Store) AddItem(ctx context.Context, item domain.Item, quantity int) *domain.Notification {
	if item.ID == "" {
		s.log(ctx).WarnContext(ctx, "ignoring item without id")
		return nil
	}

	s.mu.Lock()
	var (
		n       domain.Notification
		clamped bool
		changed bool
	)
	if idx := s.lines.IndexOf(item.ID); idx >= 0 {
		line := &s.lines[idx]
		var qty int
		qty, clamped = domain.Clamp(line.Quantity+quantity, line.Stock)
		qty = max(qty, 0)
		changed = qty != line.Quantity
		line.Quantity = qty
		n = addNotification(displayName(item.Name, line.Name), clamped, line.Stock)
	} else {
		var line domain.Line
		line, clamped = domain.NewLine(item, quantity)
		if line.Quantity > 0 {
			s.lines = append(s.lines, line)
			changed = true
		}
		n = addNotification(line.Name, clamped, line.Stock)
	}
	var ch *change
	if changed {
		ch = s.commit(ctx, "add_item", false)
	}
	s.mu.Unlock()

	if clamped {
		stockClampsTotal.WithLabelValues("add_item").Inc()
	}
	s.publish(ctx, ch)
	s.sink.Notify(ctx, n)
	return &n
}

// UpdateQuantity sets the quantity of the line with the given id, clamped to its
// stock. Quantities below 1 and unknown ids are ignored.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) *domain.Notification {
	if quantity < 1 {
		return nil
	}

	s.mu.Lock()
	idx := s.lines.IndexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	line := &s.lines[idx]
	qty, clamped := domain.Clamp(quantity, line.Stock)
	var ch *change
	if qty != line.Quantity {
		line.Quantity = qty
		ch = s.commit(ctx, "update_quantity", false)
	}
	name, stock := line.Name, line.Stock
	s.mu.Unlock()

	s.publish(ctx, ch)
	if !clamped {
		return nil
	}
	stockClampsTotal.WithLabelValues("update_quantity").Inc()
	n := domain.InsufficientStock(name, stock)
	s.sink.Notify(ctx, n)
	return &n
}

// RemoveItem deletes the line with the given id, if present.
func (s *Store) RemoveItem(ctx context.Context, id string) {
	s.mu.Lock()
	idx := s.lines.IndexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	ch := s.commit(ctx, "remove_item", false)
	s.mu.Unlock()

	s.publish(ctx, ch)
}

// ClearCart empties the cart unconditionally.
func (s *Store) ClearCart(ctx context.Context) {
	s.mu.Lock()
	s.lines = domain.Lines{}
	ch := s.commit(ctx, "clear_cart", true)
	s.mu.Unlock()

	s.publish(ctx, ch)
}

// MarkItemsAsOutOfStock flags every line whose name contains, or is contained
// by, one of names (ignoring case) and zeroes its stock.
func (s *Store) MarkItemsAsOutOfStock(ctx context.Context, names []string) {
	s.mu.Lock()
	var marked int
	for i := range s.lines {
		for _, name := range names {
			if s.lines[i].MatchesName(name) {
				s.lines[i].OutOfStock = true
				s.lines[i].Stock = 0
				marked++
				break
			}
		}
	}
	var ch *change
	if marked > 0 {
		ch = s.commit(ctx, "mark_out_of_stock", false)
	}
	s.mu.Unlock()

	if marked > 0 {
		s.log(ctx).InfoContext(ctx, "lines marked out of stock",
			slog.Int("marked", marked),
			slog.Int("reported", len(names)),
		)
	}
	s.publish(ctx, ch)
}

// Lines returns a copy of the current lines.
func (s *Store) Lines() domain.Lines {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.Clone()
}

// TotalItems returns the sum of quantities across all lines.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.TotalItems()
}

// Key returns the storage key of the active identity.
func (s *Store) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// handleIdentityChange clears the cart, then adopts the new identity's snapshot
// if it is non-empty and the identity has not moved on while it was read.
// The clear is not persisted.
func (s *Store) handleIdentityChange(id string) {
	key := domain.KeyFor(id)
	ctx := logger.WithCartKey(context.Background(), key)

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.key
	s.generation++
	s.key = key
	s.lines = domain.Lines{}

	loaded := s.load(ctx, key)
	current := domain.KeyFor(s.identity.Current())
	adopted := len(loaded) > 0 && current == key
	if adopted {
		s.lines = loaded
	}
	cartLines.Set(float64(len(s.lines)))

	s.log(ctx).InfoContext(ctx, "identity changed",
		slog.String("previous_key", previous),
		slog.Bool("adopted_snapshot", adopted),
		slog.Int("lines", len(s.lines)),
	)
}

// load reads and decodes the snapshot at key. Missing, unreadable and corrupt
// snapshots all yield an empty cart.
func (s *Store) load(ctx context.Context, key string) domain.Lines {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		snapshotFailuresTotal.WithLabelValues(stageRead).Inc()
		s.log(ctx).ErrorContext(ctx, "failed to read cart snapshot",
			slog.String("cart_key", key),
			slog.String("error", err.Error()),
		)
		return domain.Lines{}
	}
	if !found {
		return domain.Lines{}
	}

	lines, err := decodeSnapshot(raw)
	if err != nil {
		snapshotFailuresTotal.WithLabelValues(stageDecode).Inc()
		s.log(ctx).WarnContext(ctx, "discarding corrupt cart snapshot",
			slog.String("cart_key", key),
			slog.String("error", err.Error()),
		)
		return domain.Lines{}
	}
	return lines
}

// commit persists the current lines under the active key and returns the change
// for the observer. Callers must hold s.mu.
func (s *Store) commit(ctx context.Context, op string, cleared bool) *change {
	operationsTotal.WithLabelValues(op).Inc()
	cartLines.Set(float64(len(s.lines)))
	s.persist(ctx)
	return &change{key: s.key, lines: s.lines.Clone(), cleared: cleared}
}

// persist writes the snapshot. Failures are logged and never surfaced.
// Callers must hold s.mu.
func (s *Store) persist(ctx context.Context) {
	raw, err := encodeSnapshot(s.lines)
	if err != nil {
		snapshotFailuresTotal.WithLabelValues(stageEncode).Inc()
		s.log(ctx).ErrorContext(ctx, "failed to encode cart snapshot",
			slog.String("cart_key", s.key),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		snapshotFailuresTotal.WithLabelValues(stageWrite).Inc()
		s.log(ctx).ErrorContext(ctx, "failed to persist cart snapshot",
			slog.String("cart_key", s.key),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) publish(ctx context.Context, ch *change) {
	if ch == nil || s.observer == nil {
		return
	}
	var err error
	if ch.cleared {
		err = s.observer.CartCleared(ctx, ch.key)
	} else {
		err = s.observer.CartUpdated(ctx, ch.key, ch.lines)
	}
	if err != nil {
		s.log(ctx).WarnContext(ctx, "failed to publish cart event",
			slog.String("cart_key", ch.key),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}

func addNotification(name string, clamped bool, stock int) domain.Notification {
	if clamped {
		return domain.InsufficientStock(name, stock)
	}
	return domain.AddedToCart(name)
}

func displayName(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}
