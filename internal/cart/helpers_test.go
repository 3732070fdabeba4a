package cart

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartstore/internal/catalog"
	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/identity"
	"github.com/utafrali/cartstore/internal/storage"
	"github.com/utafrali/cartstore/internal/storage/memory"
	apperrors "github.com/utafrali/cartstore/pkg/errors"
)

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (r *recordingSink) Notify(_ context.Context, n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingSink) all() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.got...)
}

// countingKV wraps a KV, counts writes per key and can be told to fail.
type countingKV struct {
	storage.KV

	mu      sync.Mutex
	sets    map[string]int
	failSet error
	failGet error
}

func newCountingKV() *countingKV {
	return &countingKV{KV: memory.NewKV(), sets: make(map[string]int)}
}

func (c *countingKV) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	err := c.failGet
	c.mu.Unlock()
	if err != nil {
		return "", false, err
	}
	return c.KV.Get(ctx, key)
}

func (c *countingKV) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	c.sets[key]++
	err := c.failSet
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.KV.Set(ctx, key, value)
}

func (c *countingKV) writes(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets[key]
}

// fakeCatalog serves stock from a map. Unknown ids are not found.
type fakeCatalog struct {
	mu     sync.Mutex
	stocks map[string]int
	errs   map[string]error
	calls  int

	// gate, when set, blocks every lookup until it is closed or ctx ends.
	gate    chan struct{}
	started chan string
}

func newFakeCatalog(stocks map[string]int) *fakeCatalog {
	return &fakeCatalog{stocks: stocks, errs: make(map[string]error)}
}

func (f *fakeCatalog) GetProductByID(ctx context.Context, id string) (*catalog.Product, error) {
	f.mu.Lock()
	f.calls++
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- id
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	stock, ok := f.stocks[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	return &catalog.Product{ID: id, Quantity: &stock}, nil
}

func (f *fakeCatalog) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// mockObserver records cart events.
type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) CartUpdated(ctx context.Context, key string, lines domain.Lines) error {
	args := m.Called(ctx, key, lines)
	return args.Error(0)
}

func (m *mockObserver) CartCleared(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// fakeProvider lets a test report a current identity that differs from the
// one being delivered.
type fakeProvider struct {
	mu      sync.Mutex
	current string
	fn      func(string)
}

func (p *fakeProvider) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *fakeProvider) Subscribe(fn func(string)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn = fn
	return func() {}
}

func (p *fakeProvider) deliver(id string) {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	fn(id)
}

type harness struct {
	store   *Store
	kv      *countingKV
	session *identity.Session
	sink    *recordingSink
	catalog *fakeCatalog
}

func newHarness(t *testing.T, seed map[string]string, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		kv:      newCountingKV(),
		session: identity.NewSession(""),
		sink:    &recordingSink{},
		catalog: newFakeCatalog(map[string]int{}),
	}
	for k, v := range seed {
		require.NoError(t, h.kv.KV.Set(context.Background(), k, v))
	}

	store, err := NewStore(context.Background(), Deps{
		KV:       h.kv,
		Identity: h.session,
		Catalog:  h.catalog,
		Sink:     h.sink,
		Logger:   newTestLogger(),
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	h.store = store
	return h
}

func (h *harness) stored(t *testing.T, key string) (domain.Lines, bool) {
	t.Helper()
	raw, found, err := h.kv.KV.Get(context.Background(), key)
	require.NoError(t, err)
	if !found {
		return nil, false
	}
	lines, err := decodeSnapshot(raw)
	require.NoError(t, err)
	return lines, true
}

// assertPersisted checks that the snapshot under the active key equals the
// in-memory lines with the out-of-stock marker cleared.
func (h *harness) assertPersisted(t *testing.T) {
	t.Helper()
	key := h.store.Key()
	stored, found := h.stored(t, key)
	require.True(t, found, "no snapshot under %s", key)

	want := h.store.Lines()
	for i := range want {
		want[i].OutOfStock = false
	}
	assert.Equal(t, want, stored)
}

func rice(stock int) domain.Item {
	return domain.Item{ID: "p1", Name: "Rice 5kg", Price: 12.5, Unit: "bag", Image: "rice.png", Stock: stock}
}
