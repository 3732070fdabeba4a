package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/identity"
	"github.com/utafrali/cartstore/internal/storage/memory"
)

func TestNewStore_RequiresStorageAndIdentity(t *testing.T) {
	ctx := context.Background()

	_, err := NewStore(ctx, Deps{Identity: identity.NewSession("")})
	assert.Error(t, err)

	_, err = NewStore(ctx, Deps{KV: memory.NewKV()})
	assert.Error(t, err)
}

func TestNewStore_SeedsFromCurrentIdentity(t *testing.T) {
	kv := memory.NewKV()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "cart_u1", `[{"id":"p1","name":"Rice","price":2,"quantity":2,"image":"","unit":"","stock":5}]`))
	require.NoError(t, kv.Set(ctx, domain.GuestKey, `[{"id":"g1","name":"Tea","price":1,"quantity":1,"image":"","unit":"","stock":5}]`))

	store, err := NewStore(ctx, Deps{KV: kv, Identity: identity.NewSession("u1"), Logger: newTestLogger()})
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "cart_u1", store.Key())
	require.Len(t, store.Lines(), 1)
	assert.Equal(t, "p1", store.Lines()[0].ID)
	assert.Equal(t, 2, store.TotalItems())
}

func TestNewStore_CorruptSnapshotIsEmptyCart(t *testing.T) {
	h := newHarness(t, map[string]string{domain.GuestKey: `{"id":"p1"}`})

	assert.Empty(t, h.store.Lines())
	assert.Equal(t, 0, h.store.TotalItems())
}

func TestNewStore_ReadFailureIsEmptyCart(t *testing.T) {
	kv := newCountingKV()
	kv.failGet = errors.New("connection refused")

	store, err := NewStore(context.Background(), Deps{KV: kv, Identity: identity.NewSession(""), Logger: newTestLogger()})
	require.NoError(t, err)
	defer store.Close()

	assert.Empty(t, store.Lines())
}

// --- AddItem ---

func TestAddItem_ClampsToStockOnSecondAdd(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	n := h.store.AddItem(ctx, domain.Item{ID: "p1", Name: "Rice", Stock: 5}, 3)
	require.NotNil(t, n)
	assert.Equal(t, domain.NotificationSuccess, n.Kind)
	require.Len(t, h.store.Lines(), 1)
	assert.Equal(t, 3, h.store.Lines()[0].Quantity)
	h.assertPersisted(t)

	n = h.store.AddItem(ctx, domain.Item{ID: "p1", Name: "Rice", Stock: 5}, 4)
	require.NotNil(t, n)
	assert.Equal(t, domain.NotificationWarning, n.Kind)
	assert.Contains(t, n.Message, "5")
	require.Len(t, h.store.Lines(), 1)
	assert.Equal(t, 5, h.store.Lines()[0].Quantity)
	h.assertPersisted(t)

	assert.Equal(t, []domain.NotificationKind{domain.NotificationSuccess, domain.NotificationWarning},
		kinds(h.sink.all()))
}

func TestAddItem_UsesQuantityAsGiven(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.store.AddItem(ctx, rice(5), 0)
	assert.Empty(t, h.store.Lines(), "nothing fits, nothing inserted")

	h.store.AddItem(ctx, rice(5), 2)
	writes := h.kv.writes(domain.GuestKey)

	h.store.AddItem(ctx, rice(5), 0)
	assert.Equal(t, 2, h.store.TotalItems())
	assert.Equal(t, writes, h.kv.writes(domain.GuestKey), "unchanged line is not rewritten")

	h.store.AddItem(ctx, rice(5), -1)
	assert.Equal(t, 1, h.store.TotalItems())

	h.store.AddItem(ctx, rice(5), -10)
	require.Len(t, h.store.Lines(), 1)
	assert.Equal(t, 0, h.store.Lines()[0].Quantity)
	h.assertPersisted(t)
}

func TestAddItem_ExistingLineStockIsAuthoritative(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.store.AddItem(ctx, rice(2), 1)
	n := h.store.AddItem(ctx, rice(100), 5)

	require.NotNil(t, n)
	assert.Equal(t, domain.NotificationWarning, n.Kind)
	line := h.store.Lines()[0]
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, 2, line.Stock)
	h.assertPersisted(t)
}

func TestAddItem_NewLineClampedToItemStock(t *testing.T) {
	h := newHarness(t, nil)

	n := h.store.AddItem(context.Background(), rice(2), 7)

	require.NotNil(t, n)
	assert.Equal(t, domain.NotificationWarning, n.Kind)
	assert.Equal(t, 2, h.store.TotalItems())
}

func TestAddItem_NoStockIsNotInserted(t *testing.T) {
	h := newHarness(t, nil)

	n := h.store.AddItem(context.Background(), rice(0), 1)

	require.NotNil(t, n)
	assert.Equal(t, domain.NotificationWarning, n.Kind)
	assert.Empty(t, h.store.Lines())
	assert.Equal(t, 0, h.kv.writes(domain.GuestKey))
}

func TestAddItem_WithoutIDIsIgnored(t *testing.T) {
	h := newHarness(t, nil)

	assert.Nil(t, h.store.AddItem(context.Background(), domain.Item{Name: "Ghost", Stock: 3}, 1))
	assert.Empty(t, h.store.Lines())
	assert.Empty(t, h.sink.all())
}

func TestAddItem_StorageFailureStillUpdatesCart(t *testing.T) {
	h := newHarness(t, nil)
	h.kv.failSet = errors.New("disk full")

	n := h.store.AddItem(context.Background(), rice(5), 2)

	require.NotNil(t, n)
	assert.Equal(t, domain.NotificationSuccess, n.Kind)
	assert.Equal(t, 2, h.store.TotalItems())
}

// --- UpdateQuantity ---

func TestUpdateQuantity_BelowOneIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.AddItem(ctx, rice(5), 3)
	writes := h.kv.writes(domain.GuestKey)
	before := h.store.Lines()

	assert.Nil(t, h.store.UpdateQuantity(ctx, "p1", 0))
	assert.Nil(t, h.store.UpdateQuantity(ctx, "p1", -2))

	assert.Equal(t, before, h.store.Lines())
	assert.Equal(t, writes, h.kv.writes(domain.GuestKey))
	assert.Len(t, h.sink.all(), 1)
}

func TestUpdateQuantity_ClampsWithWarning(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.AddItem(ctx, rice(5), 1)

	n := h.store.UpdateQuantity(ctx, "p1", 9)

	require.NotNil(t, n)
	assert.Equal(t, domain.NotificationWarning, n.Kind)
	assert.Contains(t, n.Message, "5")
	assert.Equal(t, 5, h.store.Lines()[0].Quantity)
	h.assertPersisted(t)
}

func TestUpdateQuantity_WithinStock(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.AddItem(ctx, rice(5), 1)
	h.store.AddItem(ctx, domain.Item{ID: "p2", Name: "Tea", Stock: 9}, 2)

	assert.Nil(t, h.store.UpdateQuantity(ctx, "p1", 4))

	lines := h.store.Lines()
	assert.Equal(t, 4, lines[0].Quantity)
	assert.Equal(t, 2, lines[1].Quantity, "other lines are untouched")
	h.assertPersisted(t)
}

func TestUpdateQuantity_UnknownIDIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.AddItem(ctx, rice(5), 1)

	assert.Nil(t, h.store.UpdateQuantity(ctx, "nope", 3))
	assert.Equal(t, 1, h.store.TotalItems())
}

func TestUpdateQuantity_NeverRemovesZeroStockLine(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.AddItem(ctx, rice(5), 2)
	h.store.MarkItemsAsOutOfStock(ctx, []string{"Rice"})

	n := h.store.UpdateQuantity(ctx, "p1", 1)

	require.NotNil(t, n)
	require.Len(t, h.store.Lines(), 1)
	assert.Equal(t, 0, h.store.Lines()[0].Quantity)
	h.assertPersisted(t)
}

func TestQuantityNeverExceedsStock(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	items := []domain.Item{
		{ID: "a", Name: "A", Stock: 3},
		{ID: "b", Name: "B", Stock: 0},
		{ID: "c", Name: "C", Stock: 10},
	}

	for i := 0; i < 30; i++ {
		item := items[i%len(items)]
		if i%2 == 0 {
			h.store.AddItem(ctx, item, i%7)
		} else {
			h.store.UpdateQuantity(ctx, item.ID, i)
		}
		for _, line := range h.store.Lines() {
			assert.LessOrEqual(t, line.Quantity, line.Stock, "line %s after step %d", line.ID, i)
		}
		if len(h.store.Lines()) > 0 {
			h.assertPersisted(t)
		}
	}
}

// --- RemoveItem / ClearCart ---

func TestRemoveItem(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.AddItem(ctx, rice(5), 2)
	h.store.AddItem(ctx, domain.Item{ID: "p2", Name: "Tea", Stock: 5}, 1)

	h.store.RemoveItem(ctx, "nope")
	assert.Equal(t, 3, h.store.TotalItems())

	h.store.RemoveItem(ctx, "p1")
	require.Len(t, h.store.Lines(), 1)
	assert.Equal(t, "p2", h.store.Lines()[0].ID)

	stored, found := h.stored(t, domain.GuestKey)
	require.True(t, found)
	assert.Equal(t, h.store.Lines(), stored)
}

func TestClearCart(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.AddItem(ctx, rice(5), 2)

	h.store.ClearCart(ctx)

	assert.Empty(t, h.store.Lines())
	stored, found := h.stored(t, domain.GuestKey)
	require.True(t, found)
	assert.Empty(t, stored)
}

// --- MarkItemsAsOutOfStock ---

func TestMarkItemsAsOutOfStock(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.AddItem(ctx, domain.Item{ID: "p1", Name: "Rice", Stock: 5}, 1)
	h.store.AddItem(ctx, domain.Item{ID: "p2", Name: "Jasmine RICE 5KG", Stock: 5}, 1)
	h.store.AddItem(ctx, domain.Item{ID: "p3", Name: "Sugar", Stock: 5}, 1)

	h.store.MarkItemsAsOutOfStock(ctx, []string{"Rice 5kg"})

	lines := h.store.Lines()
	for _, id := range []string{"p1", "p2"} {
		line := lines[lines.IndexOf(id)]
		assert.True(t, line.OutOfStock, id)
		assert.Equal(t, 0, line.Stock, id)
		assert.Equal(t, 1, line.Quantity, id)
	}
	sugar := lines[lines.IndexOf("p3")]
	assert.False(t, sugar.OutOfStock)
	assert.Equal(t, 5, sugar.Stock)
	h.assertPersisted(t)
}

func TestMarkItemsAsOutOfStock_NoMatchDoesNotWrite(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.AddItem(ctx, rice(5), 1)
	writes := h.kv.writes(domain.GuestKey)

	h.store.MarkItemsAsOutOfStock(ctx, []string{"Coffee", ""})

	assert.Equal(t, writes, h.kv.writes(domain.GuestKey))
	assert.False(t, h.store.Lines()[0].OutOfStock)
}

// --- Persistence ---

func TestSnapshotMatchesMemoryWithoutOutOfStock(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	original := 20.0
	h.store.AddItem(ctx, domain.Item{ID: "p1", Name: "Rice 5kg", Price: 15, OriginalPrice: &original, Stock: 5}, 2)
	h.store.AddItem(ctx, domain.Item{ID: "p2", Name: "Tea", Stock: 3}, 1)
	h.store.MarkItemsAsOutOfStock(ctx, []string{"rice"})

	raw, found, err := h.kv.Get(ctx, domain.GuestKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, raw, "isOutOfStock")
	h.assertPersisted(t)
}

func TestOutOfStockMarkerDoesNotSurviveReload(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.AddItem(ctx, rice(5), 1)
	h.store.MarkItemsAsOutOfStock(ctx, []string{"rice"})

	reloaded, err := NewStore(ctx, Deps{KV: h.kv, Identity: identity.NewSession(""), Logger: newTestLogger()})
	require.NoError(t, err)
	defer reloaded.Close()

	require.Len(t, reloaded.Lines(), 1)
	assert.False(t, reloaded.Lines()[0].OutOfStock)
	assert.Equal(t, 0, reloaded.Lines()[0].Stock)
}

// --- Identity changes ---

func TestIdentityChange_GuestToUserAdoptsUserSnapshot(t *testing.T) {
	userLines := `[{"id":"u-item","name":"Coffee","price":4,"quantity":2,"image":"","unit":"","stock":9}]`
	h := newHarness(t, map[string]string{"cart_u1": userLines})
	ctx := context.Background()
	h.store.AddItem(ctx, rice(5), 1)

	h.session.SignIn("u1")

	assert.Equal(t, "cart_u1", h.store.Key())
	lines := h.store.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "u-item", lines[0].ID)

	guest, found := h.stored(t, domain.GuestKey)
	require.True(t, found)
	require.Len(t, guest, 1)
	assert.Equal(t, "p1", guest[0].ID, "guest snapshot is left intact")
}

func TestIdentityChange_NoSnapshotIsEmptyAndNotWritten(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.AddItem(ctx, rice(5), 1)

	h.session.SignIn("u1")

	assert.Empty(t, h.store.Lines())
	assert.Equal(t, 0, h.kv.writes("cart_u1"))
	_, found := h.stored(t, "cart_u1")
	assert.False(t, found)
}

func TestIdentityChange_InvalidSnapshotIsEmpty(t *testing.T) {
	h := newHarness(t, map[string]string{"cart_u1": `not json`})
	h.store.AddItem(context.Background(), rice(5), 1)

	h.session.SignIn("u1")

	assert.Empty(t, h.store.Lines())
}

func TestIdentityChange_SignOutReturnsToGuestCart(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.AddItem(ctx, rice(5), 2)

	h.session.SignIn("u1")
	h.store.AddItem(ctx, domain.Item{ID: "p9", Name: "Milk", Stock: 4}, 1)
	h.session.SignOut()

	assert.Equal(t, domain.GuestKey, h.store.Key())
	lines := h.store.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "p1", lines[0].ID)
	assert.Equal(t, 2, lines[0].Quantity)

	user, found := h.stored(t, "cart_u1")
	require.True(t, found)
	require.Len(t, user, 1)
	assert.Equal(t, "p9", user[0].ID)
}

func TestIdentityChange_StaleDeliveryIsNotAdopted(t *testing.T) {
	kv := memory.NewKV()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "cart_u1", `[{"id":"p1","name":"Rice","price":1,"quantity":1,"image":"","unit":"","stock":3}]`))
	provider := &fakeProvider{}

	store, err := NewStore(ctx, Deps{KV: kv, Identity: provider, Logger: newTestLogger()})
	require.NoError(t, err)

	// The identity has already moved on to u2 when the change to u1 is delivered.
	provider.mu.Lock()
	provider.current = "u2"
	provider.mu.Unlock()
	provider.deliver("u1")

	assert.Equal(t, "cart_u1", store.Key())
	assert.Empty(t, store.Lines())
}

func TestOperationsAfterIdentityChangePersistUnderNewKey(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.session.SignIn("u7")
	h.store.AddItem(ctx, rice(5), 1)

	user, found := h.stored(t, "cart_u7")
	require.True(t, found)
	assert.Len(t, user, 1)
	_, found = h.stored(t, domain.GuestKey)
	assert.False(t, found)
}

// --- Observer ---

func TestObserver_ReceivesPersistedChanges(t *testing.T) {
	kv := memory.NewKV()
	obs := new(mockObserver)
	ctx := context.Background()

	obs.On("CartUpdated", ctx, domain.GuestKey, mock.MatchedBy(func(l domain.Lines) bool {
		return len(l) == 1 && l[0].ID == "p1"
	})).Return(nil).Once()
	obs.On("CartCleared", ctx, domain.GuestKey).Return(errors.New("broker down")).Once()

	store, err := NewStore(ctx, Deps{KV: kv, Identity: identity.NewSession(""), Observer: obs, Logger: newTestLogger()})
	require.NoError(t, err)
	defer store.Close()

	store.AddItem(ctx, rice(5), 1)
	store.RemoveItem(ctx, "missing")
	store.UpdateQuantity(ctx, "p1", 0)
	store.ClearCart(ctx)

	assert.Empty(t, store.Lines())
	obs.AssertExpectations(t)
}

// --- Concurrency ---

func TestConcurrentAddsAreSerialized(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.store.AddItem(ctx, domain.Item{ID: "p1", Name: "Rice", Stock: 100}, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, h.store.TotalItems())
	stored, found := h.stored(t, domain.GuestKey)
	require.True(t, found)
	assert.Equal(t, 50, stored.TotalItems())
}

func kinds(ns []domain.Notification) []domain.NotificationKind {
	out := make([]domain.NotificationKind, len(ns))
	for i, n := range ns {
		out[i] = n.Kind
	}
	return out
}
