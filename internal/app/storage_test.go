package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartstore/internal/config"
	"github.com/utafrali/cartstore/internal/storage/memory"
	"github.com/utafrali/cartstore/pkg/health"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStorage_Memory(t *testing.T) {
	hh := health.NewHandler()
	cfg := &config.Config{StorageDriver: config.DriverMemory}

	s, err := openStorage(context.Background(), cfg, testLogger(), hh)
	require.NoError(t, err)
	defer s.close()

	ctx := context.Background()
	require.NoError(t, s.kv.Set(ctx, "cart_guest", "[]"))
	v, found, err := s.kv.Get(ctx, "cart_guest")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[]", v)

	rec := httptest.NewRecorder()
	hh.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "memory")
}

func TestOpenStorage_SQLite(t *testing.T) {
	hh := health.NewHandler()
	cfg := &config.Config{
		StorageDriver: config.DriverSQLite,
		SQLitePath:    filepath.Join(t.TempDir(), "carts", "cart.db"),
	}

	s, err := openStorage(context.Background(), cfg, testLogger(), hh)
	require.NoError(t, err)
	defer s.close()

	ctx := context.Background()
	require.NoError(t, s.kv.Set(ctx, "cart_u1", `[{"id":"p1"}]`))
	v, found, err := s.kv.Get(ctx, "cart_u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[{"id":"p1"}]`, v)

	rec := httptest.NewRecorder()
	hh.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sqlite")
}

type failingPingKV struct {
	*memory.KV
}

func (failingPingKV) Ping(context.Context) error { return errors.New("connection refused") }

func TestRegisterStorageHealth_FailingBackendNotReady(t *testing.T) {
	hh := health.NewHandler()
	registerStorageHealth(hh, "postgres", failingPingKV{KV: memory.NewKV()})

	rec := httptest.NewRecorder()
	hh.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

type plainKV struct{}

func (plainKV) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (plainKV) Set(context.Context, string, string) error        { return nil }
func (plainKV) Remove(context.Context, string) error             { return nil }

func TestRegisterStorageHealth_SkipsBackendWithoutPing(t *testing.T) {
	hh := health.NewHandler()
	registerStorageHealth(hh, "plain", plainKV{})

	rec := httptest.NewRecorder()
	hh.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "plain")
}
