package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/config"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/domain"
)

var (
	catStart = time.Date(2024, 5, 12, 14, 0, 0, 0, time.UTC)
	catEnd   = catStart.Add(2 * time.Hour)
)

// fakeStore serves stream lengths per key.
type fakeStore struct {
	mu      sync.Mutex
	lengths map[string]int64
}

func (f *fakeStore) StreamLength(_ context.Context, streamKey string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lengths[streamKey]
}

func (f *fakeStore) StreamExists(ctx context.Context, streamKey string) bool {
	return f.StreamLength(ctx, streamKey) > 0
}

func (f *fakeStore) ReadLocations(_ context.Context, _ string, _, _ time.Time) []domain.LocationPoint {
	return nil
}

func (f *fakeStore) ReadCarData(_ context.Context, _ string, _, _ time.Time) []domain.CarData {
	return nil
}

func (f *fakeStore) FirstTimestamp(_ context.Context, _ string) *time.Time { return nil }
func (f *fakeStore) LastTimestamp(_ context.Context, _ string) *time.Time  { return nil }

func (f *fakeStore) setLength(streamKey string, length int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lengths[streamKey] = length
}

func testSessions() []config.SessionConfig {
	return []config.SessionConfig{
		{Key: "9140", Name: "Monaco Grand Prix", DateStart: catStart, DateEnd: catEnd},
		{Key: "9141", Name: "Canadian Grand Prix", DateStart: catStart, DateEnd: catEnd},
	}
}

func TestCatalog_ListAndGet(t *testing.T) {
	store := &fakeStore{lengths: map[string]int64{
		"telemetry:location:9140": 1200,
		"telemetry:cardata:9140":  800,
	}}
	cat := New(context.Background(), store, testSessions())

	assert.Len(t, cat.List(), 2)

	info, ok := cat.Get("9140")
	require.True(t, ok)
	assert.Equal(t, "Monaco Grand Prix", info.Name)
	require.NotNil(t, info.DurationMs)
	assert.Equal(t, (2 * time.Hour).Milliseconds(), *info.DurationMs)
	require.NotNil(t, info.LocationCount)
	assert.Equal(t, int64(1200), *info.LocationCount)
	require.NotNil(t, info.CarDataCount)
	assert.Equal(t, int64(800), *info.CarDataCount)
}

func TestCatalog_CountsNilWhenStoreEmpty(t *testing.T) {
	store := &fakeStore{lengths: map[string]int64{}}
	cat := New(context.Background(), store, testSessions())

	info, ok := cat.Get("9141")
	require.True(t, ok)
	assert.Nil(t, info.LocationCount)
	assert.Nil(t, info.CarDataCount)
}

func TestCatalog_Exists(t *testing.T) {
	cat := New(context.Background(), &fakeStore{lengths: map[string]int64{}}, testSessions())

	assert.True(t, cat.Exists("9140"))
	assert.False(t, cat.Exists("9999"))
}

func TestCatalog_HasData(t *testing.T) {
	store := &fakeStore{lengths: map[string]int64{"telemetry:location:9140": 10}}
	cat := New(context.Background(), store, testSessions())

	assert.True(t, cat.HasData(context.Background(), "9140"))
	assert.False(t, cat.HasData(context.Background(), "9141"))
}

func TestCatalog_RefreshPicksUpNewCounts(t *testing.T) {
	store := &fakeStore{lengths: map[string]int64{}}
	cat := New(context.Background(), store, testSessions())

	info, _ := cat.Get("9140")
	require.Nil(t, info.LocationCount)

	// The ingestion producer has written data since startup.
	store.setLength("telemetry:location:9140", 500)

	refreshed, ok := cat.Refresh(context.Background(), "9140")
	require.True(t, ok)
	require.NotNil(t, refreshed.LocationCount)
	assert.Equal(t, int64(500), *refreshed.LocationCount)

	// The cached entry was replaced.
	info, _ = cat.Get("9140")
	require.NotNil(t, info.LocationCount)
	assert.Equal(t, int64(500), *info.LocationCount)
}

func TestCatalog_RefreshUnknownKey(t *testing.T) {
	cat := New(context.Background(), &fakeStore{lengths: map[string]int64{}}, testSessions())

	_, ok := cat.Refresh(context.Background(), "9999")
	assert.False(t, ok)
}
