package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/richxcame/tartanilla-earnings/pkg/redis"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	pct     decimal.Decimal
	found   bool
	err     error
	saveErr error
	saved   []decimal.Decimal
}

func (f *fakeSource) GetPercentage(ctx context.Context) (decimal.Decimal, bool, error) {
	return f.pct, f.found, f.err
}

func (f *fakeSource) SavePercentage(ctx context.Context, pct decimal.Decimal) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, pct)
	return nil
}

func newMockCache() (*redis.Client, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return &redis.Client{Client: db}, mock
}

func TestStoreDefaultsUntilRefreshed(t *testing.T) {
	store := NewStore(&fakeSource{}, nil, decimal.NewFromInt(20), 0, zap.NewNop())

	assert.Equal(t, "0.2", store.OrganizationPercentage().String())
	require.NoError(t, store.Refresh(context.Background()))
	assert.Equal(t, "20", store.Percent().String())
}

func TestStoreRefreshMirrorsToCache(t *testing.T) {
	cache, mock := newMockCache()
	mock.ExpectSet(cacheKey, "25", cacheTTL).SetVal("OK")

	store := NewStore(&fakeSource{pct: decimal.NewFromInt(25), found: true}, cache, decimal.NewFromInt(20), time.Minute, zap.NewNop())
	require.NoError(t, store.Refresh(context.Background()))

	assert.Equal(t, "0.25", store.OrganizationPercentage().String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSeedsFromCacheWhenSourceFailsAtBoot(t *testing.T) {
	cache, mock := newMockCache()
	mock.ExpectGet(cacheKey).SetVal("30")

	store := NewStore(&fakeSource{err: errors.New("upstream down")}, cache, decimal.NewFromInt(20), time.Minute, zap.NewNop())
	err := store.Refresh(context.Background())

	assert.Error(t, err)
	assert.Equal(t, "30", store.Percent().String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreKeepsLoadedValueWhenSourceFailsLater(t *testing.T) {
	cache, mock := newMockCache()
	mock.ExpectSet(cacheKey, "15", cacheTTL).SetVal("OK")

	source := &fakeSource{pct: decimal.NewFromInt(15), found: true}
	store := NewStore(source, cache, decimal.NewFromInt(20), time.Minute, zap.NewNop())
	require.NoError(t, store.Refresh(context.Background()))

	source.err = errors.New("upstream down")
	assert.Error(t, store.Refresh(context.Background()))
	assert.Equal(t, "15", store.Percent().String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCacheMissKeepsDefault(t *testing.T) {
	cache, mock := newMockCache()
	mock.ExpectGet(cacheKey).RedisNil()

	store := NewStore(&fakeSource{err: errors.New("upstream down")}, cache, decimal.NewFromInt(20), time.Minute, zap.NewNop())
	assert.Error(t, store.Refresh(context.Background()))
	assert.Equal(t, "20", store.Percent().String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRejectsOutOfRangeStoredValue(t *testing.T) {
	store := NewStore(&fakeSource{pct: decimal.NewFromInt(120), found: true}, nil, decimal.NewFromInt(20), time.Minute, zap.NewNop())

	err := store.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrPercentageRange)
	assert.Equal(t, "20", store.Percent().String())
}

func TestStoreUpdate(t *testing.T) {
	source := &fakeSource{}
	store := NewStore(source, nil, decimal.NewFromInt(20), time.Minute, zap.NewNop())

	assert.ErrorIs(t, store.Update(context.Background(), decimal.NewFromInt(101)), ErrPercentageRange)
	assert.Empty(t, source.saved)

	require.NoError(t, store.Update(context.Background(), decimal.RequireFromString("12.5")))
	assert.Equal(t, "0.125", store.OrganizationPercentage().String())
	require.Len(t, source.saved, 1)

	source.saveErr = errors.New("write failed")
	assert.Error(t, store.Update(context.Background(), decimal.NewFromInt(40)))
	assert.Equal(t, "12.5", store.Percent().String())
}

func TestStoreRunStops(t *testing.T) {
	store := NewStore(&fakeSource{}, nil, decimal.NewFromInt(20), time.Millisecond, zap.NewNop())

	finished := make(chan struct{})
	go func() {
		store.Run(context.Background())
		close(finished)
	}()
	store.Stop()
	store.Stop()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
